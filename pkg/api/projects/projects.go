// Package projects manages projects, their members, settings and defect sub-types.
package projects

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

var projectNamePattern = regexp.MustCompile(`^[0-9a-zA-Z-_]{3,256}$`)

// Cleaner removes data kept outside the database for a deleted project.
type Cleaner interface {
	DeleteProject(ctx context.Context, projectID uint) error
}

type Manager struct {
	dbc      *db.DB
	store    storage.DataStore
	index    Cleaner
	recorder *activities.Recorder
	defaults map[string]string
}

// NewManager builds the project manager. defaults override the built-in attributes of new
// projects.
func NewManager(dbc *db.DB, store storage.DataStore, index Cleaner, recorder *activities.Recorder, defaults map[string]string) *Manager {
	return &Manager{dbc: dbc, store: store, index: index, recorder: recorder, defaults: defaults}
}

// DefaultAttributes are the built-in attributes overridden by configured defaults.
func DefaultAttributes(overrides map[string]string) map[string]string {
	attrs := db.DefaultProjectAttributes()
	for k, v := range overrides {
		if _, ok := attrs[k]; ok {
			attrs[k] = v
		}
	}
	return attrs
}

// CreateInTx creates a project with the default issue types and attributes.
func CreateInTx(tx *gorm.DB, name, projectType, organization string, attrs map[string]string) (*models.Project, error) {
	var count int64
	if res := tx.Model(&models.Project{}).Unscoped().Where("name = ?", name).Count(&count); res.Error != nil {
		return nil, res.Error
	}
	if count > 0 {
		return nil, rperrors.New(rperrors.ProjectAlreadyExists, name)
	}
	project := &models.Project{Name: name, ProjectType: projectType, Organization: organization}
	if res := tx.Omit(clause.Associations).Create(project); res.Error != nil {
		return nil, res.Error
	}
	issueTypes := db.DefaultIssueTypes(project.ID)
	if res := tx.Create(&issueTypes); res.Error != nil {
		return nil, res.Error
	}
	rows := make([]models.ProjectAttribute, 0, len(attrs))
	for k, v := range attrs {
		rows = append(rows, models.ProjectAttribute{ProjectID: project.ID, Key: k, Value: v})
	}
	if len(rows) > 0 {
		if res := tx.Create(&rows); res.Error != nil {
			return nil, res.Error
		}
	}
	return project, nil
}

// CreateProject creates an internal project. Only administrators may create projects.
func (m *Manager) CreateProject(ctx context.Context, user *auth.ReportPortalUser, rq apitype.CreateProjectRQ) (*apitype.EntryCreatedRS, error) {
	if err := auth.RequireAdmin(user); err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(rq.ProjectName))
	if !projectNamePattern.MatchString(name) {
		return nil, rperrors.New(rperrors.IncorrectRequest, "Project name should match "+projectNamePattern.String())
	}
	entryType := strings.ToUpper(rq.EntryType)
	if entryType == "" {
		entryType = models.ProjectTypeInternal
	}
	if entryType != models.ProjectTypeInternal {
		return nil, rperrors.New(rperrors.BadRequest, "Only INTERNAL projects can be created")
	}

	var project *models.Project
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = CreateInTx(tx, name, entryType, rq.Organization, DefaultAttributes(m.defaults))
		return err
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"project": name, "user": user.Login}).Info("project created")
	return &apitype.EntryCreatedRS{ID: project.ID}, nil
}

func loadProject(dbc *gorm.DB, name string) (*models.Project, error) {
	var project models.Project
	res := dbc.Preload("Attributes").Preload("IssueTypes").Preload("Users.User").Preload("SenderCases").
		First(&project, "name = ?", strings.ToLower(name))
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.ProjectNotFound, name)
		}
		return nil, res.Error
	}
	return &project, nil
}

// GetProject returns the project with its members, settings and integrations.
func GetProject(dbc *gorm.DB, name string) (*apitype.ProjectResource, error) {
	project, err := loadProject(dbc, name)
	if err != nil {
		return nil, err
	}
	var integrations []models.Integration
	if res := dbc.Where("project_id = ?", project.ID).Order("id").Find(&integrations); res.Error != nil {
		return nil, res.Error
	}
	res := projectResource(*project)
	for _, i := range integrations {
		res.Integrations = append(res.Integrations, api.IntegrationResource(i))
	}
	return &res, nil
}

func projectResource(p models.Project) apitype.ProjectResource {
	res := apitype.ProjectResource{
		ProjectID:    p.ID,
		ProjectName:  p.Name,
		EntryType:    p.ProjectType,
		Organization: p.Organization,
		CreationDate: apitype.NewTime(p.CreatedAt),
		Configuration: apitype.ProjectConfiguration{
			Attributes: map[string]string{},
			Subtypes:   map[apitype.IssueGroup][]apitype.IssueSubType{},
		},
	}
	for _, a := range p.Attributes {
		res.Configuration.Attributes[a.Key] = a.Value
	}
	for _, it := range p.IssueTypes {
		g := apitype.IssueGroup(it.IssueGroup)
		res.Configuration.Subtypes[g] = append(res.Configuration.Subtypes[g], api.IssueSubType(it))
	}
	for g := range res.Configuration.Subtypes {
		sub := res.Configuration.Subtypes[g]
		sort.Slice(sub, func(i, j int) bool { return sub[i].ID < sub[j].ID })
	}
	for _, pu := range p.Users {
		res.Users = append(res.Users, apitype.ProjectUserResource{Login: pu.User.Login, ProjectRole: apitype.ProjectRole(pu.Role)})
	}
	sort.Slice(res.Users, func(i, j int) bool { return res.Users[i].Login < res.Users[j].Login })

	cases := make([]apitype.SenderCaseDTO, 0, len(p.SenderCases))
	for _, sc := range p.SenderCases {
		cases = append(cases, api.SenderCaseDTO(sc))
	}
	res.Configuration.EmailConfig = &apitype.ProjectNotificationConfig{
		Enabled: p.Attribute(db.AttrNotifications) == "true",
		Cases:   cases,
	}
	return res
}

// ListProjects pages through all projects. Only administrators may list them.
func ListProjects(dbc *gorm.DB, user *auth.ReportPortalUser, req *http.Request) (apitype.Page[apitype.ProjectResource], error) {
	if err := auth.RequireAdmin(user); err != nil {
		return apitype.Page[apitype.ProjectResource]{}, err
	}
	opts, err := filter.FilterOptionsFromRequest(req, "name", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.ProjectResource]{}, err
	}
	q := dbc.Model(&models.Project{}).Preload("Attributes").Preload("IssueTypes").Preload("Users.User").Preload("SenderCases")
	return api.FilteredPage(q, opts, query.ProjectColumns, func(rows []models.Project) ([]apitype.ProjectResource, error) {
		result := make([]apitype.ProjectResource, 0, len(rows))
		for _, p := range rows {
			result = append(result, projectResource(p))
		}
		return result, nil
	})
}

// UpdateProject changes project attributes and member roles.
func (m *Manager) UpdateProject(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.UpdateProjectRQ) error {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return err
	}
	dbc := m.dbc.DB.WithContext(ctx)
	current, err := loadProject(dbc, project.Name)
	if err != nil {
		return err
	}

	attrs := map[string]string{}
	for _, a := range current.Attributes {
		attrs[a.Key] = a.Value
	}
	for k, v := range rq.Attributes {
		if err := db.ValidateProjectAttribute(k, v); err != nil {
			return err
		}
		attrs[k] = v
	}
	if err := db.ValidateKeepDelays(attrs); err != nil {
		return err
	}

	roles := map[uint]apitype.ProjectRole{}
	for login, r := range rq.UserRoles {
		role, ok := apitype.ParseProjectRole(r)
		if !ok {
			return rperrors.New(rperrors.BadRequest, "Incorrect project role '"+r+"'")
		}
		if strings.EqualFold(login, user.Login) && !user.IsAdmin() {
			return rperrors.New(rperrors.UnableUpdateOwnRole, login)
		}
		member := findMember(current, login)
		if member == nil {
			return rperrors.New(rperrors.ProjectDoesntContain, project.Name, login)
		}
		if !user.IsAdmin() && apitype.ProjectRole(member.Role).SameOrHigherThan(apitype.ProjectRoleProjectManager) &&
			project.Role != apitype.ProjectRoleProjectManager {
			return rperrors.New(rperrors.AccessDenied, "You cannot change the role of a project manager")
		}
		roles[member.UserID] = role
	}

	err = dbc.Transaction(func(tx *gorm.DB) error {
		for k, v := range rq.Attributes {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).Create(&models.ProjectAttribute{ProjectID: current.ID, Key: k, Value: v})
			if res.Error != nil {
				return res.Error
			}
		}
		for userID, role := range roles {
			res := tx.Model(&models.ProjectUser{}).Where("project_id = ? AND user_id = ?", current.ID, userID).Update("role", string(role))
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.recorder.RecordQuietly(ctx, current.ID, user.Login, models.ActionUpdateProject, activities.ObjectProject, current.ID, current.Name,
		map[string]interface{}{"attributes": rq.Attributes})
	return nil
}

func findMember(project *models.Project, login string) *models.ProjectUser {
	for i := range project.Users {
		if strings.EqualFold(project.Users[i].User.Login, login) {
			return &project.Users[i]
		}
	}
	return nil
}

// AssignUsers adds users to the project with the given roles.
func (m *Manager) AssignUsers(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.AssignUsersRQ) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	if len(rq.UserNames) == 0 {
		return nil, rperrors.New(rperrors.UnableAssignUser, "Request should contain at least one user")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	current, err := loadProject(dbc, project.Name)
	if err != nil {
		return nil, err
	}
	if current.ProjectType == models.ProjectTypePersonal {
		return nil, rperrors.New(rperrors.UnableAssignUser, "Users cannot be assigned to a personal project")
	}

	var assigned []string
	err = dbc.Transaction(func(tx *gorm.DB) error {
		for login, r := range rq.UserNames {
			role, ok := apitype.ParseProjectRole(string(r))
			if !ok {
				return rperrors.New(rperrors.BadRequest, "Incorrect project role '"+string(r)+"'")
			}
			if !user.IsAdmin() && role.SameOrHigherThan(apitype.ProjectRoleProjectManager) && project.Role != apitype.ProjectRoleProjectManager {
				return rperrors.New(rperrors.AccessDenied, "You cannot assign a role higher than yours")
			}
			if findMember(current, login) != nil {
				return rperrors.New(rperrors.UnableAssignUser, fmt.Sprintf("User '%s' is already assigned to project '%s'", login, current.Name))
			}
			u, err := query.UserByLogin(tx, strings.ToLower(login))
			if err != nil {
				return err
			}
			if u == nil {
				return rperrors.New(rperrors.UserNotFound, login)
			}
			if res := tx.Omit(clause.Associations).Create(&models.ProjectUser{ProjectID: current.ID, UserID: u.ID, Role: string(role)}); res.Error != nil {
				return res.Error
			}
			assigned = append(assigned, u.Login)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(assigned)
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("User(s) with username(s)='%s' was successfully assigned to the project='%s'", strings.Join(assigned, ", "), current.Name),
	}, nil
}

// UnassignUsers removes users from the project.
func (m *Manager) UnassignUsers(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.UnassignUsersRQ) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireProjectRole(user, project, apitype.ProjectRoleProjectManager); err != nil {
		return nil, err
	}
	if len(rq.UserNames) == 0 {
		return nil, rperrors.New(rperrors.UnableAssignUser, "Request should contain at least one user")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	current, err := loadProject(dbc, project.Name)
	if err != nil {
		return nil, err
	}
	err = dbc.Transaction(func(tx *gorm.DB) error {
		for _, login := range rq.UserNames {
			member := findMember(current, login)
			if member == nil {
				return rperrors.New(rperrors.ProjectDoesntContain, current.Name, login)
			}
			if current.ProjectType == models.ProjectTypePersonal && strings.EqualFold(current.Name, PersonalProjectName(member.User.Login)) {
				return rperrors.New(rperrors.UnableAssignUser, "Unable to unassign user from his personal project")
			}
			if res := tx.Where("project_id = ? AND user_id = ?", current.ID, member.UserID).Delete(&models.ProjectUser{}); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("User(s) with username(s)='%s' was successfully unassigned from the project='%s'", strings.Join(rq.UserNames, ", "), current.Name),
	}, nil
}

// PersonalProjectName is the name of the project created together with a user.
func PersonalProjectName(login string) string {
	return strings.ToLower(strings.ReplaceAll(login, ".", "_")) + "_personal"
}

// DeleteProject removes a project with everything it contains. Only administrators may
// delete projects.
func (m *Manager) DeleteProject(ctx context.Context, user *auth.ReportPortalUser, id uint) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireAdmin(user); err != nil {
		return nil, err
	}
	project, err := query.ProjectByID(m.dbc, id)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, rperrors.New(rperrors.ProjectNotFound, id)
	}

	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return DeleteInTx(tx, project.ID)
	})
	if err != nil {
		log.WithError(err).WithField("project", project.Name).Error("error deleting project")
		return nil, err
	}
	if m.store != nil {
		if err := m.store.DeleteByPrefix(ctx, storage.ProjectPrefix(project.ID)); err != nil {
			log.WithError(err).WithField("project", project.Name).Warn("could not delete project attachments")
		}
	}
	if m.index != nil {
		if err := m.index.DeleteProject(ctx, project.ID); err != nil {
			log.WithError(err).WithField("project", project.Name).Warn("could not delete project log index")
		}
	}
	log.WithFields(log.Fields{"project": project.Name, "user": user.Login}).Info("project deleted")
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Project with id = '%d' has been successfully deleted.", project.ID)}, nil
}

// DeleteInTx removes the rows of a project and everything in it.
func DeleteInTx(tx *gorm.DB, projectID uint) error {
	var launchIDs []uint
	if res := tx.Model(&models.Launch{}).Where("project_id = ?", projectID).Pluck("id", &launchIDs); res.Error != nil {
		return res.Error
	}
	if _, err := query.DeleteLaunches(tx, launchIDs); err != nil {
		return err
	}
	stmts := []string{
		"DELETE FROM widget_filters WHERE widget_id IN (SELECT id FROM widgets WHERE project_id = ?)",
		"DELETE FROM dashboard_widgets WHERE dashboard_id IN (SELECT id FROM dashboards WHERE project_id = ?)",
	}
	for _, stmt := range stmts {
		if res := tx.Exec(stmt, projectID); res.Error != nil {
			return res.Error
		}
	}
	for _, model := range []interface{}{&models.Widget{}, &models.Dashboard{}, &models.UserFilter{}, &models.Activity{},
		&models.Integration{}, &models.SenderCase{}, &models.IssueType{}, &models.ProjectAttribute{}, &models.ProjectUser{},
		&models.Attachment{}, &models.Log{}} {
		if res := tx.Unscoped().Where("project_id = ?", projectID).Delete(model); res.Error != nil {
			return res.Error
		}
	}
	return tx.Unscoped().Delete(&models.Project{}, projectID).Error
}

// ProjectInfo summarizes launches and members of a project.
func ProjectInfo(dbc *gorm.DB, project *auth.ProjectDetails) (*apitype.ProjectInfoResource, error) {
	info := &apitype.ProjectInfoResource{
		ProjectID:        project.ID,
		ProjectName:      project.Name,
		LaunchesByStatus: map[apitype.Status]int64{},
		LaunchesByOwner:  map[string]int64{},
	}
	if res := dbc.Model(&models.ProjectUser{}).Where("project_id = ?", project.ID).Count(&info.UsersQuantity); res.Error != nil {
		return nil, res.Error
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	res := dbc.Model(&models.Launch{}).Select("status, COUNT(*) AS count").
		Where("project_id = ? AND mode = ?", project.ID, string(apitype.LaunchModeDefault)).
		Group("status").Scan(&byStatus)
	if res.Error != nil {
		return nil, res.Error
	}
	for _, s := range byStatus {
		info.LaunchesByStatus[apitype.Status(s.Status)] = s.Count
		info.LaunchesQuantity += s.Count
	}

	var byOwner []struct {
		Login string
		Count int64
	}
	res = dbc.Table("launches").Select("users.login AS login, COUNT(*) AS count").
		Joins("JOIN users ON users.id = launches.user_id").
		Where("launches.project_id = ? AND launches.mode = ?", project.ID, string(apitype.LaunchModeDefault)).
		Group("users.login").Scan(&byOwner)
	if res.Error != nil {
		return nil, res.Error
	}
	for _, o := range byOwner {
		info.LaunchesByOwner[o.Login] = o.Count
	}

	var last models.Launch
	res = dbc.Where("project_id = ? AND mode = ?", project.ID, string(apitype.LaunchModeDefault)).Order("start_time DESC").Limit(1).Find(&last)
	if res.Error != nil {
		return nil, res.Error
	}
	if last.ID != 0 {
		t := apitype.NewTime(last.StartTime)
		info.LastRun = &t
	}
	return info, nil
}
