// Package users manages accounts, their passwords and api keys.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/projects"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

var loginPattern = regexp.MustCompile(`^[0-9a-zA-Z-_.]{1,128}$`)

const minPasswordLength = 4

// TokenIssuer signs access tokens for logged in users.
type TokenIssuer interface {
	IssueToken(login string, ttl time.Duration) (string, error)
}

type Manager struct {
	dbc             *db.DB
	projectDefaults map[string]string
}

func NewManager(dbc *db.DB, projectDefaults map[string]string) *Manager {
	return &Manager{dbc: dbc, projectDefaults: projectDefaults}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validateCreate(rq apitype.CreateUserRQ) error {
	if !loginPattern.MatchString(rq.Login) {
		return rperrors.New(rperrors.IncorrectRequest, "Username should match "+loginPattern.String())
	}
	if len(rq.Password) < minPasswordLength {
		return rperrors.New(rperrors.IncorrectRequest, fmt.Sprintf("Password should be at least %d characters long", minPasswordLength))
	}
	if !validEmail(rq.Email) {
		return rperrors.New(rperrors.IncorrectRequest, "Email '"+rq.Email+"' is incorrect")
	}
	if strings.TrimSpace(rq.FullName) == "" {
		return rperrors.New(rperrors.IncorrectRequest, "Full name should not be empty")
	}
	if rq.AccountRole != "" && rq.AccountRole != apitype.UserRoleUser && rq.AccountRole != apitype.UserRoleAdministrator {
		return rperrors.New(rperrors.IncorrectRequest, "Unknown account role '"+string(rq.AccountRole)+"'")
	}
	return nil
}

// CreateUser creates an internal user with a personal project, optionally assigned to a
// default project. Only administrators may create users.
func (m *Manager) CreateUser(ctx context.Context, admin *auth.ReportPortalUser, rq apitype.CreateUserRQ) (*apitype.CreateUserRS, error) {
	if err := auth.RequireAdmin(admin); err != nil {
		return nil, err
	}
	rq.Login = strings.ToLower(strings.TrimSpace(rq.Login))
	rq.Email = strings.ToLower(strings.TrimSpace(rq.Email))
	if err := validateCreate(rq); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(rq.Password)
	if err != nil {
		return nil, err
	}
	role := rq.AccountRole
	if role == "" {
		role = apitype.UserRoleUser
	}

	user := &models.User{
		Login:    rq.Login,
		Email:    rq.Email,
		FullName: strings.TrimSpace(rq.FullName),
		Password: hash,
		Role:     string(role),
		Type:     string(apitype.UserTypeInternal),
		Active:   true,
	}
	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if res := tx.Model(&models.User{}).Where("login = ? OR email = ?", rq.Login, rq.Email).Count(&count); res.Error != nil {
			return res.Error
		}
		if count > 0 {
			return rperrors.New(rperrors.UserAlreadyExists, "login='"+rq.Login+"' or email='"+rq.Email+"'")
		}
		if res := tx.Omit(clause.Associations).Create(user); res.Error != nil {
			return res.Error
		}

		personal, err := projects.CreateInTx(tx, projects.PersonalProjectName(user.Login), models.ProjectTypePersonal, "",
			projects.DefaultAttributes(m.projectDefaults))
		if err != nil {
			return err
		}
		memberships := []models.ProjectUser{{ProjectID: personal.ID, UserID: user.ID, Role: string(apitype.ProjectRoleProjectManager)}}

		if rq.DefaultProject != "" {
			project, err := query.ProjectByName(&db.DB{DB: tx}, strings.ToLower(rq.DefaultProject))
			if err != nil {
				return err
			}
			if project == nil {
				return rperrors.New(rperrors.ProjectNotFound, rq.DefaultProject)
			}
			projectRole := rq.ProjectRole
			if projectRole == "" {
				projectRole = apitype.ProjectRoleMember
			}
			if _, ok := apitype.ParseProjectRole(string(projectRole)); !ok {
				return rperrors.New(rperrors.IncorrectRequest, "Unknown project role '"+string(projectRole)+"'")
			}
			memberships = append(memberships, models.ProjectUser{ProjectID: project.ID, UserID: user.ID, Role: string(projectRole)})
		}
		return tx.Omit(clause.Associations).Create(&memberships).Error
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"login": user.Login, "admin": admin.Login}).Info("user created")
	return &apitype.CreateUserRS{ID: user.ID, Login: user.Login}, nil
}

// EnsureAdmin creates an administrator from rq unless one exists already. It reports
// whether a user was created.
func (m *Manager) EnsureAdmin(ctx context.Context, rq apitype.CreateUserRQ) (bool, error) {
	var admins int64
	res := m.dbc.DB.WithContext(ctx).Model(&models.User{}).Where("role = ?", apitype.UserRoleAdministrator).Count(&admins)
	if res.Error != nil {
		return false, res.Error
	}
	if admins > 0 {
		return false, nil
	}
	rq.AccountRole = apitype.UserRoleAdministrator
	system := &auth.ReportPortalUser{Login: "system", Role: apitype.UserRoleAdministrator}
	if _, err := m.CreateUser(ctx, system, rq); err != nil {
		return false, err
	}
	return true, nil
}

func userResource(u models.User) apitype.UserResource {
	res := apitype.UserResource{
		ID:               u.ID,
		UserID:           u.Login,
		Email:            u.Email,
		FullName:         u.FullName,
		AccountType:      apitype.UserType(u.Type),
		UserRole:         apitype.UserRole(u.Role),
		Active:           u.Active,
		AssignedProjects: map[string]apitype.AssignedProject{},
	}
	for _, pu := range u.Projects {
		res.AssignedProjects[pu.Project.Name] = apitype.AssignedProject{
			ProjectRole: apitype.ProjectRole(pu.Role),
			EntryType:   pu.Project.ProjectType,
		}
	}
	return res
}

func loadUser(dbc *gorm.DB, login string) (*models.User, error) {
	user, err := query.UserByLogin(dbc, strings.ToLower(login))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, rperrors.New(rperrors.UserNotFound, login)
	}
	return user, nil
}

// GetUser returns a user. Users may see themselves and administrators anybody.
func GetUser(dbc *gorm.DB, caller *auth.ReportPortalUser, login string) (*apitype.UserResource, error) {
	if !caller.IsAdmin() && !strings.EqualFold(caller.Login, login) {
		return nil, rperrors.New(rperrors.AccessDenied, "You can only see your own account")
	}
	user, err := loadUser(dbc, login)
	if err != nil {
		return nil, err
	}
	res := userResource(*user)
	return &res, nil
}

// ListUsers pages through all users. Only administrators may list them.
func ListUsers(dbc *gorm.DB, caller *auth.ReportPortalUser, req *http.Request) (apitype.Page[apitype.UserResource], error) {
	if err := auth.RequireAdmin(caller); err != nil {
		return apitype.Page[apitype.UserResource]{}, err
	}
	opts, err := filter.FilterOptionsFromRequest(req, "login", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.UserResource]{}, err
	}
	q := dbc.Model(&models.User{}).Preload("Projects.Project")
	return api.FilteredPage(q, opts, query.UserColumns, func(rows []models.User) ([]apitype.UserResource, error) {
		result := make([]apitype.UserResource, 0, len(rows))
		for _, u := range rows {
			result = append(result, userResource(u))
		}
		return result, nil
	})
}

// EditUser changes the email or full name of a user, and the account role when an
// administrator asks.
func (m *Manager) EditUser(ctx context.Context, caller *auth.ReportPortalUser, login string, rq apitype.EditUserRQ) (*apitype.OperationCompletionRS, error) {
	if !caller.IsAdmin() && !strings.EqualFold(caller.Login, login) {
		return nil, rperrors.New(rperrors.AccessDenied, "You can only edit your own account")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	user, err := loadUser(dbc, login)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if rq.Email != "" {
		email := strings.ToLower(strings.TrimSpace(rq.Email))
		if !validEmail(email) {
			return nil, rperrors.New(rperrors.IncorrectRequest, "Email '"+rq.Email+"' is incorrect")
		}
		if email != user.Email {
			var count int64
			if res := dbc.Model(&models.User{}).Where("email = ? AND id <> ?", email, user.ID).Count(&count); res.Error != nil {
				return nil, res.Error
			}
			if count > 0 {
				return nil, rperrors.New(rperrors.UserAlreadyExists, "email='"+email+"'")
			}
			updates["email"] = email
		}
	}
	if strings.TrimSpace(rq.FullName) != "" {
		updates["full_name"] = strings.TrimSpace(rq.FullName)
	}
	if rq.Role != "" && string(rq.Role) != user.Role {
		if !caller.IsAdmin() {
			return nil, rperrors.New(rperrors.AccessDenied, "Only administrators can change account roles")
		}
		if caller.ID == user.ID {
			return nil, rperrors.New(rperrors.UnableUpdateOwnRole, login)
		}
		if rq.Role != apitype.UserRoleUser && rq.Role != apitype.UserRoleAdministrator {
			return nil, rperrors.New(rperrors.IncorrectRequest, "Unknown account role '"+string(rq.Role)+"'")
		}
		updates["role"] = string(rq.Role)
	}
	if len(updates) > 0 {
		if res := dbc.Model(user).Updates(updates); res.Error != nil {
			return nil, res.Error
		}
	}
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("User with login = '%s' successfully updated", user.Login)}, nil
}

// ChangePassword replaces the caller's password after checking the old one.
func (m *Manager) ChangePassword(ctx context.Context, caller *auth.ReportPortalUser, rq apitype.ChangePasswordRQ) (*apitype.OperationCompletionRS, error) {
	dbc := m.dbc.DB.WithContext(ctx)
	user, err := loadUser(dbc, caller.Login)
	if err != nil {
		return nil, err
	}
	if user.Type != string(apitype.UserTypeInternal) {
		return nil, rperrors.New(rperrors.ForbiddenOperation, "Impossible to change password for external users.")
	}
	if !auth.CheckPassword(user.Password, rq.OldPassword) {
		return nil, rperrors.New(rperrors.ForbiddenOperation, "Old password not match with stored.")
	}
	if len(rq.NewPassword) < minPasswordLength {
		return nil, rperrors.New(rperrors.IncorrectRequest, fmt.Sprintf("Password should be at least %d characters long", minPasswordLength))
	}
	hash, err := auth.HashPassword(rq.NewPassword)
	if err != nil {
		return nil, err
	}
	if res := dbc.Model(user).Update("password", hash); res.Error != nil {
		return nil, res.Error
	}
	return &apitype.OperationCompletionRS{Message: "Password has been changed successfully"}, nil
}

// DeleteUser removes a user and the personal project. Administrators cannot delete
// themselves.
func (m *Manager) DeleteUser(ctx context.Context, admin *auth.ReportPortalUser, id uint) (*apitype.OperationCompletionRS, error) {
	if err := auth.RequireAdmin(admin); err != nil {
		return nil, err
	}
	if admin.ID == id {
		return nil, rperrors.New(rperrors.IncorrectRequest, "You cannot delete own account")
	}
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := query.UserByID(tx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return rperrors.New(rperrors.UserNotFound, id)
		}
		for _, pu := range user.Projects {
			if pu.Project.ProjectType == models.ProjectTypePersonal && pu.Project.Name == projects.PersonalProjectName(user.Login) {
				if err := projects.DeleteInTx(tx, pu.ProjectID); err != nil {
					return err
				}
			}
		}
		if res := tx.Where("user_id = ?", user.ID).Delete(&models.ProjectUser{}); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("user_id = ?", user.ID).Delete(&models.ApiKey{}); res.Error != nil {
			return res.Error
		}
		return tx.Unscoped().Delete(user).Error
	})
	if err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("User with ID = '%d' successfully deleted.", id)}, nil
}

// Login checks the credentials of an internal user and issues an access token.
func (m *Manager) Login(ctx context.Context, issuer TokenIssuer, rq apitype.LoginRQ, ttl time.Duration) (*apitype.TokenRS, error) {
	dbc := m.dbc.DB.WithContext(ctx)
	user, err := query.UserByLogin(dbc, strings.ToLower(rq.Login))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active || user.Password == "" || !auth.CheckPassword(user.Password, rq.Password) {
		return nil, rperrors.New(rperrors.Unauthorized, "Bad credentials")
	}
	token, err := issuer.IssueToken(user.Login, ttl)
	if err != nil {
		return nil, err
	}
	auth.LoginUser(dbc, user)
	return &apitype.TokenRS{AccessToken: token, TokenType: "bearer", ExpiresIn: int64(ttl.Seconds())}, nil
}

func apiKeyResource(k models.ApiKey) apitype.ApiKeyRS {
	return apitype.ApiKeyRS{
		ID:        k.ID,
		Name:      k.Name,
		UserID:    k.UserID,
		CreatedAt: apitype.NewTime(k.CreatedAt),
		LastUsed:  apitype.TimePtr(k.LastUsedAt),
	}
}

// CreateApiKey generates a key for the caller. The secret is only returned here.
func (m *Manager) CreateApiKey(ctx context.Context, caller *auth.ReportPortalUser, rq apitype.ApiKeyRQ) (*apitype.ApiKeyRS, error) {
	name := strings.TrimSpace(rq.Name)
	if len(name) < 1 || len(name) > 40 {
		return nil, rperrors.New(rperrors.IncorrectRequest, "Api key name should have size from 1 to 40")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	var count int64
	if res := dbc.Model(&models.ApiKey{}).Where("user_id = ? AND name = ?", caller.ID, name).Count(&count); res.Error != nil {
		return nil, res.Error
	}
	if count > 0 {
		return nil, rperrors.New(rperrors.ResourceAlreadyExists, name)
	}
	key, hash, err := auth.GenerateAPIKey(name)
	if err != nil {
		return nil, err
	}
	record := models.ApiKey{Name: name, Hash: hash, UserID: caller.ID}
	if res := dbc.Create(&record); res.Error != nil {
		return nil, res.Error
	}
	rs := apiKeyResource(record)
	rs.APIKey = key
	return &rs, nil
}

func ListApiKeys(dbc *gorm.DB, caller *auth.ReportPortalUser) (*apitype.ApiKeysRS, error) {
	var keys []models.ApiKey
	if res := dbc.Where("user_id = ?", caller.ID).Find(&keys); res.Error != nil {
		return nil, res.Error
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	rs := &apitype.ApiKeysRS{Items: make([]apitype.ApiKeyRS, 0, len(keys))}
	for _, k := range keys {
		rs.Items = append(rs.Items, apiKeyResource(k))
	}
	return rs, nil
}

func (m *Manager) DeleteApiKey(ctx context.Context, caller *auth.ReportPortalUser, id uint) (*apitype.OperationCompletionRS, error) {
	res := m.dbc.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, caller.ID).Delete(&models.ApiKey{})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.ApiKeyNotFound, id)
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, rperrors.New(rperrors.ApiKeyNotFound, id)
	}
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Api key with ID = '%d' was successfully deleted.", id)}, nil
}
