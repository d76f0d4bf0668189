// Package launches serves reads and management of launches after they were reported.
package launches

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/merge"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
	"github.com/reportportal/service-api/pkg/widget"
)

const maxNameSuggestions = 50

// Analyzer runs on-demand analysis of a launch.
type Analyzer interface {
	AnalyzeLaunch(ctx context.Context, project *auth.ProjectDetails, launch *models.Launch, rq apitype.AnalyzeLaunchRQ) error
}

// Manager performs the launch operations that change data.
type Manager struct {
	dbc      *db.DB
	bus      *events.Bus
	store    storage.DataStore
	recorder *activities.Recorder
	merger   *merge.Merger
	analyzer Analyzer
}

func NewManager(dbc *db.DB, bus *events.Bus, store storage.DataStore, recorder *activities.Recorder, analyzer Analyzer) *Manager {
	return &Manager{
		dbc:      dbc,
		bus:      bus,
		store:    store,
		recorder: recorder,
		merger:   merge.NewMerger(dbc, bus),
		analyzer: analyzer,
	}
}

// resources converts launches, loading the statistics of all of them at once.
func resources(dbc *gorm.DB, launches []models.Launch) ([]apitype.LaunchResource, error) {
	ids := make([]uint, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	stats, err := query.LaunchStatistics(dbc, ids...)
	if err != nil {
		return nil, err
	}
	result := make([]apitype.LaunchResource, 0, len(launches))
	for _, l := range launches {
		result = append(result, api.LaunchResource(l, stats[l.ID]))
	}
	return result, nil
}

// findLaunch resolves a launch by numeric id or uuid within the project.
func findLaunch(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*models.Launch, error) {
	var launch *models.Launch
	var err error
	if id, perr := strconv.ParseUint(idOrUUID, 10, 64); perr == nil {
		launch, err = query.LaunchByID(dbc, uint(id))
	} else {
		launch, err = query.LaunchByUUID(dbc, idOrUUID)
	}
	if err != nil {
		return nil, err
	}
	if launch == nil || launch.ProjectID != project.ID {
		return nil, rperrors.New(rperrors.LaunchNotFound, idOrUUID)
	}
	return launch, nil
}

func GetLaunch(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*apitype.LaunchResource, error) {
	launch, err := findLaunch(dbc, project, idOrUUID)
	if err != nil {
		return nil, err
	}
	res, err := resources(dbc, []models.Launch{*launch})
	if err != nil {
		return nil, err
	}
	return &res[0], nil
}

func projectLaunches(dbc *gorm.DB, projectID uint) *gorm.DB {
	return dbc.Model(&models.Launch{}).Preload("User").Preload("Attributes").Where("launches.project_id = ?", projectID)
}

func toResources(dbc *gorm.DB) func([]models.Launch) ([]apitype.LaunchResource, error) {
	return func(rows []models.Launch) ([]apitype.LaunchResource, error) {
		return resources(dbc, rows)
	}
}

// ListLaunches pages through finished and running launches of the given mode, newest first
// by default.
func ListLaunches(dbc *gorm.DB, project *auth.ProjectDetails, mode apitype.LaunchMode, req *http.Request) (apitype.Page[apitype.LaunchResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "startTime", apitype.SortDescending)
	if err != nil {
		return apitype.Page[apitype.LaunchResource]{}, err
	}
	q := projectLaunches(dbc, project.ID).Where("launches.mode = ?", string(mode))
	return api.FilteredPage(q, opts, query.LaunchColumns, toResources(dbc))
}

// LatestLaunches lists only the highest numbered finished launch of every name.
func LatestLaunches(dbc *gorm.DB, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.LaunchResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "startTime", apitype.SortDescending)
	if err != nil {
		return apitype.Page[apitype.LaunchResource]{}, err
	}
	latest := dbc.Model(&models.Launch{}).
		Select("DISTINCT ON (name) id").
		Where("project_id = ? AND mode = ? AND status <> ?", project.ID, string(apitype.LaunchModeDefault), string(apitype.StatusInProgress)).
		Order("name, number DESC")
	q := projectLaunches(dbc, project.ID).Where("launches.id IN (?)", latest)
	return api.FilteredPage(q, opts, query.LaunchColumns, toResources(dbc))
}

// LaunchNames suggests launch names of the project starting with term.
func LaunchNames(dbc *gorm.DB, project *auth.ProjectDetails, term string) ([]string, error) {
	if len(strings.TrimSpace(term)) < 3 {
		return nil, rperrors.New(rperrors.IncorrectFilterParameters, "Length of the filtering string 'filter.cnt.name' is less than 3 symbols")
	}
	names := []string{}
	res := dbc.Model(&models.Launch{}).
		Distinct("name").
		Where("project_id = ? AND name ILIKE ?", project.ID, "%"+strings.TrimSpace(term)+"%").
		Order("name").
		Limit(maxNameSuggestions).
		Pluck("name", &names)
	return names, res.Error
}

// CompareLaunches returns the execution and defect group counters of the launches, in the
// order they were requested.
func CompareLaunches(dbc *gorm.DB, project *auth.ProjectDetails, ids []uint) ([]apitype.ChartObject, error) {
	var launches []models.Launch
	if res := dbc.Where("project_id = ? AND id IN ?", project.ID, ids).Find(&launches); res.Error != nil {
		return nil, res.Error
	}
	stats, err := query.LaunchStatistics(dbc, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Launch, len(launches))
	for _, l := range launches {
		byID[l.ID] = l
	}

	result := make([]apitype.ChartObject, 0, len(ids))
	for _, id := range ids {
		l, ok := byID[id]
		if !ok {
			return nil, rperrors.New(rperrors.LaunchNotFound, id)
		}
		result = append(result, widget.ComparisonObject(l, stats[id]))
	}
	return result, nil
}

func canManage(user *auth.ReportPortalUser, project *auth.ProjectDetails, launch *models.Launch) bool {
	if user.IsAdmin() || project.Role.SameOrHigherThan(apitype.ProjectRoleProjectManager) {
		return true
	}
	return launch.UserID == user.ID
}

// UpdateLaunch changes the mode, description or attributes of a launch.
func (m *Manager) UpdateLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint, rq apitype.UpdateLaunchRQ) error {
	dbc := m.dbc.DB.WithContext(ctx)
	launch, err := findLaunch(dbc, project, strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return err
	}
	if !canManage(user, project, launch) {
		return rperrors.New(rperrors.AccessDenied, "You are not an owner of the launch or have less than PROJECT_MANAGER project role.")
	}
	if rq.Mode != "" && rq.Mode != apitype.LaunchModeDefault && rq.Mode != apitype.LaunchModeDebug {
		return rperrors.New(rperrors.IncorrectRequest, "Unknown launch mode '"+string(rq.Mode)+"'")
	}

	err = dbc.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{}
		if rq.Mode != "" {
			updates["mode"] = string(rq.Mode)
		}
		if rq.Description != nil {
			updates["description"] = *rq.Description
		}
		if len(updates) > 0 {
			if res := tx.Model(launch).Updates(updates); res.Error != nil {
				return res.Error
			}
		}
		if rq.Attributes != nil {
			if res := tx.Where("launch_id = ? AND NOT system", launch.ID).Delete(&models.ItemAttribute{}); res.Error != nil {
				return res.Error
			}
			attrs := make([]models.ItemAttribute, 0, len(rq.Attributes))
			for _, a := range rq.Attributes {
				if a.Value == "" || a.System {
					continue
				}
				attrs = append(attrs, models.ItemAttribute{LaunchID: &launch.ID, Key: a.Key, Value: a.Value})
			}
			if len(attrs) > 0 {
				if res := tx.Create(&attrs); res.Error != nil {
					return res.Error
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateLaunch, activities.ObjectLaunch, launch.ID,
		fmt.Sprintf("%s #%d", launch.Name, launch.Number), nil)
	return nil
}

// DeleteLaunch removes a finished launch with everything reported into it.
func (m *Manager) DeleteLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) error {
	dbc := m.dbc.DB.WithContext(ctx)
	launch, err := findLaunch(dbc, project, strconv.FormatUint(uint64(id), 10))
	if err != nil {
		return err
	}
	if !canManage(user, project, launch) {
		return rperrors.New(rperrors.AccessDenied, "You are not an owner of the launch or have less than PROJECT_MANAGER project role.")
	}
	if launch.Status == string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.LaunchIsNotFinished, fmt.Sprintf("Unable to delete launch '%d' in progress state", launch.ID))
	}

	var files []string
	err = dbc.Transaction(func(tx *gorm.DB) error {
		var err error
		files, err = query.DeleteLaunches(tx, []uint{launch.ID})
		return err
	})
	if err != nil {
		log.WithError(err).WithField("launch", launch.ID).Error("error deleting launch")
		return err
	}
	m.removeFiles(ctx, files)

	log.WithFields(log.Fields{"launch": launch.UUID, "user": user.Login}).Info("launch deleted")
	m.bus.Publish(ctx, events.Event{Type: events.LaunchDeleted, ProjectID: project.ID, Login: user.Login, Launch: launch})
	return nil
}

func (m *Manager) removeFiles(ctx context.Context, files []string) {
	if m.store == nil {
		return
	}
	for _, f := range files {
		if err := m.store.Delete(ctx, f); err != nil {
			log.WithError(err).WithField("file", f).Warn("could not delete attachment file")
		}
	}
}

// DeleteLaunches deletes every launch independently and reports the outcome per id.
func (m *Manager) DeleteLaunches(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, ids []uint) apitype.DeleteBulkRS {
	rs := apitype.DeleteBulkRS{Deleted: []uint{}, NotFound: []uint{}, Errors: []apitype.ErrorRS{}}
	for _, id := range ids {
		err := m.DeleteLaunch(ctx, user, project, id)
		switch {
		case err == nil:
			rs.Deleted = append(rs.Deleted, id)
		case rperrors.Is(err, rperrors.LaunchNotFound):
			rs.NotFound = append(rs.NotFound, id)
		default:
			rs.Errors = append(rs.Errors, api.ErrorResponse(err))
		}
	}
	return rs
}

// MergeLaunches combines finished launches into a new one.
func (m *Manager) MergeLaunches(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.MergeLaunchesRQ) (*apitype.LaunchResource, error) {
	merged, err := m.merger.Merge(ctx, user, project, rq)
	if err != nil {
		return nil, err
	}
	res, err := resources(m.dbc.DB.WithContext(ctx), []models.Launch{*merged})
	if err != nil {
		return nil, err
	}
	return &res[0], nil
}

// AnalyzeLaunch starts on-demand analysis of a finished launch.
func (m *Manager) AnalyzeLaunch(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.AnalyzeLaunchRQ) (*apitype.OperationCompletionRS, error) {
	launch, err := findLaunch(m.dbc.DB.WithContext(ctx), project, strconv.FormatUint(uint64(rq.LaunchID), 10))
	if err != nil {
		return nil, err
	}
	if launch.Status == string(apitype.StatusInProgress) {
		return nil, rperrors.New(rperrors.LaunchIsNotFinished, "Cannot analyze launch in progress.")
	}
	if m.analyzer == nil {
		return nil, rperrors.New(rperrors.UnableInteractWithIntegr, "There are no analyzers deployed.")
	}
	if err := m.analyzer.AnalyzeLaunch(ctx, project, launch, rq); err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("Auto-analyzer for launch ID='%d' launched.", launch.ID),
	}, nil
}
