// Package activities records the audit trail of a project and lists it.
package activities

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/filter"
)

// Object types of recorded activities.
const (
	ObjectLaunch      = "LAUNCH"
	ObjectItem        = "ITEM"
	ObjectFilter      = "FILTER"
	ObjectDashboard   = "DASHBOARD"
	ObjectWidget      = "WIDGET"
	ObjectIntegration = "INTEGRATION"
	ObjectProject     = "PROJECT"
	ObjectDefectType  = "DEFECT_TYPE"
)

// Recorder stores activities and announces them on the bus.
type Recorder struct {
	dbc *db.DB
	bus *events.Bus
}

func NewRecorder(dbc *db.DB, bus *events.Bus) *Recorder {
	return &Recorder{dbc: dbc, bus: bus}
}

// Subscribe records the launch lifecycle events published by the reporting service.
func (r *Recorder) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.LaunchFinished, r.onLaunchEvent(models.ActionFinishLaunch))
	bus.Subscribe(events.LaunchDeleted, r.onLaunchEvent(models.ActionDeleteLaunch))
	bus.Subscribe(events.LaunchesMerged, r.onLaunchEvent(models.ActionMergeLaunches))
}

func (r *Recorder) onLaunchEvent(action models.ActivityAction) events.Handler {
	return func(ctx context.Context, e events.Event) error {
		if e.Launch == nil {
			return nil
		}
		return r.Record(ctx, e.ProjectID, e.Login, action, ObjectLaunch, e.Launch.ID,
			fmt.Sprintf("%s #%d", e.Launch.Name, e.Launch.Number), nil)
	}
}

// Record stores one activity. Failures are returned but callers usually only log them, the
// audited operation has already happened.
func (r *Recorder) Record(ctx context.Context, projectID uint, login string, action models.ActivityAction,
	objectType string, objectID uint, objectName string, details map[string]interface{}) error {
	activity := &models.Activity{
		ProjectID:  projectID,
		Username:   login,
		Action:     string(action),
		ObjectType: objectType,
		ObjectID:   objectID,
		ObjectName: objectName,
	}
	if details != nil {
		jsonb, err := models.ToJSONB(details)
		if err != nil {
			return err
		}
		activity.Details = jsonb
	}
	if login != "" {
		var user models.User
		if res := r.dbc.DB.WithContext(ctx).Select("id").First(&user, "login = ?", login); res.Error == nil {
			activity.UserID = user.ID
		}
	}
	if res := r.dbc.DB.WithContext(ctx).Create(activity); res.Error != nil {
		log.WithError(res.Error).WithField("action", action).Error("error recording activity")
		return res.Error
	}
	r.bus.Publish(ctx, events.Event{Type: events.ActivityCreated, ProjectID: projectID, Login: login, Activity: activity})
	return nil
}

// RecordQuietly is Record for callers that only log failures.
func (r *Recorder) RecordQuietly(ctx context.Context, projectID uint, login string, action models.ActivityAction,
	objectType string, objectID uint, objectName string, details map[string]interface{}) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, projectID, login, action, objectType, objectID, objectName, details); err != nil {
		log.WithError(err).Warn("activity not recorded")
	}
}

// ListActivities pages through the activities of a project, newest first by default.
func ListActivities(dbc *gorm.DB, projectID uint, req *http.Request) (apitype.Page[apitype.ActivityResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "lastModified", apitype.SortDescending)
	if err != nil {
		return apitype.Page[apitype.ActivityResource]{}, err
	}
	return listActivities(dbc.Model(&models.Activity{}).Where("activities.project_id = ?", projectID), opts)
}

// ListForObject returns the activities about a single entity.
func ListForObject(dbc *gorm.DB, projectID uint, objectType string, objectID uint, req *http.Request) (apitype.Page[apitype.ActivityResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "lastModified", apitype.SortDescending)
	if err != nil {
		return apitype.Page[apitype.ActivityResource]{}, err
	}
	q := dbc.Model(&models.Activity{}).
		Where("activities.project_id = ? AND activities.object_type = ? AND activities.object_id = ?", projectID, objectType, objectID)
	return listActivities(q, opts)
}

func listActivities(q *gorm.DB, opts *filter.FilterOptions) (apitype.Page[apitype.ActivityResource], error) {
	page, err := api.FilteredPage(q, opts, query.ActivityColumns, func(rows []models.Activity) ([]apitype.ActivityResource, error) {
		content := make([]apitype.ActivityResource, 0, len(rows))
		for _, a := range rows {
			content = append(content, api.ActivityResource(a))
		}
		return content, nil
	})
	if err != nil {
		log.WithError(err).Error("error listing activities")
	}
	return page, err
}
