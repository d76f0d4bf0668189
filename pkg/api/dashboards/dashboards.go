// Package dashboards manages dashboards and the placement of widgets on them.
package dashboards

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	"github.com/reportportal/service-api/pkg/api/widgets"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

type Manager struct {
	dbc      *db.DB
	recorder *activities.Recorder
}

func NewManager(dbc *db.DB, recorder *activities.Recorder) *Manager {
	return &Manager{dbc: dbc, recorder: recorder}
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 128 {
		return rperrors.New(rperrors.IncorrectRequest, "Dashboard name should have size from 3 to 128")
	}
	return nil
}

func checkUniqueName(tx *gorm.DB, projectID uint, owner, name string, exceptID uint) error {
	var count int64
	res := tx.Model(&models.Dashboard{}).
		Where("project_id = ? AND owner = ? AND name = ? AND id <> ?", projectID, owner, name, exceptID).
		Count(&count)
	if res.Error != nil {
		return res.Error
	}
	if count > 0 {
		return rperrors.New(rperrors.ResourceAlreadyExists, name)
	}
	return nil
}

func (m *Manager) CreateDashboard(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.CreateDashboardRQ) (*apitype.EntryCreatedRS, error) {
	if err := validateName(rq.Name); err != nil {
		return nil, err
	}
	d := &models.Dashboard{
		ProjectID:   project.ID,
		Owner:       user.Login,
		Name:        strings.TrimSpace(rq.Name),
		Description: rq.Description,
		Shared:      rq.Share,
	}
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUniqueName(tx, project.ID, user.Login, d.Name, 0); err != nil {
			return err
		}
		return tx.Create(d).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionCreateDashboard, activities.ObjectDashboard, d.ID, d.Name, nil)
	return &apitype.EntryCreatedRS{ID: d.ID}, nil
}

func findVisible(dbc *gorm.DB, projectID uint, login string, id uint) (*models.Dashboard, error) {
	d := &models.Dashboard{}
	res := api.Visible(dbc, "dashboards", projectID, login).Preload("Widgets").First(d, "dashboards.id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.DashboardNotFound, id)
		}
		return nil, res.Error
	}
	return d, nil
}

func findOwned(tx *gorm.DB, user *auth.ReportPortalUser, projectID, id uint) (*models.Dashboard, error) {
	d, err := findVisible(tx, projectID, user.Login, id)
	if err != nil {
		return nil, err
	}
	if d.Owner != user.Login && !user.IsAdmin() {
		return nil, rperrors.New(rperrors.AccessDenied, "Only the owner can modify dashboard '"+d.Name+"'")
	}
	return d, nil
}

func resource(d models.Dashboard) apitype.DashboardResource {
	res := apitype.DashboardResource{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Owner:       d.Owner,
		Share:       d.Shared,
		Widgets:     make([]apitype.WidgetObjectModel, 0, len(d.Widgets)),
	}
	for _, w := range d.Widgets {
		res.Widgets = append(res.Widgets, apitype.WidgetObjectModel{
			WidgetID:   w.WidgetID,
			WidgetName: w.WidgetName,
			WidgetType: w.WidgetType,
			Size:       apitype.Size{Width: w.Width, Height: w.Height},
			Position:   apitype.Position{X: w.PositionX, Y: w.PositionY},
			Share:      w.Share,
		})
	}
	return res
}

func GetDashboard(dbc *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.DashboardResource, error) {
	d, err := findVisible(dbc, project.ID, user.Login, id)
	if err != nil {
		return nil, err
	}
	res := resource(*d)
	return &res, nil
}

func ListDashboards(dbc *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.DashboardResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "name", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.DashboardResource]{}, err
	}
	q := api.Visible(dbc.Model(&models.Dashboard{}), "dashboards", project.ID, user.Login).Preload("Widgets")
	return api.FilteredPage(q, opts, query.OwnedColumns("dashboards"), func(rows []models.Dashboard) ([]apitype.DashboardResource, error) {
		result := make([]apitype.DashboardResource, 0, len(rows))
		for _, d := range rows {
			result = append(result, resource(d))
		}
		return result, nil
	})
}

func placement(d *models.Dashboard, widgetID uint) *models.DashboardWidget {
	for i := range d.Widgets {
		if d.Widgets[i].WidgetID == widgetID {
			return &d.Widgets[i]
		}
	}
	return nil
}

// UpdateDashboard changes the dashboard attributes and moves or resizes widgets already
// placed on it.
func (m *Manager) UpdateDashboard(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint, rq apitype.UpdateDashboardRQ) (*apitype.OperationCompletionRS, error) {
	if err := validateName(rq.Name); err != nil {
		return nil, err
	}
	var d *models.Dashboard
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(rq.Name)
		if err := checkUniqueName(tx, project.ID, d.Owner, name, d.ID); err != nil {
			return err
		}
		updates := map[string]interface{}{"name": name, "description": rq.Description}
		if rq.Share != nil {
			updates["shared"] = *rq.Share
		}
		if res := tx.Model(d).Updates(updates); res.Error != nil {
			return res.Error
		}
		for _, w := range rq.Widgets {
			p := placement(d, w.WidgetID)
			if p == nil {
				return rperrors.New(rperrors.WidgetNotFoundInDashboard, w.WidgetID)
			}
			res := tx.Model(p).Updates(map[string]interface{}{
				"width":      w.Size.Width,
				"height":     w.Size.Height,
				"position_x": w.Position.X,
				"position_y": w.Position.Y,
			})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateDashboard, activities.ObjectDashboard, d.ID, d.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Dashboard with ID = '%d' successfully updated", d.ID)}, nil
}

// AddWidget places a visible widget on the dashboard.
func (m *Manager) AddWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint, rq apitype.AddWidgetRq) (*apitype.OperationCompletionRS, error) {
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		if placement(d, rq.AddWidget.WidgetID) != nil {
			return rperrors.New(rperrors.DashboardUpdateError, fmt.Sprintf("Widget with ID '%d' is already added to the dashboard", rq.AddWidget.WidgetID))
		}
		w, err := widgets.FindVisible(tx, project.ID, user.Login, rq.AddWidget.WidgetID)
		if err != nil {
			return err
		}
		return tx.Create(&models.DashboardWidget{
			DashboardID: d.ID,
			WidgetID:    w.ID,
			WidgetName:  w.Name,
			WidgetType:  w.WidgetType,
			Width:       rq.AddWidget.Size.Width,
			Height:      rq.AddWidget.Size.Height,
			PositionX:   rq.AddWidget.Position.X,
			PositionY:   rq.AddWidget.Position.Y,
			Share:       w.Shared,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("Widget with ID = '%d' was successfully added to the dashboard with ID = '%d'", rq.AddWidget.WidgetID, id),
	}, nil
}

// RemoveWidget takes a widget off the dashboard. A widget of the dashboard owner that is
// not placed anywhere else is deleted.
func (m *Manager) RemoveWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id, widgetID uint) (*apitype.OperationCompletionRS, error) {
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		d, err := findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		if placement(d, widgetID) == nil {
			return rperrors.New(rperrors.WidgetNotFoundInDashboard, widgetID)
		}
		if res := tx.Where("dashboard_id = ? AND widget_id = ?", d.ID, widgetID).Delete(&models.DashboardWidget{}); res.Error != nil {
			return res.Error
		}
		_, err = deleteOrphanedWidgets(tx, d.Owner, []uint{widgetID})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{
		Message: fmt.Sprintf("Widget with ID = '%d' was successfully removed from the dashboard with ID = '%d'", widgetID, id),
	}, nil
}

// deleteOrphanedWidgets deletes the widgets of owner that are no longer placed on any
// dashboard.
func deleteOrphanedWidgets(tx *gorm.DB, owner string, widgetIDs []uint) ([]uint, error) {
	if len(widgetIDs) == 0 {
		return nil, nil
	}
	var orphaned []uint
	res := tx.Model(&models.Widget{}).
		Where("id IN ? AND owner = ? AND NOT EXISTS (SELECT 1 FROM dashboard_widgets dw WHERE dw.widget_id = widgets.id)", widgetIDs, owner).
		Pluck("id", &orphaned)
	if res.Error != nil {
		return nil, res.Error
	}
	for _, id := range orphaned {
		if err := widgets.DeleteInTx(tx, id); err != nil {
			return nil, err
		}
	}
	return orphaned, nil
}

// DeleteDashboard deletes the dashboard together with the widgets of its owner that were only
// placed on it.
func (m *Manager) DeleteDashboard(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.OperationCompletionRS, error) {
	var d *models.Dashboard
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		widgetIDs := make([]uint, 0, len(d.Widgets))
		for _, w := range d.Widgets {
			widgetIDs = append(widgetIDs, w.WidgetID)
		}
		if res := tx.Where("dashboard_id = ?", d.ID).Delete(&models.DashboardWidget{}); res.Error != nil {
			return res.Error
		}
		if _, err := deleteOrphanedWidgets(tx, d.Owner, widgetIDs); err != nil {
			return err
		}
		return tx.Unscoped().Delete(&models.Dashboard{}, d.ID).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionDeleteDashboard, activities.ObjectDashboard, d.ID, d.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Dashboard with ID = '%d' successfully deleted.", d.ID)}, nil
}
