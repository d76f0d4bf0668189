// Package widgets manages dashboard widgets and serves their content.
package widgets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	"github.com/reportportal/service-api/pkg/api/filters"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/widget"
)

type Manager struct {
	dbc      *db.DB
	recorder *activities.Recorder
	provider *widget.Provider
}

func NewManager(dbc *db.DB, recorder *activities.Recorder, provider *widget.Provider) *Manager {
	return &Manager{dbc: dbc, recorder: recorder, provider: provider}
}

func validateName(name string, errType rperrors.ErrorType) error {
	name = strings.TrimSpace(name)
	if len(name) < 3 || len(name) > 128 {
		return rperrors.New(errType, "Widget name should have size from 3 to 128")
	}
	return nil
}

func checkUniqueName(tx *gorm.DB, projectID uint, owner, name string, exceptID uint) error {
	var count int64
	res := tx.Model(&models.Widget{}).
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

func (m *Manager) CreateWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.WidgetRQ) (*apitype.EntryCreatedRS, error) {
	if err := validateName(rq.Name, rperrors.BadSaveWidgetRequest); err != nil {
		return nil, err
	}
	if err := widget.Validate(rq.WidgetType, rq.ContentParameters, len(rq.FilterIDs)); err != nil {
		return nil, err
	}
	options, err := models.ToJSONB(rq.ContentParameters.WidgetOptions)
	if err != nil {
		return nil, err
	}
	w := &models.Widget{
		ProjectID:     project.ID,
		Owner:         user.Login,
		Name:          strings.TrimSpace(rq.Name),
		Description:   rq.Description,
		WidgetType:    rq.WidgetType,
		ItemsCount:    rq.ContentParameters.ItemsCount,
		ContentFields: rq.ContentParameters.ContentFields,
		Options:       options,
		Shared:        rq.Share != nil && *rq.Share,
	}
	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUniqueName(tx, project.ID, user.Login, w.Name, 0); err != nil {
			return err
		}
		fs, err := filters.FiltersByIDs(tx, project.ID, user.Login, rq.FilterIDs)
		if err != nil {
			return err
		}
		w.Filters = fs
		return tx.Omit("Filters.*").Create(w).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionCreateWidget, activities.ObjectWidget, w.ID, w.Name, nil)
	return &apitype.EntryCreatedRS{ID: w.ID}, nil
}

// FindVisible returns a widget of the project that login owns or that is shared.
func FindVisible(dbc *gorm.DB, projectID uint, login string, id uint) (*models.Widget, error) {
	w := &models.Widget{}
	res := api.Visible(dbc, "widgets", projectID, login).Preload("Filters").First(w, "widgets.id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.WidgetNotFound, id)
		}
		return nil, res.Error
	}
	return w, nil
}

func resource(w models.Widget) apitype.WidgetResource {
	res := apitype.WidgetResource{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		WidgetType:  w.WidgetType,
		ContentParameters: apitype.ContentParameters{
			ContentFields: w.ContentFields,
			ItemsCount:    w.ItemsCount,
			WidgetOptions: map[string]interface{}{},
		},
		AppliedFilters: make([]apitype.UserFilterResource, 0, len(w.Filters)),
		Owner:          w.Owner,
		Share:          w.Shared,
	}
	if res.ContentParameters.ContentFields == nil {
		res.ContentParameters.ContentFields = []string{}
	}
	_ = models.FromJSONB(w.Options, &res.ContentParameters.WidgetOptions)
	for _, f := range w.Filters {
		res.AppliedFilters = append(res.AppliedFilters, api.UserFilterResource(f))
	}
	return res
}

// GetWidget returns the widget with its content.
func (m *Manager) GetWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint, forceRefresh bool) (*apitype.WidgetResource, error) {
	w, err := FindVisible(m.dbc.DB.WithContext(ctx), project.ID, user.Login, id)
	if err != nil {
		return nil, err
	}
	opts, err := filters.Options(w.Filters)
	if err != nil {
		return nil, rperrors.New(rperrors.UnableLoadWidgetContent, err.Error())
	}
	content, err := m.provider.Content(ctx, *w, opts, forceRefresh)
	if err != nil {
		log.WithError(err).WithField("widget", w.ID).Warn("could not load widget content")
		if _, ok := rperrors.As(err); !ok {
			err = rperrors.New(rperrors.UnableLoadWidgetContent, err.Error())
		}
		return nil, err
	}
	res := resource(*w)
	res.Content = content
	return &res, nil
}

// PreviewWidget builds the content of a widget that is not saved yet.
func (m *Manager) PreviewWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, rq apitype.WidgetRQ) (widget.Content, error) {
	if err := widget.Validate(rq.WidgetType, rq.ContentParameters, len(rq.FilterIDs)); err != nil {
		return nil, err
	}
	dbc := m.dbc.DB.WithContext(ctx)
	fs, err := filters.FiltersByIDs(dbc, project.ID, user.Login, rq.FilterIDs)
	if err != nil {
		return nil, err
	}
	opts, err := filters.Options(fs)
	if err != nil {
		return nil, err
	}
	return widget.Load(ctx, dbc, rq.WidgetType, widget.Request{
		ProjectID:     project.ID,
		Filters:       opts,
		ContentFields: rq.ContentParameters.ContentFields,
		ItemsCount:    rq.ContentParameters.ItemsCount,
		Options:       rq.ContentParameters.WidgetOptions,
	})
}

// ListWidgets pages through the widgets the user can see, without content.
func ListWidgets(dbc *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.WidgetResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "name", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.WidgetResource]{}, err
	}
	q := api.Visible(dbc.Model(&models.Widget{}), "widgets", project.ID, user.Login).Preload("Filters")
	return api.FilteredPage(q, opts, query.OwnedColumns("widgets"), func(rows []models.Widget) ([]apitype.WidgetResource, error) {
		result := make([]apitype.WidgetResource, 0, len(rows))
		for _, w := range rows {
			result = append(result, resource(w))
		}
		return result, nil
	})
}

func findOwned(tx *gorm.DB, user *auth.ReportPortalUser, projectID, id uint) (*models.Widget, error) {
	w, err := FindVisible(tx, projectID, user.Login, id)
	if err != nil {
		return nil, err
	}
	if w.Owner != user.Login && !user.IsAdmin() {
		return nil, rperrors.New(rperrors.AccessDenied, "Only the owner can modify widget '"+w.Name+"'")
	}
	return w, nil
}

func (m *Manager) UpdateWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint, rq apitype.WidgetRQ) (*apitype.OperationCompletionRS, error) {
	if err := validateName(rq.Name, rperrors.BadUpdateWidgetRequest); err != nil {
		return nil, err
	}
	var w *models.Widget
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		if rq.WidgetType == "" {
			rq.WidgetType = w.WidgetType
		}
		if err := widget.Validate(rq.WidgetType, rq.ContentParameters, len(rq.FilterIDs)); err != nil {
			return err
		}
		name := strings.TrimSpace(rq.Name)
		if err := checkUniqueName(tx, project.ID, w.Owner, name, w.ID); err != nil {
			return err
		}
		if w.Shared && rq.Share != nil && !*rq.Share {
			if err := unshareCheck(tx, w); err != nil {
				return err
			}
		}
		fs, err := filters.FiltersByIDs(tx, project.ID, user.Login, rq.FilterIDs)
		if err != nil {
			return err
		}
		options, err := models.ToJSONB(rq.ContentParameters.WidgetOptions)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"name":           name,
			"description":    rq.Description,
			"widget_type":    rq.WidgetType,
			"items_count":    rq.ContentParameters.ItemsCount,
			"content_fields": pq.StringArray(rq.ContentParameters.ContentFields),
			"options":        options,
		}
		if rq.Share != nil {
			updates["shared"] = *rq.Share
		}
		if res := tx.Model(w).Updates(updates); res.Error != nil {
			return res.Error
		}
		if res := tx.Exec("UPDATE dashboard_widgets SET widget_name = ?, widget_type = ? WHERE widget_id = ?", name, rq.WidgetType, w.ID); res.Error != nil {
			return res.Error
		}
		return tx.Model(w).Association("Filters").Replace(fs)
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateWidget, activities.ObjectWidget, w.ID, w.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Widget with ID = '%d' successfully updated.", w.ID)}, nil
}

// unshareCheck refuses to hide a widget placed on dashboards of other users.
func unshareCheck(tx *gorm.DB, w *models.Widget) error {
	var count int64
	res := tx.Table("dashboard_widgets").
		Joins("JOIN dashboards ON dashboards.id = dashboard_widgets.dashboard_id").
		Where("dashboard_widgets.widget_id = ? AND dashboards.owner <> ? AND dashboards.deleted_at IS NULL", w.ID, w.Owner).
		Count(&count)
	if res.Error != nil {
		return res.Error
	}
	if count > 0 {
		return rperrors.New(rperrors.UnableModifySharable, "Widget '"+w.Name+"' is placed on dashboards of other users")
	}
	return nil
}

// DeleteWidget removes the widget from every dashboard and deletes it.
func (m *Manager) DeleteWidget(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.OperationCompletionRS, error) {
	var w *models.Widget
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		w, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		return DeleteInTx(tx, w.ID)
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionDeleteWidget, activities.ObjectWidget, w.ID, w.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("Widget with ID = '%d' successfully deleted.", w.ID)}, nil
}

// DeleteInTx removes a widget with its dashboard placements and filter links.
func DeleteInTx(tx *gorm.DB, widgetID uint) error {
	if res := tx.Where("widget_id = ?", widgetID).Delete(&models.DashboardWidget{}); res.Error != nil {
		return res.Error
	}
	if res := tx.Exec("DELETE FROM widget_filters WHERE widget_id = ?", widgetID); res.Error != nil {
		return res.Error
	}
	return tx.Unscoped().Delete(&models.Widget{}, widgetID).Error
}
