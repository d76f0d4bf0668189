// Package filters manages the saved launch filters of a project.
package filters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	"github.com/reportportal/service-api/pkg/api/activities"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const targetLaunch = "Launch"

type Manager struct {
	dbc      *db.DB
	recorder *activities.Recorder
}

func NewManager(dbc *db.DB, recorder *activities.Recorder) *Manager {
	return &Manager{dbc: dbc, recorder: recorder}
}

// validate checks the request and that its conditions and orders can be applied to
// launches.
func validate(rq apitype.UpdateUserFilterRQ) error {
	name := strings.TrimSpace(rq.Name)
	if len(name) < 3 || len(name) > 128 {
		return rperrors.New(rperrors.BadSaveUserFilterRequest, "Filter name should have size from 3 to 128")
	}
	if rq.ObjectType != "" && !strings.EqualFold(rq.ObjectType, targetLaunch) {
		return rperrors.New(rperrors.BadSaveUserFilterRequest, "Unsupported filter target '"+rq.ObjectType+"'")
	}
	if len(rq.Conditions) == 0 {
		return rperrors.New(rperrors.BadSaveUserFilterRequest, "Filter should contain at least one condition")
	}
	if len(rq.Orders) == 0 {
		return rperrors.New(rperrors.BadSaveUserFilterRequest, "Filter should contain at least one order")
	}
	for _, c := range rq.Conditions {
		if _, ok := query.LaunchColumns[c.FilteringField]; !ok {
			return rperrors.New(rperrors.BadSaveUserFilterRequest, "Unknown filtering field '"+c.FilteringField+"'")
		}
		if _, err := filter.ParseCondition(c.Condition, c.FilteringField, c.Value); err != nil {
			return rperrors.New(rperrors.BadSaveUserFilterRequest, err.Error())
		}
	}
	for _, o := range rq.Orders {
		if _, ok := query.LaunchColumns[o.SortingColumn]; !ok {
			return rperrors.New(rperrors.BadSaveUserFilterRequest, "Unknown sorting column '"+o.SortingColumn+"'")
		}
	}
	return nil
}

func checkUniqueName(tx *gorm.DB, projectID uint, owner, name string, exceptID uint) error {
	var count int64
	res := tx.Model(&models.UserFilter{}).
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

func (m *Manager) CreateFilter(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.UpdateUserFilterRQ) (*apitype.EntryCreatedRS, error) {
	if err := validate(rq); err != nil {
		return nil, err
	}
	conditions, err := models.ToJSONB(rq.Conditions)
	if err != nil {
		return nil, err
	}
	orders, err := models.ToJSONB(rq.Orders)
	if err != nil {
		return nil, err
	}
	f := &models.UserFilter{
		ProjectID:   project.ID,
		Owner:       user.Login,
		Name:        strings.TrimSpace(rq.Name),
		Description: rq.Description,
		TargetType:  targetLaunch,
		Conditions:  conditions,
		Orders:      orders,
		Shared:      rq.Share != nil && *rq.Share,
	}
	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUniqueName(tx, project.ID, user.Login, f.Name, 0); err != nil {
			return err
		}
		return tx.Create(f).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionCreateFilter, activities.ObjectFilter, f.ID, f.Name, nil)
	return &apitype.EntryCreatedRS{ID: f.ID}, nil
}

// FindVisible returns a filter of the project that login owns or that is shared.
func FindVisible(dbc *gorm.DB, projectID uint, login string, id uint) (*models.UserFilter, error) {
	f := &models.UserFilter{}
	res := api.Visible(dbc, "user_filters", projectID, login).First(f, "user_filters.id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, rperrors.New(rperrors.UserFilterNotFound, id)
		}
		return nil, res.Error
	}
	return f, nil
}

func GetFilter(dbc *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.UserFilterResource, error) {
	f, err := FindVisible(dbc, project.ID, user.Login, id)
	if err != nil {
		return nil, err
	}
	res := api.UserFilterResource(*f)
	return &res, nil
}

// ListFilters pages through the filters the user can see in the project.
func ListFilters(dbc *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.UserFilterResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "name", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.UserFilterResource]{}, err
	}
	q := api.Visible(dbc.Model(&models.UserFilter{}), "user_filters", project.ID, user.Login)
	if req.URL.Query().Get("shared") == "true" {
		q = q.Where("user_filters.shared AND user_filters.owner <> ?", user.Login)
	}
	return api.FilteredPage(q, opts, query.OwnedColumns("user_filters"), convertAll)
}

// FiltersByIDs loads the requested filters, failing when one is not visible to login.
func FiltersByIDs(dbc *gorm.DB, projectID uint, login string, ids []uint) ([]models.UserFilter, error) {
	var rows []models.UserFilter
	if len(ids) == 0 {
		return rows, nil
	}
	res := api.Visible(dbc, "user_filters", projectID, login).Where("user_filters.id IN ?", ids).Find(&rows)
	if res.Error != nil {
		return nil, res.Error
	}
	found := map[uint]bool{}
	for _, f := range rows {
		found[f.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, rperrors.New(rperrors.UserFilterNotFound, id)
		}
	}
	return rows, nil
}

func convertAll(rows []models.UserFilter) ([]apitype.UserFilterResource, error) {
	result := make([]apitype.UserFilterResource, 0, len(rows))
	for _, f := range rows {
		result = append(result, api.UserFilterResource(f))
	}
	return result, nil
}

func findOwned(tx *gorm.DB, user *auth.ReportPortalUser, projectID, id uint) (*models.UserFilter, error) {
	f, err := FindVisible(tx, projectID, user.Login, id)
	if err != nil {
		return nil, err
	}
	if f.Owner != user.Login && !user.IsAdmin() {
		return nil, rperrors.New(rperrors.AccessDenied, "Only the owner can modify filter '"+f.Name+"'")
	}
	return f, nil
}

func (m *Manager) UpdateFilter(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint, rq apitype.UpdateUserFilterRQ) (*apitype.OperationCompletionRS, error) {
	if err := validate(rq); err != nil {
		return nil, err
	}
	var f *models.UserFilter
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		f, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		name := strings.TrimSpace(rq.Name)
		if err := checkUniqueName(tx, project.ID, f.Owner, name, f.ID); err != nil {
			return err
		}
		if f.Shared && rq.Share != nil && !*rq.Share {
			if err := unshareCheck(tx, f); err != nil {
				return err
			}
		}
		conditions, err := models.ToJSONB(rq.Conditions)
		if err != nil {
			return err
		}
		orders, err := models.ToJSONB(rq.Orders)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{
			"name":        name,
			"description": rq.Description,
			"conditions":  conditions,
			"orders":      orders,
		}
		if rq.Share != nil {
			updates["shared"] = *rq.Share
		}
		return tx.Model(f).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateFilter, activities.ObjectFilter, f.ID, f.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("User filter with ID = '%d' successfully updated.", f.ID)}, nil
}

// unshareCheck refuses to hide a filter that other users' widgets are built on.
func unshareCheck(tx *gorm.DB, f *models.UserFilter) error {
	var count int64
	res := tx.Table("widget_filters").
		Joins("JOIN widgets ON widgets.id = widget_filters.widget_id").
		Where("widget_filters.user_filter_id = ? AND widgets.owner <> ? AND widgets.deleted_at IS NULL", f.ID, f.Owner).
		Count(&count)
	if res.Error != nil {
		return res.Error
	}
	if count > 0 {
		return rperrors.New(rperrors.UnableModifySharable, "Filter '"+f.Name+"' is used by widgets of other users")
	}
	return nil
}

// DeleteFilter removes a filter together with its links to widgets.
func (m *Manager) DeleteFilter(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) (*apitype.OperationCompletionRS, error) {
	var f *models.UserFilter
	err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		f, err = findOwned(tx, user, project.ID, id)
		if err != nil {
			return err
		}
		if res := tx.Exec("DELETE FROM widget_filters WHERE user_filter_id = ?", f.ID); res.Error != nil {
			return res.Error
		}
		return tx.Unscoped().Delete(f).Error
	})
	if err != nil {
		return nil, err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionDeleteFilter, activities.ObjectFilter, f.ID, f.Name, nil)
	return &apitype.OperationCompletionRS{Message: fmt.Sprintf("User filter with ID = '%d' successfully deleted.", f.ID)}, nil
}

// Options turns stored filters into query options, one per filter.
func Options(filters []models.UserFilter) ([]*filter.FilterOptions, error) {
	result := make([]*filter.FilterOptions, 0, len(filters))
	for _, f := range filters {
		res := api.UserFilterResource(f)
		opts, err := filter.FromConditions(res.Conditions, res.Orders)
		if err != nil {
			return nil, err
		}
		result = append(result, opts)
	}
	return result, nil
}
