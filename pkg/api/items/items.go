// Package items serves test item reads, updates and defect management.
package items

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

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
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

// Manager performs the item operations that change data.
type Manager struct {
	dbc      *db.DB
	bus      *events.Bus
	store    storage.DataStore
	recorder *activities.Recorder
}

func NewManager(dbc *db.DB, bus *events.Bus, store storage.DataStore, recorder *activities.Recorder) *Manager {
	return &Manager{dbc: dbc, bus: bus, store: store, recorder: recorder}
}

// findItem resolves an item by numeric id or uuid and checks it belongs to the project.
func findItem(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*models.TestItem, *models.Launch, error) {
	var item *models.TestItem
	var err error
	if id, perr := strconv.ParseUint(idOrUUID, 10, 64); perr == nil {
		item, err = query.TestItemByID(dbc, uint(id))
	} else {
		item, err = query.TestItemByUUID(dbc, idOrUUID)
	}
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, rperrors.New(rperrors.TestItemNotFound, idOrUUID)
	}
	launch, err := query.LaunchByID(dbc, item.LaunchID)
	if err != nil {
		return nil, nil, err
	}
	if launch == nil || launch.ProjectID != project.ID {
		return nil, nil, rperrors.New(rperrors.TestItemNotFound, idOrUUID)
	}
	return item, launch, nil
}

func itemID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func resources(dbc *gorm.DB, items []models.TestItem) ([]apitype.TestItemResource, error) {
	ids := make([]uint, 0, len(items))
	for _, i := range items {
		ids = append(ids, i.ID)
	}
	stats, err := query.ItemStatistics(dbc, ids...)
	if err != nil {
		return nil, err
	}
	result := make([]apitype.TestItemResource, 0, len(items))
	for _, i := range items {
		result = append(result, api.TestItemResource(i, stats[i.ID]))
	}
	return result, nil
}

// GetItem returns an item with the names of its launch and ancestors and its retries.
func GetItem(dbc *gorm.DB, project *auth.ProjectDetails, idOrUUID string) (*apitype.TestItemResource, error) {
	item, launch, err := findItem(dbc, project, idOrUUID)
	if err != nil {
		return nil, err
	}
	res, err := resources(dbc, []models.TestItem{*item})
	if err != nil {
		return nil, err
	}
	rs := res[0]

	ancestors, err := query.Ancestors(dbc, *item)
	if err != nil {
		return nil, err
	}
	rs.PathNames = &apitype.PathName{LaunchPathName: apitype.LaunchPathName{Name: launch.Name, Number: launch.Number}}
	for _, a := range ancestors {
		rs.PathNames.ItemPaths = append(rs.PathNames.ItemPaths, apitype.ItemPathName{ID: a.ID, Name: a.Name})
	}

	if item.HasRetries {
		var retries []models.TestItem
		if res := dbc.Preload("Attributes").Preload("Parameters").Where("retry_of = ?", item.ID).Order("start_time").Find(&retries); res.Error != nil {
			return nil, res.Error
		}
		if rs.Retries, err = resources(dbc, retries); err != nil {
			return nil, err
		}
	}
	return &rs, nil
}

// ListItems pages through the items of the project. Retries are listed with the item they
// retried, not on their own.
func ListItems(dbc *gorm.DB, project *auth.ProjectDetails, req *http.Request) (apitype.Page[apitype.TestItemResource], error) {
	opts, err := filter.FilterOptionsFromRequest(req, "startTime", apitype.SortAscending)
	if err != nil {
		return apitype.Page[apitype.TestItemResource]{}, err
	}
	q := dbc.Model(&models.TestItem{}).
		Preload("Attributes").Preload("Parameters").Preload("Issue.IssueType").Preload("Issue.Tickets").
		Where("test_items.launch_id IN (SELECT id FROM launches WHERE project_id = ?)", project.ID).
		Where("test_items.retry_of IS NULL")
	if v := req.URL.Query().Get("launchId"); v != "" {
		id, err := api.ParseID(v)
		if err != nil {
			return apitype.Page[apitype.TestItemResource]{}, err
		}
		q = q.Where("test_items.launch_id = ?", id)
	}
	if v := req.URL.Query().Get("parentId"); v != "" {
		id, err := api.ParseID(v)
		if err != nil {
			return apitype.Page[apitype.TestItemResource]{}, err
		}
		q = q.Where("test_items.parent_id = ?", id)
	}
	return api.FilteredPage(q, opts, query.TestItemColumns, func(rows []models.TestItem) ([]apitype.TestItemResource, error) {
		return resources(dbc, rows)
	})
}

func canModify(user *auth.ReportPortalUser, project *auth.ProjectDetails, launch *models.Launch) bool {
	return user.IsAdmin() || launch.UserID == user.ID || project.Role.SameOrHigherThan(apitype.ProjectRoleProjectManager)
}

// UpdateItem changes the description, attributes or the final status of an item.
func (m *Manager) UpdateItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	id uint, rq apitype.UpdateTestItemRQ) error {
	dbc := m.dbc.DB.WithContext(ctx)
	item, launch, err := findItem(dbc, project, itemID(id))
	if err != nil {
		return err
	}
	if !canModify(user, project, launch) {
		return rperrors.New(rperrors.AccessDenied, "You are not a launch owner.")
	}

	var status apitype.Status
	if rq.Status != "" {
		var ok bool
		if status, ok = apitype.ParseStatus(rq.Status); !ok || status == apitype.StatusInProgress {
			return rperrors.New(rperrors.IncorrectRequest, "Unable to update status to '"+rq.Status+"'")
		}
		if item.HasChildren || item.Status == string(apitype.StatusInProgress) {
			return rperrors.New(rperrors.IncorrectRequest,
				fmt.Sprintf("Unable to update status of test item '%d'. Only finished items without children can be updated", item.ID))
		}
	}

	err = dbc.Transaction(func(tx *gorm.DB) error {
		if rq.Description != nil {
			if res := tx.Model(item).Update("description", *rq.Description); res.Error != nil {
				return res.Error
			}
		}
		if rq.Attributes != nil {
			if res := tx.Where("item_id = ? AND NOT system", item.ID).Delete(&models.ItemAttribute{}); res.Error != nil {
				return res.Error
			}
			var attrs []models.ItemAttribute
			for _, a := range reporting.AttributesToModels(rq.Attributes, nil, &item.ID) {
				if !a.System {
					attrs = append(attrs, a)
				}
			}
			if len(attrs) > 0 {
				if res := tx.Create(&attrs); res.Error != nil {
					return res.Error
				}
			}
		}
		if status != "" && string(status) != item.Status {
			return reporting.ChangeItemStatus(tx, item, status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUpdateItem, activities.ObjectItem, item.ID, item.Name, nil)
	return nil
}

// DeleteItem removes a finished item of a finished launch together with its descendants.
func (m *Manager) DeleteItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, id uint) error {
	dbc := m.dbc.DB.WithContext(ctx)
	item, launch, err := findItem(dbc, project, itemID(id))
	if err != nil {
		return err
	}
	if !canModify(user, project, launch) {
		return rperrors.New(rperrors.AccessDenied, "You are not a launch owner.")
	}
	if item.Status == string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.TestItemIsNotFinished, fmt.Sprintf("Unable to delete test item ['%d'] in progress state", item.ID))
	}
	if launch.Status == string(apitype.StatusInProgress) {
		return rperrors.New(rperrors.LaunchIsNotFinished,
			fmt.Sprintf("Unable to delete test item ['%d'] under launch ['%d'] with status '%s'", item.ID, launch.ID, launch.Status))
	}

	var files []string
	err = dbc.Transaction(func(tx *gorm.DB) error {
		descendants, err := query.Descendants(tx, item.Path)
		if err != nil {
			return err
		}
		ids := []uint{item.ID}
		for _, d := range descendants {
			ids = append(ids, d.ID)
		}
		var retries []uint
		if res := tx.Model(&models.TestItem{}).Where("retry_of IN ?", ids).Pluck("id", &retries); res.Error != nil {
			return res.Error
		}
		if files, err = query.DeleteItems(tx, append(ids, retries...)); err != nil {
			return err
		}
		return recalculateAfterDelete(tx, *item)
	})
	if err != nil {
		log.WithError(err).WithField("item", item.ID).Error("error deleting test item")
		return err
	}
	for _, f := range files {
		if m.store == nil {
			break
		}
		if err := m.store.Delete(ctx, f); err != nil {
			log.WithError(err).WithField("file", f).Warn("could not delete attachment file")
		}
	}
	return nil
}

// recalculateAfterDelete rebuilds the counters and statuses above a removed item.
func recalculateAfterDelete(tx *gorm.DB, removed models.TestItem) error {
	ids := query.PathIDs(removed.Path)
	ancestors := ids[:len(ids)-1]
	for i := len(ancestors) - 1; i >= 0; i-- {
		if err := reporting.RecalculateItemStatistics(tx, ancestors[i]); err != nil {
			return err
		}
	}
	if removed.ParentID != nil {
		var remaining int64
		if res := tx.Model(&models.TestItem{}).Where("parent_id = ?", *removed.ParentID).Count(&remaining); res.Error != nil {
			return res.Error
		}
		if remaining == 0 {
			if res := tx.Model(&models.TestItem{}).Where("id = ?", *removed.ParentID).Update("has_children", false); res.Error != nil {
				return res.Error
			}
		}
	}
	if err := reporting.RecalculateLaunchStatistics(tx, removed.LaunchID); err != nil {
		return err
	}
	return reporting.RefreshStatuses(tx, removed)
}

// DeleteItems deletes every item independently and reports the outcome per id.
func (m *Manager) DeleteItems(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails, ids []uint) apitype.DeleteBulkRS {
	rs := apitype.DeleteBulkRS{Deleted: []uint{}, NotFound: []uint{}, Errors: []apitype.ErrorRS{}}
	for _, id := range ids {
		err := m.DeleteItem(ctx, user, project, id)
		switch {
		case err == nil:
			rs.Deleted = append(rs.Deleted, id)
		case rperrors.Is(err, rperrors.TestItemNotFound):
			rs.NotFound = append(rs.NotFound, id)
		default:
			rs.Errors = append(rs.Errors, api.ErrorResponse(err))
		}
	}
	return rs
}

func ticketModels(user *auth.ReportPortalUser, issues []apitype.ExternalSystemIssue, now time.Time) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(issues))
	for _, i := range issues {
		submitted := now
		if i.SubmitDate != nil && !i.SubmitDate.IsZero() {
			submitted = i.SubmitDate.UTC()
		}
		tickets = append(tickets, models.Ticket{
			TicketID:    i.TicketID,
			URL:         i.URL,
			BtsURL:      i.BtsURL,
			BtsProject:  i.BtsProject,
			SubmitterID: user.ID,
			SubmitDate:  submitted,
			PluginName:  i.PluginName,
		})
	}
	return tickets
}

func validateTickets(issues []apitype.ExternalSystemIssue) error {
	for _, i := range issues {
		if i.TicketID == "" || i.URL == "" || i.BtsURL == "" || i.BtsProject == "" {
			return rperrors.New(rperrors.BadRequest, "ticketId, url, btsUrl and btsProject are required for external issues")
		}
	}
	return nil
}

// DefineIssues changes the issue of failed items, moving their defect counters to the new
// type. Items changed manually are no longer marked as auto analyzed.
func (m *Manager) DefineIssues(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.DefineIssueRQ) ([]apitype.Issue, error) {
	if len(rq.Issues) == 0 {
		return nil, rperrors.New(rperrors.BadRequest, "issues")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	result := make([]apitype.Issue, 0, len(rq.Issues))
	var updated []uint
	var names []string

	err := dbc.Transaction(func(tx *gorm.DB) error {
		for _, def := range rq.Issues {
			item, _, err := findItem(tx, project, itemID(def.ID))
			if err != nil {
				return err
			}
			if item.Issue == nil {
				return rperrors.New(rperrors.FailedIssueTypeDefinition,
					fmt.Sprintf("Cannot update issue type for test item '%d', cause there is no info about actual issue type value.", item.ID))
			}
			if err := validateTickets(def.Issue.ExternalSystemIssues); err != nil {
				return err
			}
			newType, err := reporting.IssueTypeByLocator(tx, project.ID, def.Issue.IssueType)
			if err != nil {
				return err
			}
			if newType == nil {
				return rperrors.New(rperrors.IssueTypeNotFound, def.Issue.IssueType)
			}

			oldType := item.Issue.IssueType
			if oldType.ID != newType.ID {
				if err := reporting.MoveIssueStatistics(tx, *item, &oldType, newType); err != nil {
					return err
				}
			}
			res := tx.Model(&models.Issue{}).Where("item_id = ?", item.ID).Updates(map[string]interface{}{
				"issue_type_id":   newType.ID,
				"comment":         def.Issue.Comment,
				"auto_analyzed":   false,
				"ignore_analyzer": def.Issue.IgnoreAnalyzer,
			})
			if res.Error != nil {
				return res.Error
			}
			if len(def.Issue.ExternalSystemIssues) > 0 {
				if _, err := query.LinkTickets(tx, []uint{item.ID}, ticketModels(user, def.Issue.ExternalSystemIssues, time.Now().UTC())); err != nil {
					return err
				}
			}
			issue := def.Issue
			issue.IssueType = newType.Locator
			issue.AutoAnalyzed = false
			result = append(result, issue)
			updated = append(updated, item.ID)
			names = append(names, item.Name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, id := range updated {
		m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionAnalyzeItem, activities.ObjectItem, id, names[i],
			map[string]interface{}{"issueType": result[i].IssueType})
	}
	m.bus.Publish(ctx, events.Event{Type: events.ItemsDefected, ProjectID: project.ID, Login: user.Login, ItemIDs: updated})
	return result, nil
}

// LinkTickets attaches external tickets to the issues of the items.
func (m *Manager) LinkTickets(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.LinkExternalIssueRQ) (*apitype.OperationCompletionRS, error) {
	if len(rq.TestItemIDs) == 0 || len(rq.Issues) == 0 {
		return nil, rperrors.New(rperrors.BadRequest, "testItemIds and issues should not be empty")
	}
	if err := validateTickets(rq.Issues); err != nil {
		return nil, err
	}
	dbc := m.dbc.DB.WithContext(ctx)
	var skipped []uint
	err := dbc.Transaction(func(tx *gorm.DB) error {
		for _, id := range rq.TestItemIDs {
			if _, _, err := findItem(tx, project, itemID(id)); err != nil {
				return err
			}
		}
		var err error
		skipped, err = query.LinkTickets(tx, rq.TestItemIDs, ticketModels(user, rq.Issues, time.Now().UTC()))
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(skipped) > 0 {
		return nil, rperrors.New(rperrors.FailedIssueTypeDefinition, fmt.Sprintf("Test items %v have no issue to link tickets to", skipped))
	}
	for _, id := range rq.TestItemIDs {
		m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionLinkIssue, activities.ObjectItem, id, "", nil)
	}
	return &apitype.OperationCompletionRS{Message: "Tickets linked"}, nil
}

// UnlinkTickets detaches external tickets from the issues of the items.
func (m *Manager) UnlinkTickets(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.UnlinkExternalIssueRQ) (*apitype.OperationCompletionRS, error) {
	if len(rq.TestItemIDs) == 0 || len(rq.TicketIDs) == 0 {
		return nil, rperrors.New(rperrors.BadRequest, "testItemIds and ticketIds should not be empty")
	}
	dbc := m.dbc.DB.WithContext(ctx)
	err := dbc.Transaction(func(tx *gorm.DB) error {
		for _, id := range rq.TestItemIDs {
			if _, _, err := findItem(tx, project, itemID(id)); err != nil {
				return err
			}
		}
		return query.UnlinkTickets(tx, rq.TestItemIDs, rq.TicketIDs)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range rq.TestItemIDs {
		m.recorder.RecordQuietly(ctx, project.ID, user.Login, models.ActionUnlinkIssue, activities.ObjectItem, id, "", nil)
	}
	return &apitype.OperationCompletionRS{Message: "Tickets unlinked"}, nil
}

// TicketIDs suggests ticket keys linked to items of the launch that contain term.
func TicketIDs(dbc *gorm.DB, project *auth.ProjectDetails, launchID uint, term string) ([]string, error) {
	if len(term) < 1 {
		return nil, rperrors.New(rperrors.IncorrectFilterParameters, "term should not be empty")
	}
	ids := []string{}
	res := dbc.Table("tickets").
		Distinct("tickets.ticket_id").
		Joins("JOIN issue_tickets it ON it.ticket_id = tickets.id").
		Joins("JOIN test_items ti ON ti.id = it.issue_id").
		Joins("JOIN launches l ON l.id = ti.launch_id").
		Where("l.project_id = ? AND l.id = ? AND tickets.ticket_id ILIKE ?", project.ID, launchID, "%"+term+"%").
		Order("tickets.ticket_id").
		Limit(50).
		Pluck("tickets.ticket_id", &ids)
	return ids, res.Error
}
