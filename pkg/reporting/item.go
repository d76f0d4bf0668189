package reporting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// StartRootItem starts an item directly under a launch.
func (s *Service) StartRootItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	itemType, err := validateStartItem(rq)
	if err != nil {
		return nil, err
	}

	var item *models.TestItem
	err = s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		launch, err := query.LaunchByUUID(tx, rq.LaunchUUID)
		if err != nil {
			return err
		}
		if launch == nil {
			return rperrors.New(rperrors.LaunchNotFound, rq.LaunchUUID)
		}
		if err := validateRootItem(project, launch, rq); err != nil {
			return err
		}
		item, err = s.createItem(tx, project, launch, nil, nil, itemType, rq)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &apitype.ItemCreatedRS{ID: item.UUID, UniqueID: item.UniqueID}, nil
}

// StartChildItem starts an item under the parent with the given uuid.
func (s *Service) StartChildItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	parentUUID string, rq apitype.StartTestItemRQ) (*apitype.ItemCreatedRS, error) {
	itemType, err := validateStartItem(rq)
	if err != nil {
		return nil, err
	}

	var item *models.TestItem
	err = s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		parent, err := query.TestItemByUUID(tx, parentUUID)
		if err != nil {
			return err
		}
		if parent == nil {
			return rperrors.New(rperrors.TestItemNotFound, parentUUID)
		}
		launch, err := query.LaunchByID(tx, parent.LaunchID)
		if err != nil {
			return err
		}
		if launch == nil {
			return rperrors.New(rperrors.LaunchNotFound, parent.LaunchID)
		}
		if launch.ProjectID != project.ID {
			return rperrors.New(rperrors.AccessDenied, "Launch '"+launch.UUID+"' is not under the specified project.")
		}
		hasLogs, err := query.HasLogs(tx, parent.ID)
		if err != nil {
			return err
		}
		if err := validateChildItem(parent, hasLogs, rq); err != nil {
			return err
		}
		ancestors, err := query.Ancestors(tx, *parent)
		if err != nil {
			return err
		}
		item, err = s.createItem(tx, project, launch, parent, append(ancestors, *parent), itemType, rq)
		if err != nil {
			return err
		}
		if !parent.HasChildren {
			return tx.Model(parent).Update("has_children", true).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &apitype.ItemCreatedRS{ID: item.UUID, UniqueID: item.UniqueID}, nil
}

func (s *Service) createItem(tx *gorm.DB, project *auth.ProjectDetails, launch *models.Launch, parent *models.TestItem,
	path []models.TestItem, itemType apitype.ItemType, rq apitype.StartTestItemRQ) (*models.TestItem, error) {
	item := &models.TestItem{
		UUID:        rq.UUID,
		LaunchID:    launch.ID,
		Name:        strings.TrimSpace(rq.Name),
		Type:        string(itemType),
		Description: rq.Description,
		CodeRef:     rq.CodeRef,
		UniqueID:    rq.UniqueID,
		StartTime:   rq.StartTime.UTC(),
		Status:      string(apitype.StatusInProgress),
		HasStats:    rq.HasStats == nil || *rq.HasStats,
	}
	if item.UUID == "" {
		item.UUID = uuid.NewString()
	}
	if parent != nil {
		item.ParentID = &parent.ID
	}
	if item.UniqueID == "" {
		names := make([]string, 0, len(path))
		for _, p := range path {
			names = append(names, p.Name)
		}
		item.UniqueID = GenerateUniqueID(project.Name, launch.Name, names, item.Name, rq.Parameters)
	}
	item.TestCaseID = TestCaseID(rq)
	item.TestCaseHash = TestCaseHash(item.TestCaseID)

	if res := tx.Omit("Parameters", "Attributes", "Statistics", "Issue").Create(item); res.Error != nil {
		log.WithError(res.Error).WithField("item", item.Name).Error("error creating test item")
		return nil, res.Error
	}
	parentPath := ""
	if parent != nil {
		parentPath = parent.Path
	}
	item.Path = query.ChildPath(parentPath, item.ID)
	// has_stats is written here as well since a false value is dropped from the insert in
	// favour of the column default
	if res := tx.Model(item).Updates(map[string]interface{}{"path": item.Path, "has_stats": item.HasStats}); res.Error != nil {
		return nil, res.Error
	}

	if len(rq.Parameters) > 0 {
		params := make([]models.Parameter, 0, len(rq.Parameters))
		for _, p := range rq.Parameters {
			params = append(params, models.Parameter{ItemID: item.ID, Key: p.Key, Value: p.Value})
		}
		if res := tx.Create(&params); res.Error != nil {
			return nil, res.Error
		}
	}
	if attrs := AttributesToModels(rq.Attributes, nil, &item.ID); len(attrs) > 0 {
		if res := tx.Create(&attrs); res.Error != nil {
			return nil, res.Error
		}
	}

	if rq.Retry || rq.RetryOf != "" {
		if err := s.handleRetry(tx, launch, item, rq.RetryOf); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// handleRetry turns the previous attempt of the item into a retry of it. The previous
// attempt is the one named by retryOf, or the latest sibling with the same unique id.
func (s *Service) handleRetry(tx *gorm.DB, launch *models.Launch, item *models.TestItem, retryOf string) error {
	var previous models.TestItem
	q := tx.Where("launch_id = ? AND id <> ? AND retry_of IS NULL", launch.ID, item.ID)
	if retryOf != "" {
		q = q.Where("uuid = ?", retryOf)
	} else {
		q = q.Where("unique_id = ?", item.UniqueID)
		if item.ParentID != nil {
			q = q.Where("parent_id = ?", *item.ParentID)
		} else {
			q = q.Where("parent_id IS NULL")
		}
	}
	if res := q.Order("start_time DESC, id DESC").First(&previous); res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			if retryOf != "" {
				return rperrors.New(rperrors.RetriesHandlerError, "Item '"+retryOf+"' to retry not found.")
			}
			return nil
		}
		return res.Error
	}

	if previous.HasStats {
		counters, err := query.ItemStatistics(tx, previous.ID)
		if err != nil {
			return err
		}
		if d := DeltaFromCounters(counters[previous.ID]); len(d) > 0 {
			if ids := query.PathIDs(previous.Path); len(ids) > 1 {
				if err := applyToItems(tx, d.Negate(), ids[:len(ids)-1]...); err != nil {
					return err
				}
			}
			if err := applyToLaunch(tx, d.Negate(), launch.ID); err != nil {
				return err
			}
		}
	}

	if res := tx.Model(&models.TestItem{}).Where("retry_of = ?", previous.ID).Update("retry_of", item.ID); res.Error != nil {
		return res.Error
	}
	res := tx.Model(&previous).Updates(map[string]interface{}{"retry_of": item.ID, "has_stats": false})
	if res.Error != nil {
		return res.Error
	}
	if res := tx.Model(item).Update("has_retries", true); res.Error != nil {
		return res.Error
	}
	if item.ParentID != nil {
		if res := tx.Model(&models.TestItem{}).Where("id = ?", *item.ParentID).Update("has_retries", true); res.Error != nil {
			return res.Error
		}
	}
	log.WithFields(log.Fields{"item": item.UUID, "previous": previous.UUID}).Debug("item reported as retry")
	return tx.Model(launch).Update("has_retries", true).Error
}

// FinishTestItem finishes an item. Leaves take the provided status, parents get theirs from
// their children after any still running descendants are interrupted.
func (s *Service) FinishTestItem(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	itemUUID string, rq apitype.FinishTestItemRQ) (*apitype.OperationCompletionRS, error) {
	err := s.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := query.TestItemByUUID(tx, itemUUID)
		if err != nil {
			return err
		}
		if item == nil {
			return rperrors.New(rperrors.TestItemNotFound, itemUUID)
		}
		launch, err := query.LaunchByID(tx, item.LaunchID)
		if err != nil {
			return err
		}
		if launch == nil {
			return rperrors.New(rperrors.LaunchNotFound, item.LaunchID)
		}
		if launch.ProjectID != project.ID {
			return rperrors.New(rperrors.AccessDenied, "Launch '"+launch.UUID+"' is not under the specified project.")
		}

		status, provided, err := parseFinishStatus(rq.Status)
		if err != nil {
			return err
		}
		hasChildren, err := hasChildItems(tx, item.ID)
		if err != nil {
			return err
		}
		if err := validateFinishItem(user, launch, item, provided, hasChildren, rq); err != nil {
			return err
		}

		if hasChildren {
			if _, err := s.interruptItems(tx, launch, item.Path, rq.EndTime.UTC()); err != nil {
				return err
			}
			// a parent always takes the status of its children
			if status, err = identifyItemStatus(tx, item.ID); err != nil {
				return err
			}
		}
		return s.completeItem(tx, &rq, item, status, rq.EndTime.UTC(), rq.Issue, hasChildren)
	})
	if err != nil {
		return nil, err
	}
	return &apitype.OperationCompletionRS{Message: "TestItem with ID = '" + itemUUID + "' successfully finished."}, nil
}

func hasChildItems(tx *gorm.DB, itemID uint) (bool, error) {
	var count int64
	res := tx.Model(&models.TestItem{}).Where("parent_id = ?", itemID).Limit(1).Count(&count)
	return count > 0, res.Error
}

// completeItem stores the final state of an item, assigns the issue of failed leaves and
// propagates the statistics of leaves to the item hierarchy and launch.
func (s *Service) completeItem(tx *gorm.DB, rq *apitype.FinishTestItemRQ, item *models.TestItem, status apitype.Status,
	endTime time.Time, issue *apitype.Issue, hasChildren bool) error {
	updates := map[string]interface{}{
		"status":   string(status),
		"end_time": endTime,
	}
	if rq != nil {
		if rq.Description != "" {
			updates["description"] = rq.Description
		}
		if rq.TestCaseID != "" {
			updates["test_case_id"] = rq.TestCaseID
			updates["test_case_hash"] = TestCaseHash(rq.TestCaseID)
		}
	}
	if res := tx.Model(item).Updates(updates); res.Error != nil {
		return res.Error
	}
	item.Status = string(status)
	item.EndTime = &endTime

	if rq != nil && len(rq.Attributes) > 0 {
		missing := MissingAttributes(item.Attributes, AttributesToModels(rq.Attributes, nil, &item.ID))
		if len(missing) > 0 {
			if res := tx.Create(&missing); res.Error != nil {
				return res.Error
			}
		}
	}

	if hasChildren {
		return nil
	}

	var issueType *models.IssueType
	if status == apitype.StatusFailed || status == apitype.StatusSkipped {
		var err error
		if issueType, err = s.assignIssue(tx, item, issue); err != nil {
			return err
		}
	}
	if !item.HasStats || item.RetryOf != nil {
		return nil
	}
	return applyToHierarchy(tx, *item, ItemDelta(status, issueType))
}

// assignIssue creates the issue of a failed or skipped leaf. It returns nil when the agent
// asked for no issue.
func (s *Service) assignIssue(tx *gorm.DB, item *models.TestItem, issue *apitype.Issue) (*models.IssueType, error) {
	locator := apitype.IssueGroupToInvestigate.Locator()
	if issue != nil && issue.IssueType != "" {
		if strings.EqualFold(issue.IssueType, apitype.NotIssueFlag) {
			return nil, nil
		}
		locator = issue.IssueType
	}

	issueType, err := issueTypeForLaunch(tx, item.LaunchID, locator)
	if err != nil {
		return nil, err
	}
	if issueType == nil {
		return nil, rperrors.New(rperrors.FailedIssueTypeDefinition, "Invalid test item issue type definition '"+locator+"'")
	}

	record := models.Issue{ItemID: item.ID, IssueTypeID: issueType.ID}
	if issue != nil {
		record.Comment = issue.Comment
		record.AutoAnalyzed = issue.AutoAnalyzed
		record.IgnoreAnalyzer = issue.IgnoreAnalyzer
	}
	if res := tx.Omit("IssueType", "Tickets").Create(&record); res.Error != nil {
		return nil, res.Error
	}
	record.IssueType = *issueType
	item.Issue = &record
	return issueType, nil
}

// issueTypeForLaunch resolves a locator among the issue types of the launch's project.
func issueTypeForLaunch(tx *gorm.DB, launchID uint, locator string) (*models.IssueType, error) {
	var issueType models.IssueType
	res := tx.Joins("JOIN launches ON launches.project_id = issue_types.project_id").
		Where("launches.id = ? AND LOWER(issue_types.locator) = LOWER(?)", launchID, locator).
		First(&issueType)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &issueType, nil
}
