package reporting

import (
	"errors"

	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
)

// IssueTypeByLocator resolves a locator among the issue types of a project. A missing type
// returns nil without error.
func IssueTypeByLocator(tx *gorm.DB, projectID uint, locator string) (*models.IssueType, error) {
	var issueType models.IssueType
	res := tx.Where("project_id = ? AND LOWER(locator) = LOWER(?)", projectID, locator).First(&issueType)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, res.Error
	}
	return &issueType, nil
}

// MoveIssueStatistics moves the defect counters of an item from one issue type to another
// through its ancestors and launch. A nil type means the item had or gets no issue.
func MoveIssueStatistics(tx *gorm.DB, item models.TestItem, from, to *models.IssueType) error {
	if !item.HasStats || item.RetryOf != nil {
		return nil
	}
	status := apitype.Status(item.Status)
	d := ItemDelta(status, to)
	d.Add(ItemDelta(status, from).Negate())
	return applyToHierarchy(tx, item, d)
}

// ChangeItemStatus changes the status of a finished leaf item. Failed and skipped items get a
// to investigate issue when they have none, passed items lose theirs. Ancestors and the
// launch get their counters and statuses updated.
func ChangeItemStatus(tx *gorm.DB, item *models.TestItem, status apitype.Status) error {
	var oldType *models.IssueType
	if item.Issue != nil {
		t := item.Issue.IssueType
		oldType = &t
	}
	before := ItemDelta(apitype.Status(item.Status), oldType)

	newType := oldType
	switch {
	case status == apitype.StatusFailed || status == apitype.StatusSkipped:
		if item.Issue == nil {
			issueType, err := issueTypeForLaunch(tx, item.LaunchID, apitype.IssueGroupToInvestigate.Locator())
			if err != nil {
				return err
			}
			if issueType != nil {
				record := models.Issue{ItemID: item.ID, IssueTypeID: issueType.ID}
				if res := tx.Omit("IssueType", "Tickets").Create(&record); res.Error != nil {
					return res.Error
				}
				record.IssueType = *issueType
				item.Issue = &record
				newType = issueType
			}
		}
	case item.Issue != nil:
		if res := tx.Exec("DELETE FROM issue_tickets WHERE issue_id = ?", item.ID); res.Error != nil {
			return res.Error
		}
		if res := tx.Where("item_id = ?", item.ID).Delete(&models.Issue{}); res.Error != nil {
			return res.Error
		}
		item.Issue = nil
		newType = nil
	}

	if res := tx.Model(item).Update("status", string(status)); res.Error != nil {
		return res.Error
	}
	item.Status = string(status)

	if item.HasStats && item.RetryOf == nil {
		d := ItemDelta(status, newType)
		d.Add(before.Negate())
		if err := applyToHierarchy(tx, *item, d); err != nil {
			return err
		}
	}
	return RefreshStatuses(tx, *item)
}

// RefreshStatuses recomputes the statuses of the finished ancestors of an item, deepest
// first, and of its launch when it is finished.
func RefreshStatuses(tx *gorm.DB, item models.TestItem) error {
	ids := query.PathIDs(item.Path)
	for i := len(ids) - 2; i >= 0; i-- {
		var parent models.TestItem
		if res := tx.Select("id", "status").First(&parent, ids[i]); res.Error != nil {
			return res.Error
		}
		if parent.Status == string(apitype.StatusInProgress) {
			continue
		}
		status, err := identifyItemStatus(tx, parent.ID)
		if err != nil {
			return err
		}
		if res := tx.Model(&parent).Update("status", string(status)); res.Error != nil {
			return res.Error
		}
	}

	var launch models.Launch
	if res := tx.Select("id", "status").First(&launch, item.LaunchID); res.Error != nil {
		return res.Error
	}
	if launch.Status == string(apitype.StatusInProgress) {
		return nil
	}
	status, err := IdentifyLaunchStatus(tx, launch.ID)
	if err != nil {
		return err
	}
	return tx.Model(&launch).Update("status", string(status)).Error
}
