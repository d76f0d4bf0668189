package merge

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/sets"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/reporting"
)

// basicStrategy keeps the item trees of the source launches side by side.
type basicStrategy struct{}

func (basicStrategy) MergeItems(tx *gorm.DB, merged *models.Launch, sources []models.Launch, rq apitype.MergeLaunchesRQ) error {
	return nil
}

// deepStrategy combines suite level items with the same name and type found at the same
// place of the trees into one item holding the children of all of them.
type deepStrategy struct{}

func (deepStrategy) MergeItems(tx *gorm.DB, merged *models.Launch, sources []models.Launch, rq apitype.MergeLaunchesRQ) error {
	return mergeLevel(tx, merged.ID, nil)
}

func groupKey(item models.TestItem) string {
	return item.Type + "\x00" + item.Name
}

// groupSuites returns the suite level items sharing a key, first reported item first.
// Groups of a single item are left out.
func groupSuites(items []models.TestItem) [][]models.TestItem {
	sortedByStart(items)
	var order []string
	groups := map[string][]models.TestItem{}
	for _, item := range items {
		if item.RetryOf != nil || !apitype.ItemType(item.Type).IsSuiteLevel() {
			continue
		}
		key := groupKey(item)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}
	result := make([][]models.TestItem, 0, len(order))
	for _, key := range order {
		if len(groups[key]) > 1 {
			result = append(result, groups[key])
		}
	}
	return result
}

func mergeLevel(tx *gorm.DB, launchID uint, parentID *uint) error {
	var items []models.TestItem
	q := tx.Preload("Attributes").Where("launch_id = ?", launchID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if res := q.Find(&items); res.Error != nil {
		return res.Error
	}

	removed := sets.New[uint]()
	for _, group := range groupSuites(items) {
		if err := mergeGroup(tx, group); err != nil {
			return err
		}
		for _, item := range group[1:] {
			removed.Insert(item.ID)
		}
	}

	for _, item := range items {
		if removed.Has(item.ID) || !apitype.ItemType(item.Type).IsSuiteLevel() {
			continue
		}
		id := item.ID
		if err := mergeLevel(tx, launchID, &id); err != nil {
			return err
		}
	}
	return nil
}

// mergeGroup moves everything under the duplicates into the first item of the group and
// deletes the duplicates.
func mergeGroup(tx *gorm.DB, group []models.TestItem) error {
	target := group[0]
	descriptions := []string{}
	if target.Description != "" {
		descriptions = append(descriptions, target.Description)
	}
	status := apitype.Status(target.Status)
	start, end := target.StartTime, target.EndTime
	attributes := target.Attributes
	hasRetries := target.HasRetries

	for _, dup := range group[1:] {
		if res := tx.Model(&models.TestItem{}).Where("parent_id = ?", dup.ID).Update("parent_id", target.ID); res.Error != nil {
			return res.Error
		}
		res := tx.Model(&models.TestItem{}).Where("path LIKE ?", dup.Path+".%").
			Update("path", gorm.Expr("? || SUBSTR(path, ?)", target.Path, len(dup.Path)+1))
		if res.Error != nil {
			return errors.Wrapf(res.Error, "moving children of item %d", dup.ID)
		}
		if res := tx.Model(&models.Log{}).Where("item_id = ?", dup.ID).Update("item_id", target.ID); res.Error != nil {
			return res.Error
		}
		if res := tx.Model(&models.Attachment{}).Where("item_id = ?", dup.ID).Update("item_id", target.ID); res.Error != nil {
			return res.Error
		}

		if dup.Description != "" && !sets.New(descriptions...).Has(dup.Description) {
			descriptions = append(descriptions, dup.Description)
		}
		if status.IsPositive() && !apitype.Status(dup.Status).IsPositive() {
			status = apitype.Status(dup.Status)
		}
		if dup.StartTime.Before(start) {
			start = dup.StartTime
		}
		if dup.EndTime != nil && (end == nil || dup.EndTime.After(*end)) {
			end = dup.EndTime
		}
		hasRetries = hasRetries || dup.HasRetries
		missing := reporting.MissingAttributes(attributes, dup.Attributes)
		for i := range missing {
			missing[i].ID = 0
			missing[i].ItemID = &target.ID
		}
		if len(missing) > 0 {
			if res := tx.Create(&missing); res.Error != nil {
				return res.Error
			}
			attributes = append(attributes, missing...)
		}

		if err := deleteItem(tx, dup.ID); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{"item": target.UUID, "name": target.Name, "merged": len(group) - 1}).Debug("merged suites")
	return tx.Model(&models.TestItem{}).Where("id = ?", target.ID).Updates(map[string]interface{}{
		"description":  strings.Join(descriptions, "\r\n"),
		"status":       string(status),
		"start_time":   start,
		"end_time":     end,
		"has_retries":  hasRetries,
		"has_children": true,
	}).Error
}

func deleteItem(tx *gorm.DB, id uint) error {
	for _, model := range []interface{}{&models.ItemStatistics{}, &models.ItemAttribute{}, &models.Parameter{}} {
		if res := tx.Where("item_id = ?", id).Delete(model); res.Error != nil {
			return res.Error
		}
	}
	if res := tx.Where("item_id = ?", id).Delete(&models.Issue{}); res.Error != nil {
		return res.Error
	}
	if res := tx.Delete(&models.TestItem{}, id); res.Error != nil {
		return errors.WithMessage(res.Error, fmt.Sprintf("deleting merged item %d", id))
	}
	return nil
}
