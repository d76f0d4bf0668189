package query

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db/models"
)

// TestItemByUUID loads an item with its issue and attributes. A missing item returns nil
// without error.
func TestItemByUUID(dbc *gorm.DB, uuid string) (*models.TestItem, error) {
	var item models.TestItem
	res := dbc.Preload("Attributes").Preload("Parameters").Preload("Issue.IssueType").Preload("Issue.Tickets").
		First(&item, "uuid = ?", uuid)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up test item: %s", uuid)
		return nil, res.Error
	}
	return &item, nil
}

func TestItemByID(dbc *gorm.DB, id uint) (*models.TestItem, error) {
	var item models.TestItem
	res := dbc.Preload("Attributes").Preload("Parameters").Preload("Issue.IssueType").Preload("Issue.Tickets").
		First(&item, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up test item: %d", id)
		return nil, res.Error
	}
	return &item, nil
}

// Descendants returns all items below the given path, deepest first.
func Descendants(dbc *gorm.DB, path string) ([]models.TestItem, error) {
	var items []models.TestItem
	res := dbc.Where("path LIKE ?", path+".%").
		Order("LENGTH(path) DESC, id DESC").
		Find(&items)
	return items, res.Error
}

// Ancestors returns the items on the path above the item, outermost first.
func Ancestors(dbc *gorm.DB, item models.TestItem) ([]models.TestItem, error) {
	ids := PathIDs(item.Path)
	if len(ids) <= 1 {
		return nil, nil
	}
	var items []models.TestItem
	res := dbc.Where("id IN ?", ids[:len(ids)-1]).Order("LENGTH(path)").Find(&items)
	return items, res.Error
}

// ItemStatistics returns counters per item id.
func ItemStatistics(dbc *gorm.DB, itemIDs ...uint) (map[uint]map[string]int, error) {
	result := map[uint]map[string]int{}
	if len(itemIDs) == 0 {
		return result, nil
	}
	var rows []models.ItemStatistics
	if res := dbc.Where("item_id IN ?", itemIDs).Find(&rows); res.Error != nil {
		return nil, res.Error
	}
	for _, r := range rows {
		if result[r.ItemID] == nil {
			result[r.ItemID] = map[string]int{}
		}
		result[r.ItemID][r.Field] = r.Counter
	}
	return result, nil
}

// HasLogs reports whether any log is attached directly to the item.
func HasLogs(dbc *gorm.DB, itemID uint) (bool, error) {
	var count int64
	res := dbc.Model(&models.Log{}).Where("item_id = ?", itemID).Limit(1).Count(&count)
	return count > 0, res.Error
}
