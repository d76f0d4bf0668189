package query

import (
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db/models"
)

// AttachmentFiles returns the data store paths of the attachments matched by cond.
func AttachmentFiles(dbc *gorm.DB, cond string, args ...interface{}) ([]string, error) {
	var files []string
	res := dbc.Model(&models.Attachment{}).Where(cond, args...).Pluck("file_id", &files)
	return files, res.Error
}

// DeleteItems removes test items together with their logs, attachments, statistics,
// attributes, parameters and issues. The returned paths are the attachment files that
// must be removed from the data store once the transaction commits.
func DeleteItems(tx *gorm.DB, itemIDs []uint) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	files, err := AttachmentFiles(tx, "item_id IN ?", itemIDs)
	if err != nil {
		return nil, err
	}
	if res := tx.Exec("DELETE FROM issue_tickets WHERE issue_id IN ?", itemIDs); res.Error != nil {
		return nil, res.Error
	}
	for _, model := range []interface{}{&models.Log{}, &models.Attachment{}, &models.ItemStatistics{},
		&models.ItemAttribute{}, &models.Parameter{}, &models.Issue{}} {
		if res := tx.Where("item_id IN ?", itemIDs).Delete(model); res.Error != nil {
			return nil, res.Error
		}
	}
	// Retries point at the item they retried.
	if res := tx.Model(&models.TestItem{}).Where("retry_of IN ?", itemIDs).Update("retry_of", nil); res.Error != nil {
		return nil, res.Error
	}
	if res := tx.Where("id IN ?", itemIDs).Delete(&models.TestItem{}); res.Error != nil {
		return nil, res.Error
	}
	return files, nil
}

// DeleteLaunches removes launches with all their items and logs. It returns the attachment
// files to delete from the data store.
func DeleteLaunches(tx *gorm.DB, launchIDs []uint) ([]string, error) {
	if len(launchIDs) == 0 {
		return nil, nil
	}
	var itemIDs []uint
	if res := tx.Model(&models.TestItem{}).Where("launch_id IN ?", launchIDs).Pluck("id", &itemIDs); res.Error != nil {
		return nil, res.Error
	}
	files, err := DeleteItems(tx, itemIDs)
	if err != nil {
		return nil, err
	}
	launchFiles, err := AttachmentFiles(tx, "launch_id IN ?", launchIDs)
	if err != nil {
		return nil, err
	}
	files = append(files, launchFiles...)
	for _, model := range []interface{}{&models.Log{}, &models.Attachment{}, &models.LaunchStatistics{}, &models.ItemAttribute{}} {
		if res := tx.Where("launch_id IN ?", launchIDs).Delete(model); res.Error != nil {
			return nil, res.Error
		}
	}
	if res := tx.Where("id IN ?", launchIDs).Delete(&models.Launch{}); res.Error != nil {
		return nil, res.Error
	}
	return files, nil
}
