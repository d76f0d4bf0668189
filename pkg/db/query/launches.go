package query

import (
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db/models"
)

// LaunchByUUID loads a launch with its owner and attributes. A missing launch returns nil
// without error.
func LaunchByUUID(dbc *gorm.DB, uuid string) (*models.Launch, error) {
	var launch models.Launch
	res := dbc.Preload("User").Preload("Attributes").First(&launch, "uuid = ?", uuid)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up launch: %s", uuid)
		return nil, res.Error
	}
	return &launch, nil
}

func LaunchByID(dbc *gorm.DB, id uint) (*models.Launch, error) {
	var launch models.Launch
	res := dbc.Preload("User").Preload("Attributes").First(&launch, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.WithError(res.Error).Errorf("error looking up launch: %d", id)
		return nil, res.Error
	}
	return &launch, nil
}

// NextLaunchNumber returns the number the next launch with the given name gets in the project.
func NextLaunchNumber(dbc *gorm.DB, projectID uint, name string) (int64, error) {
	var max *int64
	res := dbc.Model(&models.Launch{}).
		Select("MAX(number)").
		Where("project_id = ? AND name = ?", projectID, name).
		Scan(&max)
	if res.Error != nil {
		return 0, res.Error
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

// LaunchStatistics returns counters per launch id.
func LaunchStatistics(dbc *gorm.DB, launchIDs ...uint) (map[uint]map[string]int, error) {
	result := map[uint]map[string]int{}
	if len(launchIDs) == 0 {
		return result, nil
	}
	var rows []models.LaunchStatistics
	if res := dbc.Where("launch_id IN ?", launchIDs).Find(&rows); res.Error != nil {
		return nil, res.Error
	}
	for _, r := range rows {
		if result[r.LaunchID] == nil {
			result[r.LaunchID] = map[string]int{}
		}
		result[r.LaunchID][r.Field] = r.Counter
	}
	return result, nil
}

// HasItemsInStatus reports whether the launch has any item with one of the statuses.
func HasItemsInStatus(dbc *gorm.DB, launchID uint, statuses ...string) (bool, error) {
	var count int64
	res := dbc.Model(&models.TestItem{}).
		Where("launch_id = ? AND status IN ?", launchID, statuses).
		Limit(1).
		Count(&count)
	return count > 0, res.Error
}
