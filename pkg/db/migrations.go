package db

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/db/models"
)

// migrations are one-off data fixes, applied in key order. They must be idempotent.
var migrations = map[string]func(*gorm.DB) error{
	"0001_defaultIssueTypes":         defaultIssueTypes,
	"0002_launchHasRetriesFromItems": launchHasRetriesFromItems,
}

func (d *DB) runMigrations() error {
	names := make([]string, 0, len(migrations))
	for name := range migrations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		log.Infof("running migration %s", name)
		if err := d.DB.Transaction(migrations[name]); err != nil {
			log.WithError(err).Errorf("migration %s failed", name)
			return err
		}
	}
	return nil
}

// defaultIssueTypes makes sure every project owns the five default defect types.
func defaultIssueTypes(dbc *gorm.DB) error {
	var projects []models.Project
	if res := dbc.Preload("IssueTypes").Find(&projects); res.Error != nil {
		return res.Error
	}
	for _, p := range projects {
		for _, it := range DefaultIssueTypes(p.ID) {
			if _, ok := p.IssueTypeByLocator(it.Locator); ok {
				continue
			}
			log.WithField("project", p.Name).Infof("adding missing issue type %s", it.Locator)
			if res := dbc.Create(&it); res.Error != nil {
				return res.Error
			}
		}
	}
	return nil
}

// launchHasRetriesFromItems backfills the launch retries flag from its items.
func launchHasRetriesFromItems(dbc *gorm.DB) error {
	return dbc.Exec(`UPDATE launches SET has_retries = true
		WHERE has_retries = false
		AND EXISTS (SELECT 1 FROM test_items ti WHERE ti.launch_id = launches.id AND ti.retry_of IS NOT NULL)`).Error
}
