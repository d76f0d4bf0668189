package reporting

import (
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
)

// Delta is a change to statistics counters, keyed by counter field.
type Delta map[string]int

// ItemDelta is what a finished leaf item adds to its own counters and those of its
// ancestors and launch.
func ItemDelta(status apitype.Status, issueType *models.IssueType) Delta {
	d := Delta{apitype.ExecutionsTotal: 1}
	if f := apitype.ExecutionField(status); f != "" {
		d[f]++
	}
	if issueType != nil {
		group := apitype.IssueGroup(issueType.IssueGroup)
		d[apitype.DefectField(group, issueType.Locator)]++
		d[apitype.DefectTotalField(group)]++
	}
	return d
}

// Negate returns the delta that reverts d.
func (d Delta) Negate() Delta {
	n := make(Delta, len(d))
	for k, v := range d {
		n[k] = -v
	}
	return n
}

// Add merges other into d.
func (d Delta) Add(other Delta) {
	for k, v := range other {
		d[k] += v
	}
}

// fields returns the non zero fields in a stable order.
func (d Delta) fields() []string {
	fields := make([]string, 0, len(d))
	for k, v := range d {
		if v != 0 {
			fields = append(fields, k)
		}
	}
	sort.Strings(fields)
	return fields
}

// DeltaFromCounters turns stored counters back into a delta.
func DeltaFromCounters(counters map[string]int) Delta {
	d := make(Delta, len(counters))
	for k, v := range counters {
		d[k] = v
	}
	return d
}

// applyToItems adds the delta to the counters of every item.
func applyToItems(tx *gorm.DB, d Delta, itemIDs ...uint) error {
	fields := d.fields()
	if len(fields) == 0 || len(itemIDs) == 0 {
		return nil
	}
	rows := make([]models.ItemStatistics, 0, len(fields)*len(itemIDs))
	for _, id := range itemIDs {
		for _, f := range fields {
			rows = append(rows, models.ItemStatistics{ItemID: id, Field: f, Counter: d[f]})
		}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "field"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"counter": gorm.Expr("item_statistics.counter + EXCLUDED.counter")}),
	}).Create(&rows).Error
}

// applyToLaunch adds the delta to the launch counters.
func applyToLaunch(tx *gorm.DB, d Delta, launchID uint) error {
	fields := d.fields()
	if len(fields) == 0 {
		return nil
	}
	rows := make([]models.LaunchStatistics, 0, len(fields))
	for _, f := range fields {
		rows = append(rows, models.LaunchStatistics{LaunchID: launchID, Field: f, Counter: d[f]})
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "launch_id"}, {Name: "field"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"counter": gorm.Expr("launch_statistics.counter + EXCLUDED.counter")}),
	}).Create(&rows).Error
}

// applyToHierarchy adds the delta to the item, all of its ancestors and its launch.
func applyToHierarchy(tx *gorm.DB, item models.TestItem, d Delta) error {
	if err := applyToItems(tx, d, query.PathIDs(item.Path)...); err != nil {
		return err
	}
	return applyToLaunch(tx, d, item.LaunchID)
}

// RecalculateLaunchStatistics rebuilds the launch counters from its root items. Used after
// items are moved or deleted.
func RecalculateLaunchStatistics(tx *gorm.DB, launchID uint) error {
	if res := tx.Where("launch_id = ?", launchID).Delete(&models.LaunchStatistics{}); res.Error != nil {
		return res.Error
	}
	return tx.Exec(`INSERT INTO launch_statistics (launch_id, field, counter)
		SELECT ?, s.field, SUM(s.counter) FROM item_statistics s
		JOIN test_items ti ON ti.id = s.item_id
		WHERE ti.launch_id = ? AND ti.parent_id IS NULL AND ti.retry_of IS NULL
		GROUP BY s.field`, launchID, launchID).Error
}

// RecalculateItemStatistics rebuilds the counters of a parent item from its children.
func RecalculateItemStatistics(tx *gorm.DB, itemID uint) error {
	if res := tx.Where("item_id = ?", itemID).Delete(&models.ItemStatistics{}); res.Error != nil {
		return res.Error
	}
	return tx.Exec(`INSERT INTO item_statistics (item_id, field, counter)
		SELECT ?, s.field, SUM(s.counter) FROM item_statistics s
		JOIN test_items ti ON ti.id = s.item_id
		WHERE ti.parent_id = ? AND ti.retry_of IS NULL
		GROUP BY s.field`, itemID, itemID).Error
}

// failingCondition selects items that make their parent or launch fail: failed statuses,
// and skipped items that got an issue.
const failingCondition = `ti.has_stats AND ti.retry_of IS NULL AND (ti.status IN ('FAILED', 'INTERRUPTED', 'STOPPED', 'CANCELLED')
	OR (ti.status = 'SKIPPED' AND EXISTS (SELECT 1 FROM issues i WHERE i.item_id = ti.id)))`

// identifyItemStatus derives the status of a parent from its direct children.
func identifyItemStatus(tx *gorm.DB, itemID uint) (apitype.Status, error) {
	var failing int64
	res := tx.Table("test_items AS ti").Where("ti.parent_id = ?", itemID).Where(failingCondition).Count(&failing)
	if res.Error != nil {
		return "", res.Error
	}
	if failing > 0 {
		return apitype.StatusFailed, nil
	}
	return apitype.StatusPassed, nil
}

// IdentifyLaunchStatus derives the status of a launch from its items.
func IdentifyLaunchStatus(tx *gorm.DB, launchID uint) (apitype.Status, error) {
	var failing int64
	res := tx.Table("test_items AS ti").Where("ti.launch_id = ?", launchID).Where(failingCondition).Count(&failing)
	if res.Error != nil {
		return "", res.Error
	}
	if failing > 0 {
		return apitype.StatusFailed, nil
	}
	return apitype.StatusPassed, nil
}
