package items

import (
	"sort"

	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/rperrors"
)

const (
	DefaultHistoryDepth = 5
	MaxHistoryDepth     = 30
)

// History returns, for every leaf of the launch (or of the parent item when parentID is
// set), the results of the same test in the last depth launches with the launch's name.
// Tests are matched by unique id and results are ordered from the newest launch.
func History(dbc *gorm.DB, project *auth.ProjectDetails, launchID uint, parentID *uint, depth int) ([]apitype.TestItemHistoryElement, error) {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	if depth > MaxHistoryDepth {
		return nil, rperrors.New(rperrors.UnableLoadItemHistory, "Items history depth should be less than or equal to 30.")
	}

	launch, err := query.LaunchByID(dbc, launchID)
	if err != nil {
		return nil, err
	}
	if launch == nil || launch.ProjectID != project.ID {
		return nil, rperrors.New(rperrors.LaunchNotFound, launchID)
	}

	var launchIDs []uint
	res := dbc.Model(&models.Launch{}).
		Where("project_id = ? AND name = ? AND number <= ? AND mode = ?", project.ID, launch.Name, launch.Number, launch.Mode).
		Order("number DESC").
		Limit(depth).
		Pluck("id", &launchIDs)
	if res.Error != nil {
		return nil, res.Error
	}

	base := dbc.Model(&models.TestItem{}).
		Where("launch_id = ? AND has_stats AND NOT has_children AND retry_of IS NULL", launch.ID)
	if parentID != nil {
		parent, err := query.TestItemByID(dbc, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.LaunchID != launch.ID {
			return nil, rperrors.New(rperrors.TestItemNotFound, *parentID)
		}
		base = base.Where("path LIKE ?", parent.Path+".%")
	}
	var uniqueIDs []string
	if res := base.Distinct("unique_id").Pluck("unique_id", &uniqueIDs); res.Error != nil {
		return nil, res.Error
	}
	if len(uniqueIDs) == 0 {
		return []apitype.TestItemHistoryElement{}, nil
	}

	var found []models.TestItem
	res = dbc.Preload("Attributes").Preload("Parameters").Preload("Issue.IssueType").Preload("Issue.Tickets").
		Where("launch_id IN ? AND unique_id IN ? AND retry_of IS NULL AND NOT has_children", launchIDs, uniqueIDs).
		Find(&found)
	if res.Error != nil {
		return nil, res.Error
	}
	converted, err := resources(dbc, found)
	if err != nil {
		return nil, err
	}
	return groupHistory(converted, launchIDs), nil
}

// groupHistory groups items by unique id, each group ordered like launchIDs.
func groupHistory(items []apitype.TestItemResource, launchIDs []uint) []apitype.TestItemHistoryElement {
	position := make(map[uint]int, len(launchIDs))
	for i, id := range launchIDs {
		position[id] = i
	}
	groups := map[string][]apitype.TestItemResource{}
	for _, item := range items {
		groups[item.UniqueID] = append(groups[item.UniqueID], item)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]apitype.TestItemHistoryElement, 0, len(keys))
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			return position[group[i].LaunchID] < position[group[j].LaunchID]
		})
		result = append(result, apitype.TestItemHistoryElement{GroupingField: k, Resources: group})
	}
	return result
}
