// Package merge combines finished launches of a project into a new launch.
package merge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"k8s.io/apimachinery/pkg/util/sets"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/auth"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// Strategy rearranges the items of the source launches once they belong to the merged
// launch.
type Strategy interface {
	MergeItems(tx *gorm.DB, merged *models.Launch, sources []models.Launch, rq apitype.MergeLaunchesRQ) error
}

var strategies = map[apitype.MergeStrategy]Strategy{
	apitype.MergeStrategyBasic: basicStrategy{},
	apitype.MergeStrategyDeep:  deepStrategy{},
}

// StrategyFor looks up the strategy of a merge type.
func StrategyFor(mergeType string) (Strategy, error) {
	s, ok := strategies[apitype.MergeStrategy(strings.ToUpper(mergeType))]
	if !ok {
		return nil, rperrors.New(rperrors.UnsupportedMergeStrategy, mergeType)
	}
	return s, nil
}

type Merger struct {
	dbc *db.DB
	bus *events.Bus
}

func NewMerger(dbc *db.DB, bus *events.Bus) *Merger {
	return &Merger{dbc: dbc, bus: bus}
}

// validateSources checks the launches may be merged by the user.
func validateSources(user *auth.ReportPortalUser, project *auth.ProjectDetails, ids []uint, sources []models.Launch) error {
	if len(ids) == 0 {
		return rperrors.New(rperrors.BadRequest, "At least one launch id should be specified for merging")
	}
	found := sets.New[uint]()
	for _, l := range sources {
		found.Insert(l.ID)
	}
	if missing := sets.New(ids...).Difference(found); missing.Len() > 0 {
		return rperrors.New(rperrors.LaunchNotFound, sets.List(missing)[0])
	}
	isManager := user.IsAdmin() || project.Role.SameOrHigherThan(apitype.ProjectRoleProjectManager)
	for _, l := range sources {
		if l.ProjectID != project.ID {
			return rperrors.New(rperrors.ForbiddenOperation, fmt.Sprintf("Impossible to merge launches from different projects. Launch %d", l.ID))
		}
		if l.Status == string(apitype.StatusInProgress) {
			return rperrors.New(rperrors.LaunchIsNotFinished, fmt.Sprintf("Cannot merge launch '%d' with status '%s'", l.ID, l.Status))
		}
		if !isManager && l.UserID != user.ID {
			return rperrors.New(rperrors.AccessDenied, "You are not an owner of launches or have less than PROJECT_MANAGER project role.")
		}
	}
	return nil
}

// Merge builds a new launch out of the requested ones and deletes the sources.
func (m *Merger) Merge(ctx context.Context, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	rq apitype.MergeLaunchesRQ) (*models.Launch, error) {
	strategy, err := StrategyFor(rq.MergeType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(rq.Name) == "" {
		return nil, rperrors.New(rperrors.IncorrectRequest, "Name should have size from 1 to 256.")
	}

	var merged *models.Launch
	err = m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sources []models.Launch
		if len(rq.Launches) > 0 {
			res := tx.Preload("Attributes").Where("id IN ?", rq.Launches).Order("start_time, id").Find(&sources)
			if res.Error != nil {
				return res.Error
			}
		}
		if err := validateSources(user, project, rq.Launches, sources); err != nil {
			return err
		}

		var err error
		merged, err = createMergedLaunch(tx, user, project, sources, rq)
		if err != nil {
			return err
		}
		sourceIDs := make([]uint, 0, len(sources))
		for _, l := range sources {
			sourceIDs = append(sourceIDs, l.ID)
		}
		if rq.ExtendSuitesDescription {
			if err := extendRootDescriptions(tx, sources); err != nil {
				return err
			}
		}
		if res := tx.Model(&models.TestItem{}).Where("launch_id IN ?", sourceIDs).Update("launch_id", merged.ID); res.Error != nil {
			return res.Error
		}
		if res := tx.Model(&models.Log{}).Where("launch_id IN ?", sourceIDs).Update("launch_id", merged.ID); res.Error != nil {
			return res.Error
		}
		if res := tx.Model(&models.Attachment{}).Where("launch_id IN ?", sourceIDs).Update("launch_id", merged.ID); res.Error != nil {
			return res.Error
		}

		if err := strategy.MergeItems(tx, merged, sources, rq); err != nil {
			return err
		}
		if err := recalculate(tx, merged); err != nil {
			return err
		}
		return deleteSources(tx, sourceIDs)
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"launch": merged.UUID, "sources": rq.Launches, "type": rq.MergeType}).Info("launches merged")
	m.bus.Publish(ctx, events.Event{Type: events.LaunchesMerged, ProjectID: project.ID, Login: user.Login, Launch: merged})
	return query.LaunchByID(m.dbc.DB.WithContext(ctx), merged.ID)
}

// mergedTimes is the earliest start and latest end of the sources.
func mergedTimes(sources []models.Launch) (time.Time, time.Time) {
	var start, end time.Time
	for i, l := range sources {
		if i == 0 || l.StartTime.Before(start) {
			start = l.StartTime
		}
		if l.EndTime != nil && l.EndTime.After(end) {
			end = *l.EndTime
		}
	}
	if end.IsZero() {
		end = start
	}
	return start, end
}

// unionAttributes merges attribute lists, dropping duplicates and system attributes.
func unionAttributes(lists ...[]apitype.ItemAttributeResource) []apitype.ItemAttributeResource {
	seen := sets.New[string]()
	var result []apitype.ItemAttributeResource
	for _, list := range lists {
		for _, a := range list {
			if a.System {
				continue
			}
			k := a.Key + "\x00" + a.Value
			if seen.Has(k) {
				continue
			}
			seen.Insert(k)
			result = append(result, a)
		}
	}
	return result
}

func createMergedLaunch(tx *gorm.DB, user *auth.ReportPortalUser, project *auth.ProjectDetails,
	sources []models.Launch, rq apitype.MergeLaunchesRQ) (*models.Launch, error) {
	start, end := mergedTimes(sources)
	if rq.StartTime != nil && !rq.StartTime.IsZero() {
		start = rq.StartTime.UTC()
	}
	if rq.EndTime != nil && !rq.EndTime.IsZero() {
		end = rq.EndTime.UTC()
	}
	mode := rq.Mode
	if mode == "" {
		mode = apitype.LaunchModeDefault
	}
	hasRetries := false
	lists := make([][]apitype.ItemAttributeResource, 0, len(sources)+1)
	for _, l := range sources {
		hasRetries = hasRetries || l.HasRetries
		list := make([]apitype.ItemAttributeResource, 0, len(l.Attributes))
		for _, a := range l.Attributes {
			list = append(list, apitype.ItemAttributeResource{Key: a.Key, Value: a.Value, System: a.System})
		}
		lists = append(lists, list)
	}
	lists = append(lists, rq.Attributes)

	name := strings.TrimSpace(rq.Name)
	if res := tx.Exec("SELECT pg_advisory_xact_lock(?, ?)", int32(project.ID), reporting.TestCaseHash(name)); res.Error != nil {
		return nil, res.Error
	}
	number, err := query.NextLaunchNumber(tx, project.ID, name)
	if err != nil {
		return nil, err
	}
	launch := &models.Launch{
		UUID:        uuid.NewString(),
		ProjectID:   project.ID,
		UserID:      user.ID,
		Name:        name,
		Description: rq.Description,
		Number:      number,
		Mode:        string(mode),
		Status:      string(apitype.StatusInProgress),
		StartTime:   start,
		EndTime:     &end,
		HasRetries:  hasRetries,
	}
	if res := tx.Omit("Attributes", "User", "Statistics").Create(launch); res.Error != nil {
		return nil, res.Error
	}
	if attrs := reporting.AttributesToModels(unionAttributes(lists...), &launch.ID, nil); len(attrs) > 0 {
		if res := tx.Create(&attrs); res.Error != nil {
			return nil, res.Error
		}
	}
	return launch, nil
}

func extendRootDescriptions(tx *gorm.DB, sources []models.Launch) error {
	for _, l := range sources {
		suffix := fmt.Sprintf("merged from '%s #%d'", l.Name, l.Number)
		res := tx.Model(&models.TestItem{}).
			Where("launch_id = ? AND parent_id IS NULL", l.ID).
			Update("description", gorm.Expr("TRIM(COALESCE(description, '') || ' ' || ?)", suffix))
		if res.Error != nil {
			return res.Error
		}
	}
	return nil
}

// recalculate rebuilds parent and launch statistics and the launch status after items moved.
func recalculate(tx *gorm.DB, launch *models.Launch) error {
	var parents []models.TestItem
	res := tx.Select("id").Where("launch_id = ? AND has_children", launch.ID).Order("LENGTH(path) DESC, id DESC").Find(&parents)
	if res.Error != nil {
		return res.Error
	}
	for _, p := range parents {
		if err := reporting.RecalculateItemStatistics(tx, p.ID); err != nil {
			return err
		}
	}
	if err := reporting.RecalculateLaunchStatistics(tx, launch.ID); err != nil {
		return err
	}
	status, err := reporting.IdentifyLaunchStatus(tx, launch.ID)
	if err != nil {
		return err
	}
	launch.Status = string(status)
	return tx.Model(launch).Update("status", launch.Status).Error
}

func deleteSources(tx *gorm.DB, ids []uint) error {
	if res := tx.Where("launch_id IN ?", ids).Delete(&models.LaunchStatistics{}); res.Error != nil {
		return res.Error
	}
	if res := tx.Where("launch_id IN ?", ids).Delete(&models.ItemAttribute{}); res.Error != nil {
		return res.Error
	}
	return tx.Where("id IN ?", ids).Delete(&models.Launch{}).Error
}

// sortedByStart orders items by start time, keeping the first reported one first.
func sortedByStart(items []models.TestItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].ID < items[j].ID
		}
		return items[i].StartTime.Before(items[j].StartTime)
	})
}
