package widget

import (
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/filter"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// filteredLaunches returns the finished launches of the project matching every filter of
// the request, sorted by the first filter that names a sort order, newest first otherwise.
func filteredLaunches(dbc *gorm.DB, rq Request, limit int, scopes ...func(*gorm.DB) *gorm.DB) ([]models.Launch, error) {
	q := dbc.Model(&models.Launch{}).
		Where("launches.project_id = ? AND launches.status <> ?", rq.ProjectID, apitype.StatusInProgress).
		Scopes(scopes...)

	sortField, desc := "startTime", true
	sortChosen := false
	for _, opts := range rq.Filters {
		var err error
		q, err = filter.FilteredQuery(q, opts, query.LaunchColumns)
		if err != nil {
			return nil, err
		}
		if !sortChosen && opts.SortField != "" {
			sortField, desc = opts.SortField, opts.Sort != apitype.SortAscending
			sortChosen = true
		}
	}
	col, ok := query.LaunchColumns.Column(sortField)
	if !ok {
		return nil, rperrors.New(rperrors.IncorrectSortingParams, sortField)
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col, Raw: true}, Desc: desc}).
		Order("launches.id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var launches []models.Launch
	if res := q.Find(&launches); res.Error != nil {
		return nil, res.Error
	}
	return launches, nil
}

func withName(name string) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("launches.name = ?", name)
	}
}

// chronological sorts launches oldest first, as trend charts draw them.
func chronological(launches []models.Launch) []models.Launch {
	sorted := append([]models.Launch(nil), launches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].StartTime.Before(sorted[j].StartTime)
	})
	return sorted
}

func launchIDs(launches []models.Launch) []uint {
	ids := make([]uint, 0, len(launches))
	for _, l := range launches {
		ids = append(ids, l.ID)
	}
	return ids
}

func chartObject(l models.Launch, counters map[string]int, fields []string) apitype.ChartObject {
	values := make(map[string]float64, len(fields))
	for _, f := range fields {
		values[f] = float64(counters[f])
	}
	return apitype.ChartObject{
		ID:        l.ID,
		Name:      l.Name,
		Number:    l.Number,
		StartTime: apitype.NewTime(l.StartTime),
		Values:    values,
	}
}

func chartObjects(dbc *gorm.DB, launches []models.Launch, fields []string) ([]apitype.ChartObject, error) {
	counters, err := query.LaunchStatistics(dbc, launchIDs(launches)...)
	if err != nil {
		return nil, err
	}
	result := make([]apitype.ChartObject, 0, len(launches))
	for _, l := range launches {
		result = append(result, chartObject(l, counters[l.ID], fields))
	}
	return result, nil
}

func periodKey(t time.Time, timeline string) string {
	t = t.UTC()
	if timeline == timelineWeek {
		// weeks start on monday
		offset := (int(t.Weekday()) + 6) % 7
		t = t.AddDate(0, 0, -offset)
	}
	return t.Format("2006-01-02")
}

// groupByPeriod sums chronologically ordered chart objects per day or week.
func groupByPeriod(objects []apitype.ChartObject, timeline string) []apitype.ChartObject {
	var result []apitype.ChartObject
	index := map[string]int{}
	for _, o := range objects {
		key := periodKey(o.StartTime.Time, timeline)
		i, ok := index[key]
		if !ok {
			index[key] = len(result)
			result = append(result, apitype.ChartObject{Name: key, StartTime: o.StartTime, Values: map[string]float64{}})
			i = len(result) - 1
		}
		for f, v := range o.Values {
			result[i].Values[f] += v
		}
	}
	return result
}

// ComparisonObject expresses the execution counters of a launch as percentages of its total
// and each defect group as a percentage of all defects.
func ComparisonObject(l models.Launch, counters map[string]int) apitype.ChartObject {
	values := map[string]float64{}
	total := counters[apitype.ExecutionsTotal]
	for _, f := range []string{apitype.ExecutionsPassed, apitype.ExecutionsFailed, apitype.ExecutionsSkipped} {
		values[f] = Percentage(counters[f], total)
	}
	defects := 0
	for _, g := range apitype.IssueGroups {
		defects += counters[apitype.DefectTotalField(g)]
	}
	for _, g := range apitype.IssueGroups {
		f := apitype.DefectTotalField(g)
		values[f] = Percentage(counters[f], defects)
	}
	return apitype.ChartObject{
		ID:        l.ID,
		Name:      l.Name,
		Number:    l.Number,
		StartTime: apitype.NewTime(l.StartTime),
		Values:    values,
	}
}

// Percentage of v in total, rounded to two decimals.
func Percentage(v, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(v)*10000/float64(total)+0.5)) / 100
}
