package widget

import (
	"context"
	"sort"

	"github.com/montanaflynn/stats"
	"gorm.io/gorm"

	"github.com/reportportal/service-api/pkg/api"
	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/rperrors"
)

// maxTestCases bounds the rows of the test case tables.
const maxTestCases = 20

func loadStatisticTrend(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount)
	if err != nil {
		return nil, err
	}
	objects, err := chartObjects(dbc, chronological(launches), rq.ContentFields)
	if err != nil {
		return nil, err
	}
	if timeline := optString(rq.Options, OptionTimeline); timeline == timelineDay || timeline == timelineWeek {
		objects = groupByPeriod(objects, timeline)
	}
	return Content{resultKey: objects}, nil
}

// loadLaunchStatistics shows the counters of the latest matching launch.
func loadLaunchStatistics(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, 1)
	if err != nil {
		return nil, err
	}
	objects, err := chartObjects(dbc, launches, rq.ContentFields)
	if err != nil {
		return nil, err
	}
	return Content{resultKey: objects}, nil
}

// loadOverallStatistics sums the counters of the matching launches, or only of the latest
// launch of each name when the latest option is set.
func loadOverallStatistics(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount)
	if err != nil {
		return nil, err
	}
	if optBool(rq.Options, OptionLatest) {
		launches = latestPerName(launches)
	}
	objects, err := chartObjects(dbc, launches, rq.ContentFields)
	if err != nil {
		return nil, err
	}
	return Content{resultKey: []apitype.ChartObject{sumObjects(objects, rq.ContentFields)}}, nil
}

func latestPerName(launches []models.Launch) []models.Launch {
	latest := map[string]models.Launch{}
	for _, l := range launches {
		if cur, ok := latest[l.Name]; !ok || l.Number > cur.Number {
			latest[l.Name] = l
		}
	}
	result := make([]models.Launch, 0, len(latest))
	for _, l := range launches {
		if latest[l.Name].ID == l.ID {
			result = append(result, l)
		}
	}
	return result
}

func sumObjects(objects []apitype.ChartObject, fields []string) apitype.ChartObject {
	sum := apitype.ChartObject{Values: make(map[string]float64, len(fields))}
	for _, f := range fields {
		sum.Values[f] = 0
	}
	for _, o := range objects {
		for f, v := range o.Values {
			sum.Values[f] += v
		}
	}
	return sum
}

type durationRow struct {
	ID        uint         `json:"id"`
	Name      string       `json:"name"`
	Number    int64        `json:"number"`
	Status    string       `json:"status"`
	StartTime apitype.Time `json:"startTime"`
	EndTime   apitype.Time `json:"endTime"`
	Duration  int64        `json:"duration"`
}

func loadLaunchesDuration(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount, func(q *gorm.DB) *gorm.DB {
		return q.Where("launches.end_time IS NOT NULL")
	})
	if err != nil {
		return nil, err
	}
	rows, durations := durationRows(launches)
	content := Content{resultKey: rows}
	if len(durations) > 0 {
		data := stats.LoadRawData(durations)
		mean, _ := stats.Mean(data)
		median, _ := stats.Median(data)
		content["average"] = int64(mean)
		content["median"] = int64(median)
	}
	return content, nil
}

func durationRows(launches []models.Launch) ([]durationRow, []float64) {
	rows := make([]durationRow, 0, len(launches))
	durations := make([]float64, 0, len(launches))
	for _, l := range launches {
		if l.EndTime == nil {
			continue
		}
		d := l.EndTime.Sub(l.StartTime).Milliseconds()
		rows = append(rows, durationRow{
			ID:        l.ID,
			Name:      l.Name,
			Number:    l.Number,
			Status:    l.Status,
			StartTime: apitype.NewTime(l.StartTime),
			EndTime:   apitype.NewTime(*l.EndTime),
			Duration:  d,
		})
		durations = append(durations, float64(d))
	}
	return rows, durations
}

func loadLaunchesTable(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount, func(q *gorm.DB) *gorm.DB {
		return q.Preload("User").Preload("Attributes")
	})
	if err != nil {
		return nil, err
	}
	counters, err := query.LaunchStatistics(dbc, launchIDs(launches)...)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]interface{}, 0, len(launches))
	for _, l := range launches {
		rows = append(rows, tableRow(l, counters[l.ID], rq.ContentFields))
	}
	return Content{resultKey: rows}, nil
}

func tableRow(l models.Launch, counters map[string]int, fields []string) map[string]interface{} {
	row := map[string]interface{}{"id": l.ID}
	for _, f := range fields {
		switch f {
		case "name":
			row[f] = l.Name
		case "number":
			row[f] = l.Number
		case "status":
			row[f] = l.Status
		case "description":
			row[f] = l.Description
		case "startTime":
			row[f] = apitype.NewTime(l.StartTime)
		case "endTime":
			row[f] = apitype.TimePtr(l.EndTime)
		case "lastModified":
			row[f] = apitype.NewTime(l.UpdatedAt)
		case "user":
			row[f] = l.User.Login
		case "attributes":
			row[f] = api.AttributeResources(l.Attributes, false)
		default:
			row[f] = counters[f]
		}
	}
	return row
}

type testCaseRow struct {
	UniqueID   string  `json:"uniqueId"`
	Name       string  `json:"name"`
	Total      int     `json:"total"`
	Criteria   int     `json:"criteria"`
	Percentage float64 `json:"percentage"`
}

// loadMostFailed ranks the test cases of the latest launches with the configured name by
// how often they matched the criteria, failures by default.
func loadMostFailed(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	name := optString(rq.Options, OptionLaunchName)
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount, withName(name))
	if err != nil {
		return nil, err
	}
	criteria := optString(rq.Options, OptionCriteria)
	if criteria == "" {
		criteria = apitype.ExecutionsFailed
	}
	if len(launches) == 0 {
		return Content{resultKey: []testCaseRow{}}, nil
	}

	var rows []testCaseRow
	res := dbc.Raw(`SELECT ti.unique_id, MAX(ti.name) AS name, COUNT(*) AS total,
			SUM(CASE WHEN COALESCE(s.counter, 0) > 0 THEN 1 ELSE 0 END) AS criteria
		FROM test_items ti
		LEFT JOIN item_statistics s ON s.item_id = ti.id AND s.field = ?
		WHERE ti.launch_id IN ? AND ti.has_stats AND NOT ti.has_children AND ti.retry_of IS NULL
		GROUP BY ti.unique_id
		HAVING SUM(CASE WHEN COALESCE(s.counter, 0) > 0 THEN 1 ELSE 0 END) > 0
		ORDER BY criteria DESC, name
		LIMIT ?`, criteria, launchIDs(launches), maxTestCases).Scan(&rows)
	if res.Error != nil {
		return nil, res.Error
	}
	for i := range rows {
		rows[i].Percentage = Percentage(rows[i].Criteria, rows[i].Total)
	}
	if rows == nil {
		rows = []testCaseRow{}
	}
	return Content{resultKey: rows, "latestLaunch": launchRef(launches[0]), "criteria": criteria}, nil
}

func launchRef(l models.Launch) map[string]interface{} {
	return map[string]interface{}{"id": l.ID, "name": l.Name, "number": l.Number}
}

func itemTypes(options map[string]interface{}) []string {
	types := []string{string(apitype.ItemTypeStep)}
	if optBool(options, OptionIncludeMethods) {
		types = append(types, string(apitype.ItemTypeBeforeMethod), string(apitype.ItemTypeAfterMethod))
	}
	return types
}

type flakyRow struct {
	UniqueID   string   `json:"uniqueId"`
	Name       string   `json:"name"`
	Total      int      `json:"total"`
	Switches   int      `json:"flakyCount"`
	Percentage float64  `json:"percentage"`
	Statuses   []string `json:"statuses"`
	lastNumber int64
}

type statusRow struct {
	UniqueID     string
	Name         string
	Status       string
	LaunchNumber int64
}

// loadFlaky finds the test cases whose status changed between consecutive launches with the
// configured name.
func loadFlaky(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	name := optString(rq.Options, OptionLaunchName)
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount, withName(name))
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return Content{resultKey: []flakyRow{}}, nil
	}

	var history []statusRow
	res := dbc.Raw(`SELECT ti.unique_id, ti.name, ti.status, l.number AS launch_number
		FROM test_items ti JOIN launches l ON l.id = ti.launch_id
		WHERE ti.launch_id IN ? AND ti.type IN ? AND ti.retry_of IS NULL AND ti.has_stats
		ORDER BY l.start_time, l.id`, launchIDs(launches), itemTypes(rq.Options)).Scan(&history)
	if res.Error != nil {
		return nil, res.Error
	}
	rows := flakyRows(history)
	return Content{resultKey: rows, "latestLaunch": launchRef(launches[0])}, nil
}

// flakyRows counts status switches per unique id over a chronologically ordered history.
func flakyRows(history []statusRow) []flakyRow {
	byID := map[string]*flakyRow{}
	var order []string
	for _, h := range history {
		row, ok := byID[h.UniqueID]
		if !ok {
			row = &flakyRow{UniqueID: h.UniqueID}
			byID[h.UniqueID] = row
			order = append(order, h.UniqueID)
		}
		if n := len(row.Statuses); n > 0 && row.Statuses[n-1] != h.Status {
			row.Switches++
		}
		row.Name = h.Name
		row.Total++
		row.Statuses = append(row.Statuses, h.Status)
		row.lastNumber = h.LaunchNumber
	}

	rows := make([]flakyRow, 0)
	for _, id := range order {
		row := byID[id]
		if row.Switches == 0 {
			continue
		}
		if row.Total > 1 {
			row.Percentage = Percentage(row.Switches, row.Total-1)
		}
		rows = append(rows, *row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Switches != rows[j].Switches {
			return rows[i].Switches > rows[j].Switches
		}
		return rows[i].lastNumber > rows[j].lastNumber
	})
	if len(rows) > maxTestCases {
		rows = rows[:maxTestCases]
	}
	return rows
}

func loadPassingRate(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount)
	if err != nil {
		return nil, err
	}
	objects, err := chartObjects(dbc, launches, []string{apitype.ExecutionsPassed, apitype.ExecutionsTotal})
	if err != nil {
		return nil, err
	}
	sum := sumObjects(objects, []string{apitype.ExecutionsPassed, apitype.ExecutionsTotal})
	passed, total := int(sum.Values[apitype.ExecutionsPassed]), int(sum.Values[apitype.ExecutionsTotal])
	return Content{resultKey: map[string]interface{}{
		"passed":      passed,
		"total":       total,
		"passingRate": Percentage(passed, total),
	}}, nil
}

type timeConsumingRow struct {
	ID        uint         `json:"id"`
	UniqueID  string       `json:"uniqueId"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Status    string       `json:"status"`
	StartTime apitype.Time `json:"startTime"`
	Duration  int64        `json:"duration"`
}

// loadMostTimeConsuming lists the slowest test cases of the latest launch with the
// configured name.
func loadMostTimeConsuming(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	name := optString(rq.Options, OptionLaunchName)
	launches, err := filteredLaunches(dbc, rq, 1, withName(name))
	if err != nil {
		return nil, err
	}
	if len(launches) == 0 {
		return nil, rperrors.New(rperrors.LaunchNotFound, "No launch with name: "+name)
	}
	var items []models.TestItem
	res := dbc.Where("launch_id = ? AND type IN ? AND end_time IS NOT NULL AND retry_of IS NULL",
		launches[0].ID, itemTypes(rq.Options)).
		Order("end_time - start_time DESC").
		Limit(maxTestCases).
		Find(&items)
	if res.Error != nil {
		return nil, res.Error
	}
	rows := make([]timeConsumingRow, 0, len(items))
	for _, ti := range items {
		rows = append(rows, timeConsumingRow{
			ID:        ti.ID,
			UniqueID:  ti.UniqueID,
			Name:      ti.Name,
			Type:      ti.Type,
			Status:    ti.Status,
			StartTime: apitype.NewTime(ti.StartTime),
			Duration:  ti.EndTime.Sub(ti.StartTime).Milliseconds(),
		})
	}
	return Content{resultKey: rows, "latestLaunch": launchRef(launches[0])}, nil
}

const deltaField = "delta"

// loadCasesTrend shows the number of executed test cases per launch or period and the
// difference with the previous point.
func loadCasesTrend(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, rq.ItemsCount)
	if err != nil {
		return nil, err
	}
	objects, err := chartObjects(dbc, chronological(launches), []string{apitype.ExecutionsTotal})
	if err != nil {
		return nil, err
	}
	if timeline := optString(rq.Options, OptionTimeline); timeline == timelineDay || timeline == timelineWeek {
		objects = lastPerPeriod(objects, timeline)
	}
	return Content{resultKey: withDeltas(objects)}, nil
}

// lastPerPeriod keeps the last chart object of every day or week.
func lastPerPeriod(objects []apitype.ChartObject, timeline string) []apitype.ChartObject {
	var result []apitype.ChartObject
	index := map[string]int{}
	for _, o := range objects {
		key := periodKey(o.StartTime.Time, timeline)
		o.Name = key
		if i, ok := index[key]; ok {
			result[i] = o
			continue
		}
		index[key] = len(result)
		result = append(result, o)
	}
	return result
}

func withDeltas(objects []apitype.ChartObject) []apitype.ChartObject {
	for i := range objects {
		prev := objects[i].Values[apitype.ExecutionsTotal]
		if i > 0 {
			prev = objects[i-1].Values[apitype.ExecutionsTotal]
		}
		objects[i].Values[deltaField] = objects[i].Values[apitype.ExecutionsTotal] - prev
	}
	if objects == nil {
		return []apitype.ChartObject{}
	}
	return objects
}

// loadComparison compares the two latest matching launches.
func loadComparison(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	launches, err := filteredLaunches(dbc, rq, 2)
	if err != nil {
		return nil, err
	}
	counters, err := query.LaunchStatistics(dbc, launchIDs(launches)...)
	if err != nil {
		return nil, err
	}
	objects := make([]apitype.ChartObject, 0, len(launches))
	for _, l := range chronological(launches) {
		objects = append(objects, ComparisonObject(l, counters[l.ID]))
	}
	return Content{resultKey: objects}, nil
}

func loadActivityStream(_ context.Context, dbc *gorm.DB, rq Request) (Content, error) {
	q := dbc.Where("project_id = ?", rq.ProjectID)
	if actions := optStrings(rq.Options, OptionActionTypes); len(actions) > 0 {
		q = q.Where("action IN ?", actions)
	}
	if users := optStrings(rq.Options, OptionUsers); len(users) > 0 {
		q = q.Where("username IN ?", users)
	}
	var rows []models.Activity
	if res := q.Order("created_at DESC, id DESC").Limit(rq.ItemsCount).Find(&rows); res.Error != nil {
		return nil, res.Error
	}
	result := make([]apitype.ActivityResource, 0, len(rows))
	for _, a := range rows {
		result = append(result, api.ActivityResource(a))
	}
	return Content{resultKey: result}, nil
}

