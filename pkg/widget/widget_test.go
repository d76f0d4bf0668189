package widget

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/cache/redis"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/rperrors"
)

func TestEveryTypeHasLoaderAndValidator(t *testing.T) {
	assert.Len(t, Types(), 12)
	for _, typ := range Types() {
		_, ok := validators[typ]
		assert.True(t, ok, "no validator for %s", typ)
	}
}

func TestValidate(t *testing.T) {
	stat := apitype.ContentParameters{ItemsCount: 10, ContentFields: []string{apitype.ExecutionsTotal, "statistics$defects$product_bug$pb001"}}

	cases := []struct {
		name        string
		widgetType  string
		params      apitype.ContentParameters
		filterCount int
		errType     *rperrors.ErrorType
	}{
		{name: "statistic trend", widgetType: "statisticTrend", params: stat, filterCount: 1},
		{name: "unknown type", widgetType: "pie", params: stat, filterCount: 1, errType: &rperrors.UnableToCreateWidget},
		{name: "too many items", widgetType: "statisticTrend", params: apitype.ContentParameters{ItemsCount: 601, ContentFields: stat.ContentFields},
			filterCount: 1, errType: &rperrors.BadSaveWidgetRequest},
		{name: "no filters", widgetType: "overallStatistics", params: stat, errType: &rperrors.BadSaveWidgetRequest},
		{name: "bad field", widgetType: "launchStatistics", params: apitype.ContentParameters{ItemsCount: 1, ContentFields: []string{"statistics$defects$product_bug$"}},
			filterCount: 1, errType: &rperrors.BadSaveWidgetRequest},
		{name: "table column", widgetType: "launchesTable", params: apitype.ContentParameters{ItemsCount: 5, ContentFields: []string{"name", apitype.ExecutionsFailed}},
			filterCount: 1},
		{name: "missing launch name", widgetType: "mostFailedTestCases", params: apitype.ContentParameters{ItemsCount: 5},
			filterCount: 1, errType: &rperrors.BadSaveWidgetRequest},
		{name: "bad criteria", widgetType: "mostFailedTestCases", params: apitype.ContentParameters{ItemsCount: 5,
			WidgetOptions: map[string]interface{}{OptionLaunchName: "nightly", OptionCriteria: "color"}},
			filterCount: 1, errType: &rperrors.BadSaveWidgetRequest},
		{name: "bad timeline", widgetType: "casesTrend", params: apitype.ContentParameters{ItemsCount: 5,
			WidgetOptions: map[string]interface{}{OptionTimeline: "year"}}, filterCount: 1, errType: &rperrors.BadSaveWidgetRequest},
		{name: "activity stream without filters", widgetType: "activityStream", params: apitype.ContentParameters{ItemsCount: 5,
			WidgetOptions: map[string]interface{}{OptionActionTypes: []interface{}{"startLaunch", "deleteLaunch"}}}},
		{name: "unknown activity", widgetType: "activityStream", params: apitype.ContentParameters{ItemsCount: 5,
			WidgetOptions: map[string]interface{}{OptionActionTypes: "jump"}}, errType: &rperrors.BadSaveWidgetRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.widgetType, tc.params, tc.filterCount)
			if tc.errType == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, rperrors.Is(err, *tc.errType), "unexpected error %v", err)
		})
	}
}

func TestOptions(t *testing.T) {
	options := map[string]interface{}{"a": " x ", "b": true, "c": "true", "d": []interface{}{"p", 3, ""}}
	assert.Equal(t, "x", optString(options, "a"))
	assert.True(t, optBool(options, "b"))
	assert.True(t, optBool(options, "c"))
	assert.False(t, optBool(options, "missing"))
	assert.Equal(t, []string{"p"}, optStrings(options, "d"))
	assert.Equal(t, []string{" x "}, optStrings(options, "a"))
}

func chart(id uint, start time.Time, total float64) apitype.ChartObject {
	return apitype.ChartObject{ID: id, StartTime: apitype.NewTime(start), Values: map[string]float64{apitype.ExecutionsTotal: total}}
}

func TestTimelines(t *testing.T) {
	wed := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	objects := []apitype.ChartObject{
		chart(1, wed, 3),
		chart(2, wed.Add(time.Hour), 4),
		chart(3, wed.AddDate(0, 0, 1), 5),
		chart(4, wed.AddDate(0, 0, 7), 6),
	}

	days := groupByPeriod(objects, timelineDay)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-03-06", days[0].Name)
	assert.Equal(t, 7.0, days[0].Values[apitype.ExecutionsTotal])

	weeks := groupByPeriod(objects, timelineWeek)
	require.Len(t, weeks, 2)
	assert.Equal(t, "2024-03-04", weeks[0].Name)
	assert.Equal(t, 12.0, weeks[0].Values[apitype.ExecutionsTotal])

	last := lastPerPeriod(objects, timelineDay)
	require.Len(t, last, 3)
	assert.Equal(t, uint(2), last[0].ID)

	trend := withDeltas([]apitype.ChartObject{chart(1, wed, 3), chart(2, wed, 5), chart(3, wed, 4)})
	assert.Equal(t, []float64{0, 2, -1}, []float64{
		trend[0].Values[deltaField], trend[1].Values[deltaField], trend[2].Values[deltaField],
	})
	assert.NotNil(t, withDeltas(nil))
}

func TestLatestPerName(t *testing.T) {
	launches := []models.Launch{{Name: "a", Number: 2}, {Name: "b", Number: 1}, {Name: "a", Number: 1}}
	for i := range launches {
		launches[i].ID = uint(i + 1)
	}
	latest := latestPerName(launches)
	require.Len(t, latest, 2)
	assert.Equal(t, uint(1), latest[0].ID)
	assert.Equal(t, uint(2), latest[1].ID)

	sum := sumObjects([]apitype.ChartObject{chart(1, time.Time{}, 2), chart(2, time.Time{}, 3)},
		[]string{apitype.ExecutionsTotal, apitype.ExecutionsFailed})
	assert.Equal(t, map[string]float64{apitype.ExecutionsTotal: 5, apitype.ExecutionsFailed: 0}, sum.Values)
}

func TestDurationRows(t *testing.T) {
	start := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	rows, durations := durationRows([]models.Launch{{Name: "a", StartTime: start, EndTime: &end}, {Name: "running", StartTime: start}})
	require.Len(t, rows, 1)
	assert.Equal(t, int64(90000), rows[0].Duration)
	assert.Equal(t, []float64{90000}, durations)
}

func TestFlakyRows(t *testing.T) {
	history := []statusRow{
		{UniqueID: "stable", Name: "stable", Status: "PASSED", LaunchNumber: 1},
		{UniqueID: "flaky", Name: "flaky", Status: "PASSED", LaunchNumber: 1},
		{UniqueID: "stable", Name: "stable", Status: "PASSED", LaunchNumber: 2},
		{UniqueID: "flaky", Name: "flaky", Status: "FAILED", LaunchNumber: 2},
		{UniqueID: "flaky", Name: "flaky renamed", Status: "PASSED", LaunchNumber: 3},
	}
	want := []flakyRow{{
		UniqueID:   "flaky",
		Name:       "flaky renamed",
		Total:      3,
		Switches:   2,
		Percentage: 100,
		Statuses:   []string{"PASSED", "FAILED", "PASSED"},
		lastNumber: 3,
	}}
	if diff := cmp.Diff(want, flakyRows(history), cmp.AllowUnexported(flakyRow{})); diff != "" {
		t.Errorf("unexpected flaky rows (-want +got):\n%s", diff)
	}
}

func TestComparisonObject(t *testing.T) {
	launch := models.Launch{Name: "nightly", Number: 4, StartTime: time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)}
	launch.ID = 9
	counters := map[string]int{
		apitype.ExecutionsTotal:                                   3,
		apitype.ExecutionsPassed:                                  2,
		apitype.ExecutionsFailed:                                  1,
		apitype.DefectTotalField(apitype.IssueGroupProductBug):    1,
		apitype.DefectTotalField(apitype.IssueGroupToInvestigate): 2,
	}

	obj := ComparisonObject(launch, counters)
	assert.Equal(t, uint(9), obj.ID)
	assert.Equal(t, 66.67, obj.Values[apitype.ExecutionsPassed])
	assert.Equal(t, 33.33, obj.Values[apitype.ExecutionsFailed])
	assert.Equal(t, 0.0, obj.Values[apitype.ExecutionsSkipped])
	assert.Equal(t, 66.67, obj.Values[apitype.DefectTotalField(apitype.IssueGroupToInvestigate)])

	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 50.0, Percentage(1, 2))
}

func TestProviderServesCachedContent(t *testing.T) {
	srv := miniredis.RunT(t)
	c, err := redis.NewRedisCache("redis://" + srv.Addr())
	require.NoError(t, err)
	defer c.Close()

	w := models.Widget{WidgetType: string(LaunchStatistics), ItemsCount: 1}
	w.ID = 7
	w.UpdatedAt = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

	key, err := json.Marshal(contentCacheKey{Kind: "WidgetContent", WidgetID: 7, Updated: w.UpdatedAt.UnixMilli()})
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), string(key), []byte(`{"result":[{"id":1}]}`), time.Minute))

	content, err := NewProvider(nil, c, time.Minute).Content(context.Background(), w, nil, false)
	require.NoError(t, err)
	assert.Contains(t, content, "result")
}
