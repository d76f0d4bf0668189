package reporting

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/dbtest"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

type reportingFixture struct {
	t       *testing.T
	ctx     context.Context
	dbc     *db.DB
	project *dbtest.Project
	svc     *Service
	start   time.Time
}

func newReportingFixture(t *testing.T) *reportingFixture {
	dbc := dbtest.Connect(t)
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	return &reportingFixture{
		t:       t,
		ctx:     context.Background(),
		dbc:     dbc,
		project: dbtest.NewProject(t, dbc),
		svc:     NewService(dbc, events.NewBus(), store),
		start:   time.Now().UTC().Truncate(time.Second),
	}
}

// at is a point in time relative to the start of the fixture.
func (f *reportingFixture) at(seconds int) apitype.Time {
	return apitype.NewTime(f.start.Add(time.Duration(seconds) * time.Second))
}

func (f *reportingFixture) startLaunch(name string) string {
	rs, err := f.svc.StartLaunch(f.ctx, f.project.Caller(), f.project.Details(), apitype.StartLaunchRQ{Name: name, StartTime: f.at(0)})
	require.NoError(f.t, err)
	return rs.ID
}

// startItem starts a root item when parent is empty, a child item otherwise.
func (f *reportingFixture) startItem(launch, parent, name string, itemType apitype.ItemType, retry bool) string {
	rq := apitype.StartTestItemRQ{Name: name, LaunchUUID: launch, StartTime: f.at(1), Type: string(itemType), Retry: retry}
	var rs *apitype.ItemCreatedRS
	var err error
	if parent == "" {
		rs, err = f.svc.StartRootItem(f.ctx, f.project.Caller(), f.project.Details(), rq)
	} else {
		rs, err = f.svc.StartChildItem(f.ctx, f.project.Caller(), f.project.Details(), parent, rq)
	}
	require.NoError(f.t, err)
	return rs.ID
}

func (f *reportingFixture) finishItem(item string, status apitype.Status, issue *apitype.Issue) {
	_, err := f.svc.FinishTestItem(f.ctx, f.project.Caller(), f.project.Details(), item,
		apitype.FinishTestItemRQ{EndTime: f.at(10), Status: string(status), Issue: issue})
	require.NoError(f.t, err)
}

func (f *reportingFixture) item(uuid string) *models.TestItem {
	item, err := query.TestItemByUUID(f.dbc.DB, uuid)
	require.NoError(f.t, err)
	require.NotNil(f.t, item, "item %s", uuid)
	return item
}

func (f *reportingFixture) launch(uuid string) *models.Launch {
	launch, err := query.LaunchByUUID(f.dbc.DB, uuid)
	require.NoError(f.t, err)
	require.NotNil(f.t, launch, "launch %s", uuid)
	return launch
}

func (f *reportingFixture) itemCounters(uuid string) map[string]int {
	id := f.item(uuid).ID
	stats, err := query.ItemStatistics(f.dbc.DB, id)
	require.NoError(f.t, err)
	return nonZero(stats[id])
}

func (f *reportingFixture) launchCounters(uuid string) map[string]int {
	id := f.launch(uuid).ID
	stats, err := query.LaunchStatistics(f.dbc.DB, id)
	require.NoError(f.t, err)
	return nonZero(stats[id])
}

// nonZero drops counters brought back to zero, which stay stored as rows.
func nonZero(counters map[string]int) map[string]int {
	result := map[string]int{}
	for k, v := range counters {
		if v != 0 {
			result[k] = v
		}
	}
	return result
}

func TestFinishParentTakesStatusOfChildren(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("parent status")

	tests := []struct {
		name       string
		child      apitype.Status
		reported   apitype.Status
		identified apitype.Status
	}{
		{name: "failed child overrides passed", child: apitype.StatusFailed, reported: apitype.StatusPassed, identified: apitype.StatusFailed},
		{name: "passed child overrides failed", child: apitype.StatusPassed, reported: apitype.StatusFailed, identified: apitype.StatusPassed},
		{name: "no status reported", child: apitype.StatusFailed, identified: apitype.StatusFailed},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			suite := f.startItem(launch, "", "suite "+strconv.Itoa(i), apitype.ItemTypeSuite, false)
			step := f.startItem(launch, suite, "step", apitype.ItemTypeStep, false)
			f.finishItem(step, tc.child, nil)
			f.finishItem(suite, tc.reported, nil)

			assert.Equal(t, string(tc.identified), f.item(suite).Status)
			assert.Equal(t, string(tc.child), f.item(step).Status)
		})
	}
}

func TestFinishLeafWithoutStatus(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("ambiguous")
	step := f.startItem(launch, "", "step", apitype.ItemTypeStep, false)

	_, err := f.svc.FinishTestItem(f.ctx, f.project.Caller(), f.project.Details(), step, apitype.FinishTestItemRQ{EndTime: f.at(10)})
	assert.True(t, rperrors.Is(err, rperrors.AmbiguousTestItemStatus), "unexpected error %v", err)
	assert.Equal(t, string(apitype.StatusInProgress), f.item(step).Status)
}

func TestStatisticsPropagateToAncestorsAndLaunch(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("statistics")
	suite := f.startItem(launch, "", "suite", apitype.ItemTypeSuite, false)
	test := f.startItem(launch, suite, "test", apitype.ItemTypeTest, false)
	passed := f.startItem(launch, test, "passed", apitype.ItemTypeStep, false)
	failed := f.startItem(launch, test, "failed", apitype.ItemTypeStep, false)
	skipped := f.startItem(launch, test, "skipped", apitype.ItemTypeStep, false)

	f.finishItem(passed, apitype.StatusPassed, nil)
	f.finishItem(failed, apitype.StatusFailed, &apitype.Issue{IssueType: "pb001", Comment: "known"})
	f.finishItem(skipped, apitype.StatusSkipped, &apitype.Issue{IssueType: apitype.NotIssueFlag})
	f.finishItem(test, "", nil)
	f.finishItem(suite, "", nil)

	expected := map[string]int{
		apitype.ExecutionsTotal:                                    3,
		apitype.ExecutionsPassed:                                   1,
		apitype.ExecutionsFailed:                                   1,
		apitype.ExecutionsSkipped:                                  1,
		apitype.DefectTotalField(apitype.IssueGroupProductBug):     1,
		apitype.DefectField(apitype.IssueGroupProductBug, "pb001"): 1,
	}
	assert.Equal(t, expected, f.itemCounters(test))
	assert.Equal(t, expected, f.itemCounters(suite))
	assert.Equal(t, expected, f.launchCounters(launch))
	assert.Equal(t, map[string]int{apitype.ExecutionsTotal: 1, apitype.ExecutionsPassed: 1}, f.itemCounters(passed))

	failedItem := f.item(failed)
	require.NotNil(t, failedItem.Issue)
	assert.Equal(t, "pb001", failedItem.Issue.IssueType.Locator)
	assert.Equal(t, "known", failedItem.Issue.Comment)
	assert.Nil(t, f.item(skipped).Issue)
	assert.Equal(t, string(apitype.StatusFailed), f.item(test).Status)
	assert.Equal(t, string(apitype.StatusFailed), f.item(suite).Status)

	_, err := f.svc.FinishLaunch(f.ctx, f.project.Caller(), f.project.Details(), launch,
		apitype.FinishExecutionRQ{EndTime: f.at(20)}, "http://rp.local")
	require.NoError(t, err)
	assert.Equal(t, string(apitype.StatusFailed), f.launch(launch).Status)
}

func TestRetryReplacesPreviousAttempt(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("retries")
	suite := f.startItem(launch, "", "suite", apitype.ItemTypeSuite, false)
	first := f.startItem(launch, suite, "flaky", apitype.ItemTypeStep, false)
	f.finishItem(first, apitype.StatusFailed, nil)

	second := f.startItem(launch, suite, "flaky", apitype.ItemTypeStep, true)
	f.finishItem(second, apitype.StatusPassed, nil)
	f.finishItem(suite, "", nil)

	previous, retry := f.item(first), f.item(second)
	require.NotNil(t, previous.RetryOf)
	assert.Equal(t, retry.ID, *previous.RetryOf)
	assert.False(t, previous.HasStats)
	assert.Nil(t, retry.RetryOf)
	assert.True(t, retry.HasRetries)
	assert.True(t, f.item(suite).HasRetries)
	assert.True(t, f.launch(launch).HasRetries)

	// only the latest attempt counts
	expected := map[string]int{apitype.ExecutionsTotal: 1, apitype.ExecutionsPassed: 1}
	assert.Equal(t, expected, f.itemCounters(suite))
	assert.Equal(t, expected, f.launchCounters(launch))
	assert.Equal(t, string(apitype.StatusPassed), f.item(suite).Status)
}

func TestFinishLaunchInterruptsRunningItems(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("interrupted")
	suite := f.startItem(launch, "", "suite", apitype.ItemTypeSuite, false)
	test := f.startItem(launch, suite, "test", apitype.ItemTypeTest, false)
	running := f.startItem(launch, test, "running", apitype.ItemTypeStep, false)
	done := f.startItem(launch, test, "done", apitype.ItemTypeStep, false)
	f.finishItem(done, apitype.StatusPassed, nil)

	_, err := f.svc.FinishLaunch(f.ctx, f.project.Caller(), f.project.Details(), launch,
		apitype.FinishExecutionRQ{EndTime: f.at(20), Status: string(apitype.StatusPassed)}, "")
	require.NoError(t, err)

	for _, uuid := range []string{running, test, suite} {
		item := f.item(uuid)
		assert.Equal(t, string(apitype.StatusInterrupted), item.Status, item.Name)
		require.NotNil(t, item.EndTime)
	}
	assert.Nil(t, f.item(running).Issue, "interrupted items get no issue")
	assert.Equal(t, map[string]int{apitype.ExecutionsTotal: 2, apitype.ExecutionsPassed: 1, apitype.ExecutionsFailed: 1},
		f.launchCounters(launch))
	// a reported status is ignored once items had to be interrupted
	assert.Equal(t, string(apitype.StatusFailed), f.launch(launch).Status)
}

func TestFinishParentInterruptsDescendants(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.startLaunch("parent interrupts")
	suite := f.startItem(launch, "", "suite", apitype.ItemTypeSuite, false)
	test := f.startItem(launch, suite, "test", apitype.ItemTypeTest, false)
	step := f.startItem(launch, test, "step", apitype.ItemTypeStep, false)

	f.finishItem(suite, apitype.StatusPassed, nil)

	assert.Equal(t, string(apitype.StatusInterrupted), f.item(step).Status)
	assert.Equal(t, string(apitype.StatusInterrupted), f.item(test).Status)
	assert.Equal(t, string(apitype.StatusFailed), f.item(suite).Status)
	assert.Equal(t, map[string]int{apitype.ExecutionsTotal: 1, apitype.ExecutionsFailed: 1}, f.itemCounters(suite))
}

func TestBulkStopLaunch(t *testing.T) {
	f := newReportingFixture(t)
	first := f.launch(f.startLaunch("bulk"))
	second := f.launch(f.startLaunch("bulk"))
	f.startItem(second.UUID, "", "running", apitype.ItemTypeStep, false)
	missing := uint(1 << 30)

	attrs := make([]apitype.ItemAttributeResource, 1, 4)
	attrs[0] = apitype.ItemAttributeResource{Key: "build", Value: "42"}
	entity := apitype.FinishExecutionRQ{Description: "manual", Attributes: attrs}
	rs := f.svc.BulkStopLaunch(f.ctx, f.project.Caller(), f.project.Details(), apitype.BulkFinishRQ{
		Entities: map[uint]apitype.FinishExecutionRQ{missing: entity, second.ID: entity, first.ID: entity},
	})

	require.Len(t, rs, 3)
	assert.Equal(t, "Launch with ID = '"+strconv.Itoa(int(first.ID))+"' successfully stopped.", rs[0].Message)
	assert.Equal(t, "Launch with ID = '"+strconv.Itoa(int(second.ID))+"' successfully stopped.", rs[1].Message)
	assert.Contains(t, rs[2].Message, strconv.Itoa(int(missing)))

	// the caller's attributes are not written through
	assert.Equal(t, apitype.ItemAttributeResource{}, attrs[:2][1])

	for _, l := range []*models.Launch{first, second} {
		var stored models.Launch
		require.NoError(t, f.dbc.DB.Preload("Attributes").First(&stored, l.ID).Error)
		assert.Equal(t, string(apitype.StatusStopped), stored.Status)
		assert.Equal(t, "manual stopped", stored.Description)
		pairs := map[string]bool{}
		for _, a := range stored.Attributes {
			pairs[a.Key+":"+a.Value] = a.System
		}
		assert.Equal(t, map[string]bool{"build:42": false, "status:stopped": true}, pairs)
	}

	var interrupted models.TestItem
	require.NoError(t, f.dbc.DB.Where("launch_id = ?", second.ID).First(&interrupted).Error)
	assert.Equal(t, string(apitype.StatusInterrupted), interrupted.Status)
}

func TestStopLaunchKeepsRequestAttributes(t *testing.T) {
	f := newReportingFixture(t)
	launch := f.launch(f.startLaunch("stop"))

	attrs := make([]apitype.ItemAttributeResource, 1, 2)
	attrs[0] = apitype.ItemAttributeResource{Key: "os", Value: "linux"}
	_, err := f.svc.StopLaunch(f.ctx, f.project.Caller(), f.project.Details(), launch.ID, apitype.FinishExecutionRQ{Attributes: attrs})
	require.NoError(t, err)

	assert.Len(t, attrs, 1)
	assert.Equal(t, apitype.ItemAttributeResource{}, attrs[:2][1])

	_, err = f.svc.StopLaunch(f.ctx, f.project.Caller(), f.project.Details(), launch.ID, apitype.FinishExecutionRQ{})
	assert.True(t, rperrors.Is(err, rperrors.FinishLaunchNotAllowed), "unexpected error %v", err)
}
