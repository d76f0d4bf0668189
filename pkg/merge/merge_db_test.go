package merge

import (
	"context"
	"strings"
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
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/storage"
)

// reportSuite reports a finished launch holding suite > test > step, and returns the launch
// with the uuids of its items in that order.
func reportSuite(t *testing.T, svc *reporting.Service, p *dbtest.Project, start time.Time, step string,
	status apitype.Status) (*models.Launch, []string) {
	ctx := context.Background()
	user, project := p.Caller(), p.Details()

	launch, err := svc.StartLaunch(ctx, user, project, apitype.StartLaunchRQ{Name: "source", StartTime: apitype.NewTime(start)})
	require.NoError(t, err)
	var uuids []string
	parent := ""
	for _, it := range []struct {
		name     string
		itemType apitype.ItemType
	}{{"suite", apitype.ItemTypeSuite}, {"test", apitype.ItemTypeTest}, {step, apitype.ItemTypeStep}} {
		rq := apitype.StartTestItemRQ{Name: it.name, LaunchUUID: launch.ID, StartTime: apitype.NewTime(start), Type: string(it.itemType)}
		var rs *apitype.ItemCreatedRS
		if parent == "" {
			rs, err = svc.StartRootItem(ctx, user, project, rq)
		} else {
			rs, err = svc.StartChildItem(ctx, user, project, parent, rq)
		}
		require.NoError(t, err)
		uuids = append(uuids, rs.ID)
		parent = rs.ID
	}

	end := apitype.NewTime(start.Add(time.Minute))
	for i := len(uuids) - 1; i >= 0; i-- {
		rq := apitype.FinishTestItemRQ{EndTime: end}
		if i == len(uuids)-1 {
			rq.Status = string(status)
		}
		_, err := svc.FinishTestItem(ctx, user, project, uuids[i], rq)
		require.NoError(t, err)
	}
	_, err = svc.FinishLaunch(ctx, user, project, launch.ID, apitype.FinishExecutionRQ{EndTime: end}, "")
	require.NoError(t, err)

	l, err := query.LaunchByUUID(svc.DB().DB, launch.ID)
	require.NoError(t, err)
	return l, uuids
}

func loadItem(t *testing.T, dbc *db.DB, uuid string) *models.TestItem {
	item, err := query.TestItemByUUID(dbc.DB, uuid)
	require.NoError(t, err)
	return item
}

func TestDeepMerge(t *testing.T) {
	dbc := dbtest.Connect(t)
	p := dbtest.NewProject(t, dbc)
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	svc := reporting.NewService(dbc, events.NewBus(), store)
	start := time.Now().UTC().Truncate(time.Second)

	first, firstItems := reportSuite(t, svc, p, start, "login", apitype.StatusPassed)
	second, secondItems := reportSuite(t, svc, p, start.Add(time.Minute), "logout", apitype.StatusFailed)

	merged, err := NewMerger(dbc, events.NewBus()).Merge(context.Background(), p.Caller(), p.Details(), apitype.MergeLaunchesRQ{
		Name:      "merged",
		Launches:  []uint{first.ID, second.ID},
		MergeType: "DEEP",
	})
	require.NoError(t, err)
	require.NotNil(t, merged)

	suite, test := loadItem(t, dbc, firstItems[0]), loadItem(t, dbc, firstItems[1])
	require.NotNil(t, suite)
	require.NotNil(t, test)
	assert.Nil(t, loadItem(t, dbc, secondItems[0]), "duplicate suite is deleted")
	assert.Nil(t, loadItem(t, dbc, secondItems[1]), "duplicate test is deleted")

	// the step of the second launch now lives under the first launch's items
	moved := loadItem(t, dbc, secondItems[2])
	require.NotNil(t, moved)
	assert.Equal(t, merged.ID, moved.LaunchID)
	require.NotNil(t, moved.ParentID)
	assert.Equal(t, test.ID, *moved.ParentID)
	assert.Equal(t, query.ChildPath(test.Path, moved.ID), moved.Path)
	assert.True(t, strings.HasPrefix(moved.Path, suite.Path+"."))

	var children int64
	require.NoError(t, dbc.DB.Model(&models.TestItem{}).Where("parent_id = ?", test.ID).Count(&children).Error)
	assert.EqualValues(t, 2, children)
	assert.Equal(t, string(apitype.StatusFailed), test.Status)
	assert.Equal(t, string(apitype.StatusFailed), suite.Status)

	expected := map[string]int{
		apitype.ExecutionsTotal:                                       2,
		apitype.ExecutionsPassed:                                      1,
		apitype.ExecutionsFailed:                                      1,
		apitype.DefectTotalField(apitype.IssueGroupToInvestigate):     1,
		apitype.DefectField(apitype.IssueGroupToInvestigate, "ti001"): 1,
	}
	itemStats, err := query.ItemStatistics(dbc.DB, suite.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, itemStats[suite.ID])
	launchStats, err := query.LaunchStatistics(dbc.DB, merged.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, launchStats[merged.ID])
	assert.Equal(t, string(apitype.StatusFailed), merged.Status)
	assert.Equal(t, start, merged.StartTime.UTC())

	for _, source := range []*models.Launch{first, second} {
		l, err := query.LaunchByID(dbc.DB, source.ID)
		require.NoError(t, err)
		assert.Nil(t, l, "source launch %d is deleted", source.ID)
	}
}
