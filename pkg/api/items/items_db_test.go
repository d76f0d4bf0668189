package items

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db/dbtest"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/rperrors"
	"github.com/reportportal/service-api/pkg/storage"
)

func TestDeleteItemRecalculates(t *testing.T) {
	dbc := dbtest.Connect(t)
	p := dbtest.NewProject(t, dbc)
	ctx := context.Background()
	user, project := p.Caller(), p.Details()
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	svc := reporting.NewService(dbc, events.NewBus(), store)
	start := time.Now().UTC().Truncate(time.Second)
	at := func(d time.Duration) apitype.Time { return apitype.NewTime(start.Add(d)) }

	launch, err := svc.StartLaunch(ctx, user, project, apitype.StartLaunchRQ{Name: "delete", StartTime: at(0)})
	require.NoError(t, err)
	suite, err := svc.StartRootItem(ctx, user, project,
		apitype.StartTestItemRQ{Name: "suite", LaunchUUID: launch.ID, StartTime: at(time.Second), Type: string(apitype.ItemTypeSuite)})
	require.NoError(t, err)
	steps := map[apitype.Status]string{}
	for _, status := range []apitype.Status{apitype.StatusPassed, apitype.StatusFailed} {
		rs, err := svc.StartChildItem(ctx, user, project, suite.ID,
			apitype.StartTestItemRQ{Name: string(status), LaunchUUID: launch.ID, StartTime: at(time.Second), Type: string(apitype.ItemTypeStep)})
		require.NoError(t, err)
		_, err = svc.FinishTestItem(ctx, user, project, rs.ID, apitype.FinishTestItemRQ{EndTime: at(time.Minute), Status: string(status)})
		require.NoError(t, err)
		steps[status] = rs.ID
	}
	_, err = svc.FinishTestItem(ctx, user, project, suite.ID, apitype.FinishTestItemRQ{EndTime: at(time.Minute)})
	require.NoError(t, err)

	m := NewManager(dbc, events.NewBus(), store, nil)
	failed, err := query.TestItemByUUID(dbc.DB, steps[apitype.StatusFailed])
	require.NoError(t, err)

	err = m.DeleteItem(ctx, user, project, failed.ID)
	assert.True(t, rperrors.Is(err, rperrors.LaunchIsNotFinished), "unexpected error %v", err)

	_, err = svc.FinishLaunch(ctx, user, project, launch.ID, apitype.FinishExecutionRQ{EndTime: at(2 * time.Minute)}, "")
	require.NoError(t, err)
	l, err := query.LaunchByUUID(dbc.DB, launch.ID)
	require.NoError(t, err)
	require.Equal(t, string(apitype.StatusFailed), l.Status)

	require.NoError(t, m.DeleteItem(ctx, user, project, failed.ID))

	deleted, err := query.TestItemByID(dbc.DB, failed.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)

	parent, err := query.TestItemByUUID(dbc.DB, suite.ID)
	require.NoError(t, err)
	assert.Equal(t, string(apitype.StatusPassed), parent.Status)
	assert.True(t, parent.HasChildren)

	expected := map[string]int{apitype.ExecutionsTotal: 1, apitype.ExecutionsPassed: 1}
	itemStats, err := query.ItemStatistics(dbc.DB, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, itemStats[parent.ID])
	launchStats, err := query.LaunchStatistics(dbc.DB, l.ID)
	require.NoError(t, err)
	assert.Equal(t, expected, launchStats[l.ID])
	l, err = query.LaunchByID(dbc.DB, l.ID)
	require.NoError(t, err)
	assert.Equal(t, string(apitype.StatusPassed), l.Status)

	passed, err := query.TestItemByUUID(dbc.DB, steps[apitype.StatusPassed])
	require.NoError(t, err)
	rs := m.DeleteItems(ctx, user, project, []uint{passed.ID, failed.ID})
	assert.Equal(t, []uint{passed.ID}, rs.Deleted)
	assert.Equal(t, []uint{failed.ID}, rs.NotFound)

	parent, err = query.TestItemByUUID(dbc.DB, suite.ID)
	require.NoError(t, err)
	assert.False(t, parent.HasChildren, "a parent without children left becomes a leaf")
}
