package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/dbtest"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/storage"
)

func TestInterruptBrokenLaunches(t *testing.T) {
	dbc := dbtest.Connect(t)
	p := dbtest.NewProject(t, dbc)
	p.SetAttribute(t, dbc, db.AttrInterruptJobTime, "1 hour")
	ctx := context.Background()
	user, project := p.Caller(), p.Details()
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	svc := reporting.NewService(dbc, events.NewBus(), store)
	now := time.Now().UTC().Truncate(time.Second)

	startLaunch := func(name string, start time.Time) string {
		rs, err := svc.StartLaunch(ctx, user, project, apitype.StartLaunchRQ{Name: name, StartTime: apitype.NewTime(start)})
		require.NoError(t, err)
		return rs.ID
	}
	startItem := func(launch string, start time.Time) string {
		rs, err := svc.StartRootItem(ctx, user, project, apitype.StartTestItemRQ{
			Name: "step", LaunchUUID: launch, StartTime: apitype.NewTime(start), Type: string(apitype.ItemTypeStep),
		})
		require.NoError(t, err)
		return rs.ID
	}

	stale := startLaunch("stale", now.Add(-3*time.Hour))
	staleItem := startItem(stale, now.Add(-3*time.Hour))
	empty := startLaunch("empty", now.Add(-3*time.Hour))
	active := startLaunch("active", now.Add(-3*time.Hour))
	startItem(active, now.Add(-10*time.Minute))
	recent := startLaunch("recent", now.Add(-10*time.Minute))
	startItem(recent, now.Add(-10*time.Minute))

	m := NewMaintenance(dbc, svc, store, nil, 2)
	require.NoError(t, m.InterruptBrokenLaunches(ctx))

	expected := map[string]apitype.Status{
		stale:  apitype.StatusInterrupted,
		empty:  apitype.StatusInterrupted,
		active: apitype.StatusInProgress,
		recent: apitype.StatusInProgress,
	}
	for uuid, status := range expected {
		l, err := query.LaunchByUUID(dbc.DB, uuid)
		require.NoError(t, err)
		assert.Equal(t, string(status), l.Status, l.Name)
		if status == apitype.StatusInterrupted {
			require.NotNil(t, l.EndTime, l.Name)
			assert.False(t, l.EndTime.Before(now), l.Name)
		}
	}

	item, err := query.TestItemByUUID(dbc.DB, staleItem)
	require.NoError(t, err)
	assert.Equal(t, string(apitype.StatusInterrupted), item.Status)

	stats, err := query.LaunchStatistics(dbc.DB, item.LaunchID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[item.LaunchID][apitype.ExecutionsFailed])
}
