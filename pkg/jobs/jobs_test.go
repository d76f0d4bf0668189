package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
)

func noop(context.Context) error { return nil }

func TestSchedulerAdd(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Add("b", "*/10 * * * *", noop))
	require.NoError(t, s.Add("a", "0 0 * * *", noop))
	assert.Error(t, s.Add("c", "every minute", noop))
	assert.Equal(t, []string{"a", "b"}, s.Names())
}

func TestSchedulerNext(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Add(CleanLogs, "0 0 * * *", noop))
	require.NoError(t, s.Add(CleanLaunches, "0 0 * * *", noop))
	require.NoError(t, s.Add(InterruptBrokenLaunches, "*/10 * * * *", noop))

	now := time.Date(2024, 3, 1, 23, 55, 0, 0, time.UTC)
	due, at := s.next(now)
	require.Len(t, due, 1)
	assert.Equal(t, InterruptBrokenLaunches, due[0].Name)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), at)

	s = NewScheduler()
	require.NoError(t, s.Add(CleanLogs, "0 0 * * *", noop))
	require.NoError(t, s.Add(CleanLaunches, "0 0 * * *", noop))
	due, at = s.next(now)
	assert.Len(t, due, 2)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), at)
}

func TestRunOnce(t *testing.T) {
	s := NewScheduler()
	runs := 0
	require.NoError(t, s.Add("count", "* * * * *", func(context.Context) error {
		runs++
		return nil
	}))
	boom := errors.New("boom")
	require.NoError(t, s.Add("fail", "* * * * *", func(context.Context) error { return boom }))

	require.NoError(t, s.RunOnce(context.Background(), "count"))
	assert.Equal(t, 1, runs)
	assert.Equal(t, boom, s.RunOnce(context.Background(), "fail"))
	assert.Error(t, s.RunOnce(context.Background(), "missing"))

	require.True(t, s.acquire("count"))
	assert.Error(t, s.RunOnce(context.Background(), "count"))
	s.release("count")
	assert.NoError(t, s.RunOnce(context.Background(), "count"))
}

func TestRunStopsOnCancel(t *testing.T) {
	s := NewScheduler()
	require.NoError(t, s.Add("yearly", "0 0 1 1 *", noop))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRegister(t *testing.T) {
	cfg := v1.JobsConfig{
		InterruptBrokenLaunchesCron: "*/10 * * * *",
		CleanLaunchesCron:           "0 0 * * *",
		CleanLogsCron:               "0 1 * * *",
		CleanAttachmentsCron:        "0 2 * * *",
	}
	s := NewScheduler()
	require.NoError(t, NewMaintenance(nil, nil, nil, nil, 0).Register(s, cfg))
	assert.Equal(t, []string{CleanAttachments, CleanLaunches, CleanLogs, InterruptBrokenLaunches}, s.Names())

	cfg.CleanLogsCron = "never"
	assert.Error(t, NewMaintenance(nil, nil, nil, nil, 0).Register(NewScheduler(), cfg))
}
