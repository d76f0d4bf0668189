package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reportportal/service-api/pkg/db/models"
)

func TestBus(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(LaunchFinished, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.Launch.Name)
		return errors.New("analyzer unavailable")
	})
	bus.Subscribe(LaunchFinished, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.Launch.Name)
		return nil
	})
	bus.Subscribe(LaunchDeleted, func(_ context.Context, e Event) error {
		got = append(got, "deleted")
		return nil
	})

	bus.Publish(context.Background(), Event{Type: LaunchFinished, Launch: &models.Launch{Name: "smoke"}})
	assert.Equal(t, []string{"first:smoke", "second:smoke"}, got)

	var nilBus *Bus
	nilBus.Publish(context.Background(), Event{Type: LaunchFinished})
}
