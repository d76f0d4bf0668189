// Package events is an in-process bus used to fan out domain events, such as a finished
// launch, to the components reacting to them.
package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/reportportal/service-api/pkg/db/models"
)

type Type string

const (
	LaunchStarted   Type = "launchStarted"
	LaunchFinished  Type = "launchFinished"
	LaunchDeleted   Type = "launchDeleted"
	LaunchesMerged  Type = "launchesMerged"
	ItemsDefected   Type = "itemsDefected"
	ActivityCreated Type = "activity"
)

// Event carries the entity the event is about. Launch is set for launch events and
// Activity for audit events.
type Event struct {
	Type      Type
	ProjectID uint
	Login     string
	BaseURL   string
	Launch    *models.Launch
	ItemIDs   []uint
	Activity  *models.Activity
}

type Handler func(ctx context.Context, e Event) error

// Bus delivers events synchronously to every handler subscribed to the type. A failing
// handler is logged and does not stop delivery to the others.
type Bus struct {
	lock     sync.RWMutex
	handlers map[Type][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[Type][]Handler{}}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	b.lock.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.lock.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event":   e.Type,
				"project": e.ProjectID,
			}).Error("event handler failed")
		}
	}
}
