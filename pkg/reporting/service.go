// Package reporting ingests launches, test items and logs sent by agents, maintaining item
// hierarchy, statuses and statistics as they arrive.
package reporting

import (
	"context"
	"time"

	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/logindex"
	"github.com/reportportal/service-api/pkg/storage"
)

// LogIndexer receives logs as they are saved, for full text search.
type LogIndexer interface {
	IndexLogs(ctx context.Context, projectID uint, docs []logindex.Document) error
}

type Service struct {
	dbc   *db.DB
	bus   *events.Bus
	store storage.DataStore
	index LogIndexer
	now   func() time.Time
}

func NewService(dbc *db.DB, bus *events.Bus, store storage.DataStore) *Service {
	return &Service{
		dbc:   dbc,
		bus:   bus,
		store: store,
		now:   time.Now,
	}
}

// WithLogIndex enables indexing of saved logs.
func (s *Service) WithLogIndex(index LogIndexer) *Service {
	s.index = index
	return s
}

// DB exposes the database to the API handlers sharing the service.
func (s *Service) DB() *db.DB {
	return s.dbc
}
