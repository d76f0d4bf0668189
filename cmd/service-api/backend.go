package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/api/activities"
	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/events"
	"github.com/reportportal/service-api/pkg/flags"
	"github.com/reportportal/service-api/pkg/flags/configflags"
	"github.com/reportportal/service-api/pkg/jobs"
	"github.com/reportportal/service-api/pkg/logindex"
	"github.com/reportportal/service-api/pkg/reporting"
	"github.com/reportportal/service-api/pkg/storage"
)

// BackendFlags are the flags of every command touching reported data.
type BackendFlags struct {
	ConfigFlags  *configflags.ConfigFlags
	DBFlags      *flags.PostgresFlags
	StorageFlags *flags.StorageFlags
	ElasticFlags *flags.ElasticFlags
}

func NewBackendFlags() *BackendFlags {
	return &BackendFlags{
		ConfigFlags:  configflags.NewConfigFlags(),
		DBFlags:      flags.NewPostgresDatabaseFlags(""),
		StorageFlags: flags.NewStorageFlags(),
		ElasticFlags: flags.NewElasticFlags(),
	}
}

func (f *BackendFlags) BindFlags(fs *pflag.FlagSet) {
	f.ConfigFlags.BindFlags(fs)
	f.DBFlags.BindFlags(fs)
	f.StorageFlags.BindFlags(fs)
	f.ElasticFlags.BindFlags(fs)
}

// backend holds the services shared by the commands.
type backend struct {
	cfg      *v1.ServiceConfig
	dbc      *db.DB
	bus      *events.Bus
	store    storage.DataStore
	index    *logindex.Index
	recorder *activities.Recorder
	reporter *reporting.Service
}

func (f *BackendFlags) build(ctx context.Context) (*backend, error) {
	cfg, err := f.ConfigFlags.GetConfig()
	if err != nil {
		return nil, err
	}
	dbc, err := f.DBFlags.GetDBClient()
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't get DB client")
	}
	store, err := f.StorageFlags.GetDataStore(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't open binary storage")
	}
	index, err := f.ElasticFlags.GetIndex()
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't get elasticsearch client")
	}

	bus := events.NewBus()
	recorder := activities.NewRecorder(dbc, bus)
	recorder.Subscribe(bus)
	reporter := reporting.NewService(dbc, bus, store)
	if index != nil {
		reporter.WithLogIndex(index)
	}

	return &backend{
		cfg:      cfg,
		dbc:      dbc,
		bus:      bus,
		store:    store,
		index:    index,
		recorder: recorder,
		reporter: reporter,
	}, nil
}

// indexCleaner is nil when no log index is configured.
func (b *backend) indexCleaner() jobs.IndexCleaner {
	if b.index == nil {
		return nil
	}
	return b.index
}

func (b *backend) scheduler() (*jobs.Scheduler, error) {
	s := jobs.NewScheduler()
	m := jobs.NewMaintenance(b.dbc, b.reporter, b.store, b.indexCleaner(), b.cfg.Jobs.Concurrency)
	if err := m.Register(s, b.cfg.Jobs); err != nil {
		return nil, errors.WithMessage(err, "invalid job schedule")
	}
	return s, nil
}
