// Package metrics publishes gauges describing the reported launches of every project.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
)

// finishedWindow is the period finished launches are counted over.
const finishedWindow = 24 * time.Hour

var (
	launchesInProgressMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reportportal_launches_in_progress",
		Help: "Number of launches of a project still being reported",
	}, []string{"project"})
	launchesFinishedMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reportportal_launches_finished_last_day",
		Help: "Number of launches of a project finished in the last 24 hours, by status",
	}, []string{"project", "status"})
	hoursSinceLastLaunchMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reportportal_hours_since_last_launch",
		Help: "Hours since the most recent launch of a project was started",
	}, []string{"project"})
)

type projectCount struct {
	Project string
	Status  string
	Count   int64
}

type projectLastStart struct {
	Project   string
	LastStart time.Time
}

// RefreshMetricsDB recomputes every gauge from the launches table.
func RefreshMetricsDB(ctx context.Context, dbc *gorm.DB) error {
	start := time.Now()
	log.Info("beginning refresh metrics")
	dbc = dbc.WithContext(ctx)

	var inProgress []projectCount
	res := dbc.Table("launches").
		Select("projects.name AS project, COUNT(*) AS count").
		Joins("JOIN projects ON projects.id = launches.project_id").
		Where("launches.status = ?", apitype.StatusInProgress).
		Where("projects.deleted_at IS NULL").
		Group("projects.name").
		Scan(&inProgress)
	if res.Error != nil {
		return errors.Wrap(res.Error, "could not count launches in progress")
	}
	launchesInProgressMetric.Reset()
	for _, c := range inProgress {
		launchesInProgressMetric.WithLabelValues(c.Project).Set(float64(c.Count))
	}

	var finished []projectCount
	res = dbc.Table("launches").
		Select("projects.name AS project, launches.status AS status, COUNT(*) AS count").
		Joins("JOIN projects ON projects.id = launches.project_id").
		Where("launches.status <> ?", apitype.StatusInProgress).
		Where("launches.end_time >= ?", start.Add(-finishedWindow)).
		Where("projects.deleted_at IS NULL").
		Group("projects.name, launches.status").
		Scan(&finished)
	if res.Error != nil {
		return errors.Wrap(res.Error, "could not count finished launches")
	}
	launchesFinishedMetric.Reset()
	for _, c := range finished {
		launchesFinishedMetric.WithLabelValues(c.Project, c.Status).Set(float64(c.Count))
	}

	var lastStarts []projectLastStart
	res = dbc.Table("launches").
		Select("projects.name AS project, MAX(launches.start_time) AS last_start").
		Joins("JOIN projects ON projects.id = launches.project_id").
		Where("projects.deleted_at IS NULL").
		Group("projects.name").
		Scan(&lastStarts)
	if res.Error != nil {
		return errors.Wrap(res.Error, "could not fetch latest launch start")
	}
	hoursSinceLastLaunchMetric.Reset()
	for _, l := range lastStarts {
		hoursSinceLastLaunchMetric.WithLabelValues(l.Project).Set(start.Sub(l.LastStart).Hours())
	}

	log.WithField("elapsed", time.Since(start)).Info("refreshed metrics")
	return nil
}

// Refresher recomputes the gauges on an interval until its context ends.
type Refresher struct {
	DB       *gorm.DB
	Interval time.Duration
}

func (r *Refresher) Run(ctx context.Context) {
	refresh := func() {
		if err := RefreshMetricsDB(ctx, r.DB); err != nil {
			log.WithError(err).Error("error refreshing metrics")
		}
	}
	refresh()
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("metrics refresher stopped")
			return
		case <-ticker.C:
			refresh()
		}
	}
}
