package jobs

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	apitype "github.com/reportportal/service-api/pkg/apis/api"
	v1 "github.com/reportportal/service-api/pkg/apis/config/v1"
	"github.com/reportportal/service-api/pkg/db"
	"github.com/reportportal/service-api/pkg/db/models"
	"github.com/reportportal/service-api/pkg/db/query"
	"github.com/reportportal/service-api/pkg/storage"
)

const (
	InterruptBrokenLaunches = "interruptBrokenLaunches"
	CleanLaunches           = "cleanLaunches"
	CleanLogs               = "cleanLogs"
	CleanAttachments        = "cleanAttachments"
)

// Interrupter finishes launches that stopped reporting.
type Interrupter interface {
	InterruptLaunch(ctx context.Context, launchID uint, endTime time.Time) error
}

// IndexCleaner removes documents of deleted launches and logs from the log index.
type IndexCleaner interface {
	DeleteByLaunches(ctx context.Context, projectID uint, launchIDs ...uint) error
	DeleteLogs(ctx context.Context, projectID uint, logIDs ...uint) error
}

// Maintenance holds the jobs run for every project.
type Maintenance struct {
	dbc         *db.DB
	interrupter Interrupter
	store       storage.DataStore
	index       IndexCleaner
	concurrency int
	now         func() time.Time
}

func NewMaintenance(dbc *db.DB, interrupter Interrupter, store storage.DataStore, index IndexCleaner, concurrency int) *Maintenance {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Maintenance{dbc: dbc, interrupter: interrupter, store: store, index: index, concurrency: concurrency, now: time.Now}
}

// Register adds the maintenance jobs to a scheduler using the configured schedules.
func (m *Maintenance) Register(s *Scheduler, cfg v1.JobsConfig) error {
	for _, j := range []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{InterruptBrokenLaunches, cfg.InterruptBrokenLaunchesCron, m.InterruptBrokenLaunches},
		{CleanLaunches, cfg.CleanLaunchesCron, m.CleanLaunches},
		{CleanLogs, cfg.CleanLogsCron, m.CleanLogs},
		{CleanAttachments, cfg.CleanAttachmentsCron, m.CleanAttachments},
	} {
		if err := s.Add(j.name, j.schedule, j.run); err != nil {
			return err
		}
	}
	return nil
}

// forEachProject runs fn for the projects with a known value of the attribute, with bounded
// concurrency. A failing project does not stop the others; the first error is returned.
func (m *Maintenance) forEachProject(ctx context.Context, attribute string, delays map[string]time.Duration,
	fn func(ctx context.Context, project models.Project, delay time.Duration) error) error {
	projects, err := query.ProjectsWithAttributes(m.dbc)
	if err != nil {
		return err
	}
	var g errgroup.Group
	g.SetLimit(m.concurrency)
	for _, p := range projects {
		delay, ok := delays[p.Attribute(attribute)]
		if !ok || delay == 0 {
			continue
		}
		p := p
		g.Go(func() error {
			if err := fn(ctx, p, delay); err != nil {
				log.WithError(err).WithField("project", p.Name).Error("project maintenance failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Maintenance) removeFiles(ctx context.Context, files []string) {
	if m.store == nil {
		return
	}
	for _, f := range files {
		if err := m.store.Delete(ctx, f); err != nil {
			log.WithError(err).WithField("path", f).Warn("could not remove file")
		}
	}
}

// InterruptBrokenLaunches interrupts the launches in progress for longer than the project
// interrupt delay, unless items were started or logs saved within that delay.
func (m *Maintenance) InterruptBrokenLaunches(ctx context.Context) error {
	return m.forEachProject(ctx, db.AttrInterruptJobTime, db.InterruptDelays,
		func(ctx context.Context, p models.Project, delay time.Duration) error {
			now := m.now().UTC()
			cutoff := now.Add(-delay)
			dbc := m.dbc.DB.WithContext(ctx)
			var launchIDs []uint
			res := dbc.Model(&models.Launch{}).
				Where("project_id = ? AND status = ? AND start_time < ?", p.ID, string(apitype.StatusInProgress), cutoff).
				Pluck("id", &launchIDs)
			if res.Error != nil {
				return res.Error
			}
			interrupted := 0
			for _, id := range launchIDs {
				broken, err := isBroken(dbc, id, cutoff)
				if err != nil {
					return err
				}
				if !broken {
					continue
				}
				if err := m.interrupter.InterruptLaunch(ctx, id, now); err != nil {
					return err
				}
				interrupted++
			}
			if interrupted > 0 {
				log.WithFields(log.Fields{"project": p.Name, "launches": interrupted}).Info("interrupted broken launches")
			}
			return nil
		})
}

// isBroken reports whether a launch had no activity since cutoff: no running items, or no
// item started and no log saved after it.
func isBroken(dbc *gorm.DB, launchID uint, cutoff time.Time) (bool, error) {
	running, err := query.HasItemsInStatus(dbc, launchID, string(apitype.StatusInProgress))
	if err != nil || !running {
		return !running, err
	}
	var recentItems int64
	res := dbc.Model(&models.TestItem{}).Where("launch_id = ? AND start_time >= ?", launchID, cutoff).Count(&recentItems)
	if res.Error != nil || recentItems > 0 {
		return false, res.Error
	}
	var recentLogs int64
	res = dbc.Model(&models.Log{}).
		Where("(launch_id = ? OR item_id IN (SELECT id FROM test_items WHERE launch_id = ?)) AND log_time >= ?",
			launchID, launchID, cutoff).
		Count(&recentLogs)
	return recentLogs == 0, res.Error
}

// CleanLaunches removes finished launches older than the project retention.
func (m *Maintenance) CleanLaunches(ctx context.Context) error {
	return m.forEachProject(ctx, db.AttrKeepLaunches, db.KeepDelays,
		func(ctx context.Context, p models.Project, keep time.Duration) error {
			cutoff := m.now().UTC().Add(-keep)
			var ids []uint
			var files []string
			err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				res := tx.Model(&models.Launch{}).
					Where("project_id = ? AND status <> ? AND start_time < ?", p.ID, string(apitype.StatusInProgress), cutoff).
					Pluck("id", &ids)
				if res.Error != nil || len(ids) == 0 {
					return res.Error
				}
				var err error
				files, err = query.DeleteLaunches(tx, ids)
				return err
			})
			if err != nil || len(ids) == 0 {
				return err
			}
			m.removeFiles(ctx, files)
			if m.index != nil {
				if err := m.index.DeleteByLaunches(ctx, p.ID, ids...); err != nil {
					log.WithError(err).WithField("project", p.Name).Warn("could not clean log index")
				}
			}
			log.WithFields(log.Fields{"project": p.Name, "launches": len(ids)}).Info("removed outdated launches")
			return nil
		})
}

// CleanLogs removes logs older than the project retention along with their attachments.
func (m *Maintenance) CleanLogs(ctx context.Context) error {
	return m.forEachProject(ctx, db.AttrKeepLogs, db.KeepDelays,
		func(ctx context.Context, p models.Project, keep time.Duration) error {
			cutoff := m.now().UTC().Add(-keep)
			var logIDs []uint
			var files []string
			err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				res := tx.Model(&models.Log{}).Where("project_id = ? AND log_time < ?", p.ID, cutoff).Pluck("id", &logIDs)
				if res.Error != nil || len(logIDs) == 0 {
					return res.Error
				}
				var attachmentIDs []uint
				res = tx.Model(&models.Log{}).Where("id IN ? AND attachment_id IS NOT NULL", logIDs).
					Pluck("attachment_id", &attachmentIDs)
				if res.Error != nil {
					return res.Error
				}
				if res := tx.Where("id IN ?", logIDs).Delete(&models.Log{}); res.Error != nil {
					return res.Error
				}
				if len(attachmentIDs) == 0 {
					return nil
				}
				var err error
				if files, err = query.AttachmentFiles(tx, "id IN ?", attachmentIDs); err != nil {
					return err
				}
				return tx.Where("id IN ?", attachmentIDs).Delete(&models.Attachment{}).Error
			})
			if err != nil || len(logIDs) == 0 {
				return err
			}
			m.removeFiles(ctx, files)
			if m.index != nil {
				if err := m.index.DeleteLogs(ctx, p.ID, logIDs...); err != nil {
					log.WithError(err).WithField("project", p.Name).Warn("could not clean log index")
				}
			}
			log.WithFields(log.Fields{"project": p.Name, "logs": len(logIDs)}).Info("removed outdated logs")
			return nil
		})
}

// CleanAttachments removes attachments older than the project retention. Their logs stay.
func (m *Maintenance) CleanAttachments(ctx context.Context) error {
	return m.forEachProject(ctx, db.AttrKeepScreenshots, db.KeepDelays,
		func(ctx context.Context, p models.Project, keep time.Duration) error {
			cutoff := m.now().UTC().Add(-keep)
			var files []string
			err := m.dbc.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				var attachments []models.Attachment
				res := tx.Where("project_id = ? AND created_at < ?", p.ID, cutoff).Find(&attachments)
				if res.Error != nil || len(attachments) == 0 {
					return res.Error
				}
				ids := make([]uint, 0, len(attachments))
				for _, a := range attachments {
					ids = append(ids, a.ID)
					files = append(files, a.FileID)
				}
				if res := tx.Model(&models.Log{}).Where("attachment_id IN ?", ids).Update("attachment_id", nil); res.Error != nil {
					return res.Error
				}
				return tx.Where("id IN ?", ids).Delete(&models.Attachment{}).Error
			})
			if err != nil || len(files) == 0 {
				return err
			}
			m.removeFiles(ctx, files)
			log.WithFields(log.Fields{"project": p.Name, "attachments": len(files)}).Info("removed outdated attachments")
			return nil
		})
}
