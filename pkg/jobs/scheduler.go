// Package jobs runs the periodic maintenance of projects: interrupting launches that stopped
// reporting and removing data past its retention.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Job is a named task run on a cron schedule.
type Job struct {
	Name     string
	Schedule *cronexpr.Expression
	Run      func(ctx context.Context) error
}

// Scheduler starts jobs when their schedule fires. A job still running when it fires again
// is skipped for that tick.
type Scheduler struct {
	jobs map[string]Job
	now  func() time.Time

	lock    sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{jobs: map[string]Job{}, running: map[string]bool{}, now: time.Now}
}

// Add registers a job with a crontab-like schedule.
func (s *Scheduler) Add(name, schedule string, run func(ctx context.Context) error) error {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return errors.Wrapf(err, "invalid schedule %q of job %s", schedule, name)
	}
	s.jobs[name] = Job{Name: name, Schedule: expr, Run: run}
	return nil
}

// Names lists the registered jobs.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOnce runs a job now and waits for it.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return errors.Errorf("unknown job %s", name)
	}
	if !s.acquire(name) {
		return errors.Errorf("job %s is already running", name)
	}
	defer s.release(name)
	return s.execute(ctx, job)
}

func (s *Scheduler) acquire(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.running, name)
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	logger := log.WithField("job", job.Name)
	start := s.now()
	logger.Info("job started")
	if err := job.Run(ctx); err != nil {
		logger.WithError(err).Error("job failed")
		return err
	}
	logger.WithField("duration", s.now().Sub(start)).Info("job finished")
	return nil
}

// next returns the jobs firing first after t and when they fire.
func (s *Scheduler) next(t time.Time) ([]Job, time.Time) {
	var due []Job
	var at time.Time
	for _, name := range s.Names() {
		job := s.jobs[name]
		n := job.Schedule.Next(t)
		switch {
		case n.IsZero():
		case at.IsZero() || n.Before(at):
			due, at = []Job{job}, n
		case n.Equal(at):
			due = append(due, job)
		}
	}
	return due, at
}

// Run fires jobs until the context is cancelled, then waits for running jobs to return.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.wg.Wait()
	for {
		due, at := s.next(s.now())
		if at.IsZero() {
			log.Warn("no scheduled jobs")
			<-ctx.Done()
			return
		}
		timer := time.NewTimer(at.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		for _, job := range due {
			if !s.acquire(job.Name) {
				log.WithField("job", job.Name).Warn("previous run is still in progress, skipping")
				continue
			}
			s.wg.Add(1)
			go func(job Job) {
				defer s.wg.Done()
				defer s.release(job.Name)
				_ = s.execute(ctx, job)
			}(job)
		}
	}
}
