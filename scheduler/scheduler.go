package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"library_lending/metrics"
)

// DefaultSpec fires at midnight; the first field is seconds.
const DefaultSpec = "0 0 0 * * *"

const (
	JobOverdue  = "overdue"
	JobReminder = "reminder"
)

// Scheduler owns the cron loop that drives the Sweeper.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	log     logrus.FieldLogger
	now     func() time.Time
}

func New(sweeper *Sweeper, spec string, loc *time.Location, log logrus.FieldLogger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cron.PrintfLogger(log)
	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		log:     log,
		now:     time.Now,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background(), JobOverdue) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background(), JobReminder) }); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.WithField("next", e.Next).Info("sweep scheduled")
	}
}

// Stop stops scheduling and waits for running jobs, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one job now. Cron calls it; so can an operator.
func (s *Scheduler) Run(ctx context.Context, job string) (SweepReport, error) {
	start := time.Now()
	now := s.now()

	var (
		rep SweepReport
		err error
	)
	switch job {
	case JobOverdue:
		rep, err = s.sweeper.SweepOverdue(ctx, now)
	case JobReminder:
		rep, err = s.sweeper.SendReminders(ctx, now)
	default:
		return rep, fmt.Errorf("unknown job %q", job)
	}

	log := s.log.WithFields(logrus.Fields{
		"job":      job,
		"scanned":  rep.Scanned,
		"updated":  rep.Updated,
		"notified": rep.Notified,
		"failed":   rep.Failed,
	})
	if err != nil {
		log.WithError(err).Error("sweep aborted")
		metrics.RecordSweep(job, time.Since(start), 0, 0, 1)
		return rep, err
	}
	metrics.RecordSweep(job, time.Since(start), rep.Updated, rep.Notified, rep.Failed)
	log.Info("sweep finished")
	return rep, nil
}
