package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/mdsetup/internal/jobstore"
	"github.com/CZERTAINLY/mdsetup/internal/model"
)

// Sweep forgets what was last touched before now minus the TTL: job
// records of the memory store and idle sessions. Redis expires records on
// its own. A zero TTL keeps everything.
func (s *Service) Sweep(ctx context.Context, sessions *Sessions, now time.Time) {
	if s.TTL <= 0 {
		return
	}
	before := now.Add(-s.TTL)
	// evict first, closing a supervisor waits for its last record save
	evicted := 0
	if sessions != nil {
		evicted = sessions.Evict(ctx, before)
	}
	var records int
	if m, ok := s.Store.(*jobstore.Memory); ok {
		records = m.Expire(before)
	}
	slog.DebugContext(ctx, "sweep done", "records", records, "sessions", evicted)
}

// ScheduleSweep runs Sweep on the jobs.sweep schedule until the service is
// closed.
func (s *Service) ScheduleSweep(ctx context.Context, sessions *Sessions) error {
	if s.TTL <= 0 || !s.SweepSchedule.Enabled() {
		slog.DebugContext(ctx, "sweep disabled")
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	scheduler, err := newScheduler(ctx, s.SweepSchedule, func() {
		s.Sweep(ctx, sessions, time.Now())
	})
	if err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	scheduler.Start()
	s.closers = append(s.closers, closerFunc(scheduler.Shutdown))
	return nil
}

func newScheduler(ctx context.Context, cfg model.Schedule, task func()) (gocron.Scheduler, error) {
	var job gocron.JobDefinition
	switch {
	case cfg.Cron != "":
		if _, err := model.ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing jobs.sweep.cron: %w", err)
		}
		job = gocron.CronJob(cfg.Cron, false)
		slog.DebugContext(ctx, "sweep scheduled", "cron", cfg.Cron)
	case cfg.Interval != "":
		d, err := cfg.IntervalDuration()
		if err != nil {
			return nil, fmt.Errorf("parsing jobs.sweep.interval: %w", err)
		}
		job = gocron.DurationJob(d)
		slog.DebugContext(ctx, "sweep scheduled", "interval", d.String())
	default:
		return nil, errors.New("both cron and interval are empty")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		job,
		gocron.NewTask(task),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return scheduler, nil
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
