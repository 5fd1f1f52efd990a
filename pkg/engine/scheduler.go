package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultDelaySchedule is how often due delays are polled.
const DefaultDelaySchedule = "@every 30s"

// Resumer continues executions whose delay elapsed.
type Resumer interface {
	ResumeDue(ctx context.Context, now time.Time) (int, error)
}

// DelayScheduler polls for sequence delays that elapsed and resumes them.
type DelayScheduler struct {
	resumer  Resumer
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewDelayScheduler(resumer Resumer, schedule string, logger *slog.Logger) *DelayScheduler {
	if schedule == "" {
		schedule = DefaultDelaySchedule
	}

	return &DelayScheduler{
		resumer:  resumer,
		schedule: schedule,
		logger:   logger.With("module", "delay_scheduler"),
	}
}

func (s *DelayScheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("invalid delay schedule '%s': %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("Delay scheduler started", "schedule", s.schedule)

	return nil
}

// Stop halts polling and waits for a running tick to finish.
func (s *DelayScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	s.cancel()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Delay scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DelayScheduler) tick() {
	resumed, err := s.resumer.ResumeDue(s.ctx, time.Now())
	if err != nil {
		s.logger.Error("Failed to resume due delays", "error", err)

		return
	}

	if resumed > 0 {
		s.logger.Info("Resumed delayed executions", "count", resumed)
	}
}
