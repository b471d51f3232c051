package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs named tasks on cron specs. Each tick is bounded by a timeout so
// a slow pass never overlaps the next one indefinitely.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler builds a scheduler in loc. A nil logger is replaced by a no-op logger.
func NewScheduler(loc *time.Location, timeout time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds task under spec. An empty spec disables the task.
func (s *Scheduler) Register(name, spec string, task func(context.Context) error) error {
	if spec == "" {
		s.logger.Info("cron task disabled", zap.String("task", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		started := time.Now()
		if err := task(ctx); err != nil {
			s.logger.Warn("cron task failed", zap.String("task", name), zap.Error(err))
			return
		}
		s.logger.Debug("cron task finished", zap.String("task", name), zap.Duration("took", time.Since(started)))
	})
	if err != nil {
		return fmt.Errorf("register %s (%q): %w", name, spec, err)
	}
	s.logger.Info("cron task registered", zap.String("task", name), zap.String("spec", spec))
	return nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts new ticks and waits for running ones.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
