package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reconsumeralization/modernmen-sub011/internal/models"
	appErrors "github.com/reconsumeralization/modernmen-sub011/pkg/errors"
	"github.com/reconsumeralization/modernmen-sub011/pkg/jobs"
)

// Engine job types.
const (
	JobResolveConflict  = "resolve_conflict"
	JobWaitlistSweep    = "waitlist_sweep"
	JobRedetectResource = "redetect_resource"
)

// ActiveDates lists the dates on or after from that hold live bookings of a resource.
type ActiveDates interface {
	ListActiveDates(ctx context.Context, resourceID, from string) ([]string, error)
}

// EngineWorker reacts to calendar and directory changes asynchronously: it resolves
// newly opened conflicts, sweeps the waitlist when capacity frees up and re-runs
// detection when staff constraints change.
type EngineWorker struct {
	queue     *jobs.Queue
	resolver  *ResolverService
	waitlist  *WaitlistService
	conflicts *ConflictService
	dates     ActiveDates
	notifier  *NotificationService
	metrics   *MetricsService
	location  *time.Location
	logger    *zap.Logger
	now       func() time.Time
}

// NewEngineWorker builds the worker and its queue.
func NewEngineWorker(resolver *ResolverService, waitlist *WaitlistService, conflicts *ConflictService, dates ActiveDates, notifier *NotificationService, metrics *MetricsService, location *time.Location, cfg jobs.QueueConfig) *EngineWorker {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	w := &EngineWorker{
		resolver:  resolver,
		waitlist:  waitlist,
		conflicts: conflicts,
		dates:     dates,
		notifier:  notifier,
		metrics:   metrics,
		location:  location,
		logger:    logger,
		now:       time.Now,
	}
	w.queue = jobs.NewQueue("engine", w.handle, cfg)
	return w
}

// Start launches the worker pool.
func (w *EngineWorker) Start(ctx context.Context) {
	w.queue.Start(ctx)
}

// Stop drains the worker pool.
func (w *EngineWorker) Stop() {
	w.queue.Stop()
}

func (w *EngineWorker) enqueue(job jobs.Job) {
	if err := w.queue.Enqueue(job); err != nil && !errors.Is(err, jobs.ErrCoalesced) {
		// durable state remains; the next trigger or cron tick picks it up
		w.logger.Warn("enqueue engine job failed", zap.String("type", job.Type), zap.String("key", job.Key), zap.Error(err))
	}
}

// OnDayChange implements MutationListener.
func (w *EngineWorker) OnDayChange(ctx context.Context, change DayChange) {
	for _, rec := range change.Opened {
		w.metrics.RecordConflict(rec.Type, rec.Severity)
		w.notifier.ConflictDetected(ctx, rec)
		w.enqueue(jobs.Job{
			ID:      rec.ID,
			Type:    JobResolveConflict,
			Key:     JobResolveConflict + ":" + rec.ID,
			Payload: rec.ID,
		})
	}
	if change.Freed {
		w.ScheduleSweep()
	}
}

// OnDirectoryChange implements DirectoryListener. Added hours may free capacity, so a
// sweep follows the re-detection.
func (w *EngineWorker) OnDirectoryChange(_ context.Context, changed []string) {
	for _, id := range changed {
		w.enqueue(jobs.Job{
			ID:      id,
			Type:    JobRedetectResource,
			Key:     JobRedetectResource + ":" + id,
			Payload: id,
		})
	}
	w.ScheduleSweep()
}

// ScheduleSweep requests a waitlist sweep; concurrent requests coalesce into one.
func (w *EngineWorker) ScheduleSweep() {
	w.enqueue(jobs.Job{ID: JobWaitlistSweep, Type: JobWaitlistSweep, Key: JobWaitlistSweep})
}

func (w *EngineWorker) handle(ctx context.Context, job jobs.Job) error {
	started := time.Now()
	err := w.dispatch(ctx, job)
	w.metrics.ObserveJob(job.Type, err, time.Since(started))
	return err
}

func (w *EngineWorker) dispatch(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobResolveConflict:
		id, _ := job.Payload.(string)
		_, err := w.resolver.Resolve(ctx, id)
		if errors.Is(err, appErrors.ErrStaleCandidate) || errors.Is(err, appErrors.ErrConflictNotFound) {
			return nil
		}
		return err
	case JobWaitlistSweep:
		_, err := w.waitlist.Sweep(ctx)
		return err
	case JobRedetectResource:
		id, _ := job.Payload.(string)
		return w.redetect(ctx, id)
	default:
		return fmt.Errorf("unknown engine job %q", job.Type)
	}
}

func (w *EngineWorker) redetect(ctx context.Context, resourceID string) error {
	today := w.now().In(w.location).Format(models.DateLayout)
	dates, err := w.dates.ListActiveDates(ctx, resourceID, today)
	if err != nil {
		return err
	}
	keys := make([]models.DayKey, len(dates))
	for i, d := range dates {
		keys[i] = models.DayKey{ResourceID: resourceID, Date: d}
	}
	return w.conflicts.Redetect(ctx, keys)
}
