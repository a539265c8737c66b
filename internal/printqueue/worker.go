package printqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/meridianhq/visitdesk/internal/domain"
	"github.com/meridianhq/visitdesk/internal/printer"
	"github.com/meridianhq/visitdesk/pkg/config"
	"github.com/meridianhq/visitdesk/pkg/events"
	"github.com/meridianhq/visitdesk/pkg/logger"
)

// JobStore is the slice of the print job repository the worker needs.
type JobStore interface {
	ClaimPending(ctx context.Context, limit int) ([]domain.PrintJob, error)
	MarkCompleted(ctx context.Context, id int64, printedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BadgeMarker flips a visit's badge-issued flag once its badge has printed.
// That flag is the only visit field the print pipeline may touch.
type BadgeMarker interface {
	MarkBadgeIssued(ctx context.Context, id int64, at time.Time) error
}

// Worker drains the print queue on a fixed interval. One physical printer
// means one serial consumer: jobs within a tick run one at a time, and a
// tick that fires while the previous one is still draining is a no-op.
type Worker struct {
	jobs    JobStore
	visits  BadgeMarker
	printer printer.Driver
	bus     events.Publisher

	interval     time.Duration
	printTimeout time.Duration
	retention    time.Duration
	batchSize    int

	inFlight atomic.Bool
	wake     chan struct{}
}

func NewWorker(jobs JobStore, visits BadgeMarker, drv printer.Driver, bus events.Publisher, cfg config.QueueConfig, printTimeout time.Duration) *Worker {
	return &Worker{
		jobs:         jobs,
		visits:       visits,
		printer:      drv,
		bus:          bus,
		interval:     cfg.PollInterval,
		printTimeout: printTimeout,
		retention:    cfg.Retention,
		batchSize:    cfg.BatchSize,
		wake:         make(chan struct{}, 1),
	}
}

// WakeOnEnqueue subscribes the worker to enqueue events so a kiosk badge
// triggers an immediate tick. The signal is bounded: a full wake channel is
// dropped and the interval timer remains the fallback.
func (w *Worker) WakeOnEnqueue(bus events.Subscriber) error {
	return bus.Subscribe(events.PrintJobEnqueued, func(msg *events.Message) {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	})
}

// Run polls until ctx is done. The loop never exits on a tick failure.
func (w *Worker) Run(ctx context.Context) {
	if w.printer == nil {
		logger.Warn("No printer configured, print jobs will accumulate as pending")
	} else if err := w.printer.Test(ctx); err != nil {
		logger.Warn("Printer self-test failed, continuing anyway", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	janitor := time.NewTicker(time.Hour)
	defer janitor.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		case <-w.wake:
			w.Tick(ctx)
		case <-janitor.C:
			w.cleanup(ctx)
		}
	}
}

// Tick claims and processes one batch. Re-entrant invocations bail out
// immediately so two drains never overlap.
func (w *Worker) Tick(ctx context.Context) {
	if !w.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer w.inFlight.Store(false)

	if w.printer == nil {
		logger.Debug("Skipping print tick, no printer configured")
		return
	}

	jobs, err := w.jobs.ClaimPending(ctx, w.batchSize)
	if err != nil {
		logger.Error("Failed to claim pending print jobs", "error", err)
		return
	}

	for i := range jobs {
		// One failed job never aborts the rest of the batch.
		w.processJob(ctx, &jobs[i])
	}
}

func (w *Worker) processJob(ctx context.Context, job *domain.PrintJob) {
	var payload domain.BadgePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		w.fail(ctx, job, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	// Copies are physical reprints: the badge is sent once per copy, and a
	// job is all-or-nothing within a tick.
	for c := 0; c < job.Copies; c++ {
		if err := w.printCopy(ctx, &payload); err != nil {
			w.fail(ctx, job, err.Error())
			return
		}
	}

	now := time.Now()
	if err := w.jobs.MarkCompleted(ctx, job.ID, now); err != nil {
		logger.Error("Failed to mark print job completed", "error", err, "job_id", job.ID)
		return
	}
	logger.Info("Print job completed", "job_id", job.ID, "copies", job.Copies)
	w.announce(ctx, events.PrintJobCompleted, events.PrintJobOutcomeEvent{JobID: job.ID})

	if job.VisitID != nil {
		if err := w.visits.MarkBadgeIssued(ctx, *job.VisitID, now); err != nil {
			logger.Error("Failed to flag badge issued on visit", "error", err, "visit_id", *job.VisitID)
		}
	}
}

func (w *Worker) printCopy(ctx context.Context, payload *domain.BadgePayload) error {
	// A hung device must not stall the queue; a timeout is this job's
	// failure, not the queue's.
	ctx, cancel := context.WithTimeout(ctx, w.printTimeout)
	defer cancel()
	return w.printer.PrintBadge(ctx, payload)
}

func (w *Worker) fail(ctx context.Context, job *domain.PrintJob, reason string) {
	logger.Error("Print job failed", "job_id", job.ID, "reason", reason)
	if err := w.jobs.MarkFailed(ctx, job.ID, reason); err != nil {
		logger.Error("Failed to mark print job failed", "error", err, "job_id", job.ID)
	}
	w.announce(ctx, events.PrintJobFailed, events.PrintJobOutcomeEvent{JobID: job.ID, Error: reason})
}

func (w *Worker) announce(ctx context.Context, subject string, data interface{}) {
	if w.bus == nil {
		return
	}
	if err := w.bus.Publish(ctx, subject, data); err != nil {
		logger.Error("Failed to publish print event", "error", err, "subject", subject)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-w.retention)
	n, err := w.jobs.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		logger.Error("Print queue cleanup failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("Pruned completed print jobs", "deleted", n)
	}
}
