package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/services"
)

var (
	ErrQueueFull = errors.New("generation queue full")
	ErrStopped   = errors.New("generation worker stopped")
)

// Runner executes claimed generation cycles. VideoGenerationService
// satisfies it.
type Runner interface {
	Run(ctx context.Context, adaptedContentID uuid.UUID, attempt int) error
	Fail(ctx context.Context, adaptedContentID uuid.UUID, attempt int, reason string) error
}

var _ services.Dispatcher = (*Worker)(nil)

type Config struct {
	Concurrency int
	QueueSize   int
}

// Worker is an in-process Dispatcher backed by a bounded goroutine pool.
type Worker struct {
	log         *logger.Logger
	runner      Runner
	concurrency int
	queue       chan services.GenerationJob

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, runner Runner, cfg Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	size := cfg.QueueSize
	if size < 1 {
		size = 64
	}
	return &Worker{
		log:         baseLog.With("component", "GenerationWorker"),
		runner:      runner,
		concurrency: concurrency,
		queue:       make(chan services.GenerationJob, size),
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.log.Info("Starting generation worker pool", "concurrency", w.concurrency, "queue_size", cap(w.queue))
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i+1)
	}
}

// Dispatch enqueues without waiting for a free slot.
func (w *Worker) Dispatch(ctx context.Context, job services.GenerationJob) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop rejects new jobs and waits for the loops to exit. Jobs left in the
// queue because the Start context ended are failed so they can be retried.
func (w *Worker) Stop(ctx context.Context) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	for job := range w.queue {
		if err := w.runner.Fail(ctx, job.AdaptedContentID, job.Attempt, "video generation was interrupted; please retry"); err != nil {
			w.log.Warn("Failing queued job on stop failed", "adapted_content_id", job.AdaptedContentID, "error", err)
		}
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.runOne(ctx, workerID, job)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, workerID int, job services.GenerationJob) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Generation panic",
				"worker_id", workerID,
				"adapted_content_id", job.AdaptedContentID,
				"attempt", job.Attempt,
				"panic", fmt.Sprint(r),
			)
			if err := w.runner.Fail(ctx, job.AdaptedContentID, job.Attempt, "video generation crashed; please retry"); err != nil {
				w.log.Error("Failing panicked job failed", "adapted_content_id", job.AdaptedContentID, "error", err)
			}
		}
	}()
	if err := w.runner.Run(ctx, job.AdaptedContentID, job.Attempt); err != nil {
		// Run has already recorded the failure on the row.
		w.log.Debug("Generation finished with error", "worker_id", workerID, "adapted_content_id", job.AdaptedContentID, "error", err)
	}
}
