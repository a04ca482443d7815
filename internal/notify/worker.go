package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/queue"
)

type Source interface {
	Reserve(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, job *queue.Job) error
	Fail(ctx context.Context, job *queue.Job, cause error) error
	Extend(ctx context.Context, job *queue.Job) error
	Lease() time.Duration
}

// Worker leases jobs from the queue and hands them to a Handler. A job is
// failed only when decoding or the handler itself returns an error.
type Worker struct {
	src         Source
	handler     Handler
	concurrency int
	poll        time.Duration
	heartbeat   time.Duration
	log         *zap.Logger
	metrics     *metrics.Metrics
}

func NewWorker(src Source, h Handler, concurrency int, poll time.Duration, log *zap.Logger, m *metrics.Metrics) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		src:         src,
		handler:     h,
		concurrency: concurrency,
		poll:        poll,
		heartbeat:   src.Lease() / 3,
		log:         log,
		metrics:     m,
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("notification worker started", zap.Int("concurrency", w.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, slot)
		}(i)
	}
	wg.Wait()

	w.log.Info("notification worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, slot int) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("worker iteration failed", zap.Int("slot", slot), zap.Error(err))
		}
		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(w.poll)
		}
	}
}

// ProcessNext handles at most one job. It reports whether a job was taken.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.src.Reserve(ctx)
	if errors.Is(err, queue.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.AttemptsMade+1),
	)
	log.Info("processing job")

	start := time.Now()
	jobCtx, cancel := context.WithCancel(ctx)
	held := make(chan struct{})
	go func() {
		defer close(held)
		w.keepLease(jobCtx, cancel, job, log)
	}()
	handleErr := w.handle(jobCtx, job)
	cancel()
	<-held

	if handleErr == nil {
		if err := w.src.Complete(ctx, job); err != nil {
			return true, errors.Wrapf(err, "complete job %s", job.ID)
		}
		w.metrics.JobProcessed(job.Kind, "completed")
		log.Info("job completed", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
		return true, nil
	}

	log.Error("job failed", zap.Error(handleErr))
	if err := w.src.Fail(ctx, job, handleErr); err != nil {
		return true, errors.Wrapf(err, "fail job %s", job.ID)
	}
	w.metrics.JobProcessed(job.Kind, string(job.State))
	return true, nil
}

// keepLease extends the job's lease while the handler runs. Losing the lease
// cancels the handler, since another worker now owns the job.
func (w *Worker) keepLease(ctx context.Context, cancel context.CancelFunc, job *queue.Job, log *zap.Logger) {
	if w.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := w.src.Extend(ctx, job)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrLeaseLost):
			log.Warn("job lease lost, abandoning")
			cancel()
			return
		case ctx.Err() == nil:
			log.Warn("extend job lease", zap.Error(err))
		}
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panic: %v", r)
		}
	}()

	payload, err := Decode(job.Kind, job.Payload)
	if err != nil {
		return err
	}
	return payload.dispatch(ctx, w.handler)
}
