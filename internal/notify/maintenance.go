package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
	"github.com/LeventeLantos/sos-dispatch/internal/queue"
)

type QueueMaintainer interface {
	PromoteDue(ctx context.Context) (int, error)
	ReclaimExpired(ctx context.Context) (int, error)
	Counts(ctx context.Context) (queue.Counts, error)
	Clean(ctx context.Context, grace time.Duration, limit int, state queue.State) (int, error)
}

// Maintenance keeps the queue moving: due retries are promoted, expired
// leases are reclaimed and old terminal jobs are cleaned.
type Maintenance struct {
	q       QueueMaintainer
	grace   time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewMaintenance(q QueueMaintainer, cleanGrace time.Duration, log *zap.Logger, m *metrics.Metrics) *Maintenance {
	if cleanGrace <= 0 {
		cleanGrace = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintenance{q: q, grace: cleanGrace, log: log, metrics: m}
}

func (m *Maintenance) Tick(ctx context.Context) {
	if n, err := m.q.PromoteDue(ctx); err != nil {
		m.log.Error("promote delayed jobs", zap.Error(err))
	} else if n > 0 {
		m.log.Info("promoted delayed jobs", zap.Int("count", n))
	}

	if n, err := m.q.ReclaimExpired(ctx); err != nil {
		m.log.Error("reclaim expired leases", zap.Error(err))
	} else if n > 0 {
		m.log.Warn("reclaimed jobs with expired leases", zap.Int("count", n))
	}

	counts, err := m.q.Counts(ctx)
	if err != nil {
		m.log.Error("queue counts", zap.Error(err))
		return
	}
	m.metrics.QueueDepth(string(queue.StateWaiting), counts.Waiting)
	m.metrics.QueueDepth(string(queue.StateDelayed), counts.Delayed)
	m.metrics.QueueDepth(string(queue.StateActive), counts.Active)
	m.metrics.QueueDepth(string(queue.StateCompleted), counts.Completed)
	m.metrics.QueueDepth(string(queue.StateFailed), counts.Failed)
}

// Clean removes completed and failed jobs older than the grace period.
func (m *Maintenance) Clean(ctx context.Context) {
	for _, state := range []queue.State{queue.StateCompleted, queue.StateFailed} {
		n, err := m.q.Clean(ctx, m.grace, 0, state)
		if err != nil {
			m.log.Error("clean queue", zap.String("state", string(state)), zap.Error(err))
			continue
		}
		if n > 0 {
			m.log.Info("cleaned queue", zap.String("state", string(state)), zap.Int("count", n))
		}
	}
}
