package api

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/queue"
	"github.com/LeventeLantos/sos-dispatch/internal/scheduler"
)

const (
	defaultCleanLimit  = 1000
	defaultFailedLimit = 50
)

type QueueAdmin interface {
	Counts(ctx context.Context) (queue.Counts, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Drain(ctx context.Context) (int, error)
	Clean(ctx context.Context, grace time.Duration, limit int, state queue.State) (int, error)
	Failed(ctx context.Context, limit int) ([]queue.Job, error)
	RetryFailed(ctx context.Context) (int, error)
}

type MaintenanceControl interface {
	Start() bool
	Stop() bool
	Status() scheduler.Status
}

// AdminHandler exposes queue administration and the maintenance scheduler.
type AdminHandler struct {
	queue      QueueAdmin
	sched      MaintenanceControl
	cleanGrace time.Duration
	log        *zap.Logger
}

func NewAdminHandler(q QueueAdmin, sched MaintenanceControl, cleanGrace time.Duration, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{queue: q, sched: sched, cleanGrace: cleanGrace, log: log}
}

func (a *AdminHandler) fail(w http.ResponseWriter, op string, err error) {
	a.log.Error("queue admin failed", zap.String("op", op), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
}

func (a *AdminHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := a.queue.Counts(r.Context())
	if err != nil {
		a.fail(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *AdminHandler) PauseQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Pause(r.Context()); err != nil {
		a.fail(w, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

func (a *AdminHandler) ResumeQueue(w http.ResponseWriter, r *http.Request) {
	if err := a.queue.Resume(r.Context()); err != nil {
		a.fail(w, "resume", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

func (a *AdminHandler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	n, err := a.queue.Drain(r.Context())
	if err != nil {
		a.fail(w, "drain", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

// CleanQueue removes terminal jobs older than ?grace (default from config),
// at most ?limit of them, from ?state (completed or failed).
func (a *AdminHandler) CleanQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	grace := a.cleanGrace
	if raw := q.Get("grace"); raw != "" {
		d, err := cast.ToDurationE(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid grace"})
			return
		}
		grace = d
	}

	state := queue.StateCompleted
	switch queue.State(q.Get("state")) {
	case "", queue.StateCompleted:
	case queue.StateFailed:
		state = queue.StateFailed
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "state must be completed or failed"})
		return
	}

	limit := parseInt(q.Get("limit"), defaultCleanLimit)
	n, err := a.queue.Clean(r.Context(), grace, limit, state)
	if err != nil {
		a.fail(w, "clean", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n, "state": state})
}

func (a *AdminHandler) FailedJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.queue.Failed(r.Context(), parseInt(r.URL.Query().Get("limit"), defaultFailedLimit))
	if err != nil {
		a.fail(w, "failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

func (a *AdminHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := a.queue.RetryFailed(r.Context())
	if err != nil {
		a.fail(w, "retry-failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requeued": n})
}

func (a *AdminHandler) MaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.sched.Status())
}

func (a *AdminHandler) MaintenanceStart(w http.ResponseWriter, r *http.Request) {
	a.sched.Start()
	writeJSON(w, http.StatusOK, a.sched.Status())
}

func (a *AdminHandler) MaintenanceStop(w http.ResponseWriter, r *http.Request) {
	a.sched.Stop()
	writeJSON(w, http.StatusOK, a.sched.Status())
}
