package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs tickFn on a fixed interval, once immediately on Start. It
// can be stopped and started again at runtime.
type Scheduler struct {
	name     string
	interval time.Duration
	tickFn   func(context.Context)
	log      *zap.Logger

	running  atomic.Bool
	ticks    atomic.Int64
	lastTick atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, tickFn func(context.Context), log *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		name:     name,
		interval: interval,
		tickFn:   tickFn,
		log:      log.With(zap.String("scheduler", name)),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go s.run(ctx, s.done)

	return true
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		s.safeTick(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

type Status struct {
	Name     string     `json:"name"`
	Running  bool       `json:"running"`
	Interval string     `json:"interval"`
	Ticks    int64      `json:"ticks"`
	LastTick *time.Time `json:"lastTick,omitempty"`
}

func (s *Scheduler) Status() Status {
	st := Status{
		Name:     s.name,
		Running:  s.running.Load(),
		Interval: s.interval.String(),
		Ticks:    s.ticks.Load(),
	}
	if ns := s.lastTick.Load(); ns != 0 {
		at := time.Unix(0, ns).UTC()
		st.LastTick = &at
	}
	return st
}

func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	s.ticks.Add(1)
	s.lastTick.Store(start.UnixNano())
	s.tickFn(ctx)
	s.log.Debug("scheduler tick completed", zap.Duration("took", time.Since(start)))
}
