package queue

import (
	"encoding/json"
	"math"
	"time"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

type Backoff struct {
	Type BackoffType   `json:"type"`
	Base time.Duration `json:"base"`
}

// Next returns the delay before the next attempt once attemptsMade
// attempts have failed. Exponential backoff doubles from Base.
func (b Backoff) Next(attemptsMade int) time.Duration {
	if b.Base <= 0 || attemptsMade < 1 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Base
	}
	shift := attemptsMade - 1
	if shift > 30 {
		shift = 30
	}
	return time.Duration(float64(b.Base) * math.Pow(2, float64(shift)))
}

// Options control ordering and retry. Lower Priority values run first.
type Options struct {
	Priority int     `json:"priority"`
	Attempts int     `json:"attempts"`
	Backoff  Backoff `json:"backoff"`
}

func (o Options) maxAttempts() int {
	if o.Attempts < 1 {
		return 1
	}
	return o.Attempts
}

type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Options      Options         `json:"options"`
	AttemptsMade int             `json:"attemptsMade"`
	LastError    string          `json:"lastError,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueuedAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`

	State State `json:"-"`

	leaseToken string
}
