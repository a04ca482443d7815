package notify

import (
	"context"
	"time"

	"github.com/LeventeLantos/sos-dispatch/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload any, opts queue.Options) (*queue.Job, error)
}

var (
	fanOutRetry = queue.Backoff{Type: queue.BackoffExponential, Base: 2 * time.Second}
	singleRetry = queue.Backoff{Type: queue.BackoffFixed, Base: time.Second}
)

// Job priorities; lower runs first.
const (
	PrioritySOSAlert    = 1
	PrioritySOSResolved = 2
	PrioritySMS         = 3
	PriorityEmail       = 4
	PriorityPush        = 5
)

// Producer enqueues notification jobs with their priority and retry policy.
type Producer struct {
	q Enqueuer
}

func NewProducer(q Enqueuer) *Producer {
	return &Producer{q: q}
}

func (p *Producer) add(ctx context.Context, payload Payload, opts queue.Options) (string, error) {
	job, err := p.q.Enqueue(ctx, payload.Kind(), payload, opts)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (p *Producer) AddSOSAlert(ctx context.Context, job SOSAlert) (string, error) {
	return p.add(ctx, job, queue.Options{Priority: PrioritySOSAlert, Attempts: 3, Backoff: fanOutRetry})
}

func (p *Producer) AddSOSResolved(ctx context.Context, job SOSResolved) (string, error) {
	return p.add(ctx, job, queue.Options{Priority: PrioritySOSResolved, Attempts: 3, Backoff: fanOutRetry})
}

func (p *Producer) AddSMS(ctx context.Context, job SMS) (string, error) {
	return p.add(ctx, job, queue.Options{Priority: PrioritySMS, Attempts: 2, Backoff: singleRetry})
}

func (p *Producer) AddEmail(ctx context.Context, job Email) (string, error) {
	return p.add(ctx, job, queue.Options{Priority: PriorityEmail, Attempts: 2, Backoff: singleRetry})
}

func (p *Producer) AddPush(ctx context.Context, job Push) (string, error) {
	return p.add(ctx, job, queue.Options{Priority: PriorityPush, Attempts: 2, Backoff: singleRetry})
}
