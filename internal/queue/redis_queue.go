package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	ErrNoJob     = errors.New("queue: no job available")
	ErrLeaseLost = errors.New("queue: job lease lost")
)

const priorityStride = 1e12

// Queue is a Redis-backed priority queue with delayed retries and leases.
// Waiting jobs are ordered by priority, then by enqueue order.
type Queue struct {
	rdb    *redis.Client
	prefix string
	lease  time.Duration
	now    func() time.Time
}

func New(rdb *redis.Client, name string, lease time.Duration) *Queue {
	if lease <= 0 {
		lease = 30 * time.Second
	}
	return &Queue{
		rdb:    rdb,
		prefix: "queue:" + name,
		lease:  lease,
		now:    time.Now,
	}
}

// Lease is how long a reserved job stays with its holder unless extended.
func (q *Queue) Lease() time.Duration { return q.lease }

func (q *Queue) key(part string) string  { return q.prefix + ":" + part }
func (q *Queue) jobKey(id string) string { return q.prefix + ":job:" + id }

func ms(t time.Time) float64 { return float64(t.UnixMilli()) }

func (q *Queue) waitScore(ctx context.Context, priority int) (float64, error) {
	seq, err := q.rdb.Incr(ctx, q.key("seq")).Result()
	if err != nil {
		return 0, errors.Wrap(err, "queue sequence")
	}
	if priority < 0 {
		priority = 0
	}
	return float64(priority)*priorityStride + float64(seq), nil
}

// Enqueue stores the job and makes it immediately available.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any, opts Options) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", kind)
	}

	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		Options:    opts,
		EnqueuedAt: q.now().UTC(),
		State:      StateWaiting,
	}
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	score, err := q.waitScore(ctx, opts.Priority)
	if err != nil {
		return nil, err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, q.jobKey(job.ID), body, 0)
		p.ZAdd(ctx, q.key("wait"), redis.Z{Score: score, Member: job.ID})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "enqueue %s", kind)
	}
	return job, nil
}

// Reserve leases the highest-priority waiting job. It returns ErrNoJob when
// nothing is waiting or the queue is paused. Only the returned job value can
// complete, fail or extend the lease.
func (q *Queue) Reserve(ctx context.Context) (*Job, error) {
	deadline := ms(q.now().Add(q.lease))
	token := uuid.NewString()
	res, err := reserveScript.Run(ctx, q.rdb,
		[]string{q.key("wait"), q.key("active"), q.key("paused"), q.key("leases")},
		deadline, q.prefix+":job:", token,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, errors.Wrap(err, "reserve")
	}

	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return nil, fmt.Errorf("reserve: unexpected reply %v", res)
	}
	id, _ := pair[0].(string)
	body, _ := pair[1].(string)
	if body == "" {
		q.rdb.ZRem(ctx, q.key("active"), id)
		return nil, fmt.Errorf("reserve: job %s has no body", id)
	}

	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return nil, errors.Wrapf(err, "decode job %s", id)
	}
	job.State = StateActive
	job.leaseToken = token
	return &job, nil
}

// Extend pushes the job's lease deadline a full lease period past now.
func (q *Queue) Extend(ctx context.Context, job *Job) error {
	deadline := ms(q.now().Add(q.lease))
	n, err := extendScript.Run(ctx, q.rdb,
		[]string{q.key("active"), q.key("leases")},
		deadline, job.ID, job.leaseToken,
	).Int()
	if err != nil {
		return errors.Wrapf(err, "extend lease of job %s", job.ID)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete moves an active job to the completed set.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	now := q.now().UTC()
	job.FinishedAt = &now
	if err := q.finish(ctx, job, "completed", ms(now)); err != nil {
		return err
	}
	job.State = StateCompleted
	return nil
}

// Fail records a failed attempt. The job is delayed for retry while attempts
// remain, otherwise it moves to the failed set.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	job.AttemptsMade++
	if cause != nil {
		job.LastError = cause.Error()
	}

	now := q.now()
	if job.AttemptsMade < job.Options.maxAttempts() {
		ready := now.Add(job.Options.Backoff.Next(job.AttemptsMade))
		if err := q.finish(ctx, job, "delayed", ms(ready)); err != nil {
			return err
		}
		job.State = StateDelayed
		return nil
	}

	finished := now.UTC()
	job.FinishedAt = &finished
	if err := q.finish(ctx, job, "failed", ms(finished)); err != nil {
		return err
	}
	job.State = StateFailed
	return nil
}

func (q *Queue) finish(ctx context.Context, job *Job, target string, score float64) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	n, err := finishScript.Run(ctx, q.rdb,
		[]string{q.key("active"), q.key(target), q.jobKey(job.ID), q.key("leases")},
		score, body, job.ID, job.leaseToken,
	).Int()
	if err != nil {
		return errors.Wrapf(err, "move job %s to %s", job.ID, target)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// PromoteDue moves delayed jobs whose retry time has passed back to waiting.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "list due jobs")
	}
	return q.requeue(ctx, "delayed", ids, nil)
}

// ReclaimExpired returns jobs whose lease ran out to waiting. A reclaimed job
// keeps its attempt count.
func (q *Queue) ReclaimExpired(ctx context.Context) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("active"), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "list expired leases")
	}
	return q.requeue(ctx, "active", ids, nil)
}

// RetryFailed resets every failed job and makes it available again.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	ids, err := q.rdb.ZRange(ctx, q.key("failed"), 0, -1).Result()
	if err != nil {
		return 0, errors.Wrap(err, "list failed jobs")
	}
	return q.requeue(ctx, "failed", ids, func(j *Job) {
		j.AttemptsMade = 0
		j.LastError = ""
		j.FinishedAt = nil
	})
}

func (q *Queue) requeue(ctx context.Context, from string, ids []string, reset func(*Job)) (int, error) {
	moved := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			q.rdb.ZRem(ctx, q.key(from), id)
			continue
		}
		if err != nil {
			return moved, err
		}

		if reset != nil {
			reset(job)
			body, err := json.Marshal(job)
			if err != nil {
				return moved, err
			}
			if err := q.rdb.Set(ctx, q.jobKey(id), body, 0).Err(); err != nil {
				return moved, errors.Wrapf(err, "reset job %s", id)
			}
		}

		score, err := q.waitScore(ctx, job.Options.Priority)
		if err != nil {
			return moved, err
		}
		var n int
		if from == "active" {
			n, err = reclaimScript.Run(ctx, q.rdb, []string{q.key(from), q.key("wait"), q.key("leases")}, score, id).Int()
		} else {
			n, err = moveScript.Run(ctx, q.rdb, []string{q.key(from), q.key("wait")}, score, id).Int()
		}
		if err != nil {
			return moved, errors.Wrapf(err, "requeue job %s", id)
		}
		moved += n
	}
	return moved, nil
}

func (q *Queue) load(ctx context.Context, id string) (*Job, error) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, errors.Wrapf(err, "decode job %s", id)
	}
	return &job, nil
}

type Counts struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Paused    bool  `json:"paused"`
}

func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var (
		c      Counts
		cmds   [5]*redis.IntCmd
		paused *redis.IntCmd
	)
	sets := [5]string{"wait", "delayed", "active", "completed", "failed"}
	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, s := range sets {
			cmds[i] = p.ZCard(ctx, q.key(s))
		}
		paused = p.Exists(ctx, q.key("paused"))
		return nil
	})
	if err != nil {
		return c, errors.Wrap(err, "queue counts")
	}
	c.Waiting = cmds[0].Val()
	c.Delayed = cmds[1].Val()
	c.Active = cmds[2].Val()
	c.Completed = cmds[3].Val()
	c.Failed = cmds[4].Val()
	c.Paused = paused.Val() == 1
	return c, nil
}

// Pause stops Reserve from handing out jobs. Enqueue keeps working.
func (q *Queue) Pause(ctx context.Context) error {
	return q.rdb.Set(ctx, q.key("paused"), "1", 0).Err()
}

func (q *Queue) Resume(ctx context.Context) error {
	return q.rdb.Del(ctx, q.key("paused")).Err()
}

// Drain removes all waiting and delayed jobs. Active jobs are left alone.
func (q *Queue) Drain(ctx context.Context) (int, error) {
	removed := 0
	for _, set := range []string{"wait", "delayed"} {
		n, err := q.removeAll(ctx, set, "-inf", "+inf", 0)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Clean deletes completed or failed jobs that finished more than grace ago.
// A limit of zero removes every match.
func (q *Queue) Clean(ctx context.Context, grace time.Duration, limit int, state State) (int, error) {
	var set string
	switch state {
	case StateCompleted:
		set = "completed"
	case StateFailed:
		set = "failed"
	default:
		return 0, fmt.Errorf("clean: unsupported state %q", state)
	}
	cutoff := strconv.FormatInt(q.now().Add(-grace).UnixMilli(), 10)
	return q.removeAll(ctx, set, "-inf", cutoff, limit)
}

func (q *Queue) removeAll(ctx context.Context, set, min, max string, limit int) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, q.key(set), &redis.ZRangeBy{
		Min: min, Max: max, Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "list %s jobs", set)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]any, len(ids))
	keys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		keys[i] = q.jobKey(id)
	}
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.key(set), members...)
		p.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "remove %s jobs", set)
	}
	return len(ids), nil
}

// Failed returns up to limit failed jobs, most recent first.
func (q *Queue) Failed(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := q.rdb.ZRevRange(ctx, q.key("failed"), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list failed jobs")
	}

	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		job.State = StateFailed
		out = append(out, *job)
	}
	return out, nil
}
