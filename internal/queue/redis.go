package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mbd888/storesync/internal/idgen"
)

// Redis key layout. One sorted set holds the ready queue; each job and
// chain lives in its own hash.
const (
	readyKey    = "storesync:queue:ready"
	jobPrefix   = "storesync:job:"
	chainPrefix = "storesync:chain:"
)

func jobKey(id string) string   { return jobPrefix + id }
func chainKey(id string) string { return chainPrefix + id }

// RedisBroker is the production broker, backed by a Redis sorted set.
//
// Only one step of a chain is ever dispatched at a time, so chain state
// updates never race across workers; plain read-modify-write is enough.
type RedisBroker struct {
	client *goredis.Client
}

// NewRedisBroker creates a broker from a Redis URL.
func NewRedisBroker(redisURL string) (*RedisBroker, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	return &RedisBroker{client: goredis.NewClient(opts)}, nil
}

// Ping checks broker reachability; used by the readiness probe.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

func (b *RedisBroker) Submit(ctx context.Context, job *Job, opts SubmitOptions) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}

	cp := *job
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("job_")
	}
	cp.Priority = opts.Priority
	cp.EnqueuedAt = time.Now().UTC()
	if opts.Expiry > 0 {
		cp.ExpiresAt = cp.EnqueuedAt.Add(opts.Expiry)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, jobKey(cp.ID), jobFields(&cp, StatusPending))
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: jobScore(cp.Priority, cp.EnqueuedAt), Member: cp.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", unavailable("submit", err)
	}
	return cp.ID, nil
}

func (b *RedisBroker) SubmitChain(ctx context.Context, steps []*Job, callback *Job) (string, error) {
	if len(steps) == 0 {
		return "", ErrJobRejected
	}
	for _, s := range steps {
		if err := validateJob(s); err != nil {
			return "", err
		}
	}
	if err := validateJob(callback); err != nil {
		return "", err
	}

	chainID := idgen.WithPrefix("chain_")
	now := time.Now().UTC()

	stepIDs := make([]string, len(steps))
	pipe := b.client.TxPipeline()
	for i, s := range steps {
		cp := *s
		if cp.ID == "" {
			cp.ID = idgen.WithPrefix("job_")
		}
		cp.ChainID = chainID
		cp.EnqueuedAt = now
		stepIDs[i] = cp.ID
		pipe.HSet(ctx, jobKey(cp.ID), jobFields(&cp, StatusPending))
	}

	cbJSON, err := json.Marshal(callback)
	if err != nil {
		return "", ErrJobRejected
	}
	stepsJSON, _ := json.Marshal(stepIDs)

	pipe.HSet(ctx, chainKey(chainID), map[string]interface{}{
		"steps":          string(stepsJSON),
		"callback":       string(cbJSON),
		"next":           "0",
		"failed":         "0",
		"callback_fired": "0",
	})

	// Only the first step becomes ready; the rest are gated on success.
	first := steps[0]
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: jobScore(first.Priority, now), Member: stepIDs[0]})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", unavailable("submit chain", err)
	}
	return chainID, nil
}

func (b *RedisBroker) Status(ctx context.Context, handle string) (Status, error) {
	state, err := b.client.HGet(ctx, jobKey(handle), "state").Result()
	if err == nil {
		return Status(state), nil
	}
	if !errors.Is(err, goredis.Nil) {
		return "", unavailable("status", err)
	}

	ch, err := b.client.HGetAll(ctx, chainKey(handle)).Result()
	if err != nil {
		return "", unavailable("status", err)
	}
	if len(ch) == 0 {
		return "", ErrNotFound
	}
	return b.chainStatus(ctx, ch)
}

func (b *RedisBroker) Dequeue(ctx context.Context, limit int) ([]*Job, error) {
	members, err := b.client.ZPopMin(ctx, readyKey, int64(limit)).Result()
	if err != nil {
		return nil, unavailable("dequeue", err)
	}

	now := time.Now().UTC()
	var jobs []*Job
	for _, z := range members {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		j, err := b.getJob(ctx, id)
		if err != nil {
			continue
		}

		// Expired while queued: drop, never execute.
		if !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt) {
			b.client.HSet(ctx, jobKey(id), "state", string(StatusFailure))
			continue
		}

		if err := b.client.HSet(ctx, jobKey(id), "state", string(StatusStarted)).Err(); err != nil {
			return nil, unavailable("dequeue mark started", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (b *RedisBroker) Complete(ctx context.Context, jobID string, jobErr error) error {
	j, err := b.getJob(ctx, jobID)
	if err != nil {
		return err
	}

	state := StatusSuccess
	if jobErr != nil {
		state = StatusFailure
	}
	if err := b.client.HSet(ctx, jobKey(jobID), "state", string(state)).Err(); err != nil {
		return unavailable("complete", err)
	}

	if j.ChainID == "" || j.ChainOK != nil {
		// Standalone job, or the chain's own callback completing.
		return nil
	}
	return b.advanceChain(ctx, j.ChainID, jobErr == nil)
}

func (b *RedisBroker) advanceChain(ctx context.Context, chainID string, stepOK bool) error {
	key := chainKey(chainID)
	ch, err := b.client.HGetAll(ctx, key).Result()
	if err != nil {
		return unavailable("advance chain", err)
	}
	if len(ch) == 0 {
		return nil
	}

	var stepIDs []string
	_ = json.Unmarshal([]byte(ch["steps"]), &stepIDs)
	next, _ := strconv.Atoi(ch["next"])
	failed := ch["failed"] == "1"
	fired := ch["callback_fired"] == "1"

	if next >= len(stepIDs) {
		return nil
	}

	if stepOK {
		next++
		if next < len(stepIDs) {
			nextID := stepIDs[next]
			j, err := b.getJob(ctx, nextID)
			if err != nil {
				return err
			}
			pipe := b.client.TxPipeline()
			pipe.HSet(ctx, key, "next", strconv.Itoa(next))
			pipe.ZAdd(ctx, readyKey, goredis.Z{Score: jobScore(j.Priority, time.Now().UTC()), Member: nextID})
			if _, err := pipe.Exec(ctx); err != nil {
				return unavailable("advance chain", err)
			}
			return nil
		}
	} else {
		failed = true
		next = len(stepIDs) // remaining steps are abandoned
	}

	if fired {
		return nil
	}

	var cb Job
	if err := json.Unmarshal([]byte(ch["callback"]), &cb); err != nil {
		return fmt.Errorf("queue: chain %s: corrupt callback: %w", chainID, err)
	}
	if cb.ID == "" {
		cb.ID = idgen.WithPrefix("job_")
	}
	ok := !failed
	cb.ChainID = chainID
	cb.ChainOK = &ok
	cb.EnqueuedAt = time.Now().UTC()

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, key,
		"next", strconv.Itoa(next),
		"failed", boolField(failed),
		"callback_fired", "1",
	)
	pipe.HSet(ctx, jobKey(cb.ID), jobFields(&cb, StatusPending))
	pipe.ZAdd(ctx, readyKey, goredis.Z{Score: jobScore(cb.Priority, cb.EnqueuedAt), Member: cb.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable("fire callback", err)
	}
	return nil
}

func (b *RedisBroker) chainStatus(ctx context.Context, ch map[string]string) (Status, error) {
	if ch["failed"] == "1" {
		return StatusFailure, nil
	}

	var stepIDs []string
	_ = json.Unmarshal([]byte(ch["steps"]), &stepIDs)
	next, _ := strconv.Atoi(ch["next"])
	if next >= len(stepIDs) {
		return StatusSuccess, nil
	}
	if next == 0 && len(stepIDs) > 0 {
		state, err := b.client.HGet(ctx, jobKey(stepIDs[0]), "state").Result()
		if err == nil && Status(state) == StatusPending {
			return StatusPending, nil
		}
	}
	return StatusStarted, nil
}

// ── helpers ──

// jobScore orders the ready set: lower priority number first, FIFO within
// a priority via a fractional time component.
func jobScore(priority int, enqueuedAt time.Time) float64 {
	return float64(priority) + float64(enqueuedAt.UnixMilli())/1e15
}

func jobFields(j *Job, state Status) map[string]interface{} {
	m := map[string]interface{}{
		"id":          j.ID,
		"type":        string(j.Type),
		"client_id":   j.ClientID,
		"full_fetch":  boolField(j.FullFetch),
		"priority":    strconv.Itoa(j.Priority),
		"chain_id":    j.ChainID,
		"state":       string(state),
		"enqueued_at": j.EnqueuedAt.Format(time.RFC3339Nano),
	}
	if !j.ExpiresAt.IsZero() {
		m["expires_at"] = j.ExpiresAt.Format(time.RFC3339Nano)
	}
	if j.ChainOK != nil {
		m["chain_ok"] = boolField(*j.ChainOK)
	}
	return m
}

func (b *RedisBroker) getJob(ctx context.Context, id string) (*Job, error) {
	m, err := b.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, unavailable("get job", err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}

	priority, _ := strconv.Atoi(m["priority"])                       //nolint:errcheck // trusted broker data
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, m["enqueued_at"]) //nolint:errcheck // trusted broker data

	j := &Job{
		ID:         m["id"],
		Type:       JobType(m["type"]),
		ClientID:   m["client_id"],
		FullFetch:  m["full_fetch"] == "1",
		Priority:   priority,
		ChainID:    m["chain_id"],
		EnqueuedAt: enqueuedAt,
	}
	if v := m["expires_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // trusted broker data
		j.ExpiresAt = t
	}
	if v, ok := m["chain_ok"]; ok {
		b := v == "1"
		j.ChainOK = &b
	}
	return j, nil
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// unavailable maps transport failures to the retryable taxonomy.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrBrokerUnavailable, op, err)
}

var _ Broker = (*RedisBroker)(nil)
