package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/storesync/internal/idgen"
)

// MemoryBroker is an in-process broker for demo/development and tests.
// It honors priority ordering, FIFO among equal priorities, expiry drops,
// and chain gating identically to the Redis broker.
type MemoryBroker struct {
	mu          sync.Mutex
	jobs        map[string]*memJob
	chains      map[string]*memChain
	ready       []readyRef
	seq         int64
	unavailable bool
}

type memJob struct {
	job   *Job
	state Status
}

type memChain struct {
	steps         []string // job IDs, in order
	callback      *Job
	next          int
	failed        bool
	callbackFired bool
}

type readyRef struct {
	jobID    string
	priority int
	seq      int64
}

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		jobs:   make(map[string]*memJob),
		chains: make(map[string]*memChain),
	}
}

// SetUnavailable toggles simulated broker outage: every call returns
// ErrBrokerUnavailable while set.
func (b *MemoryBroker) SetUnavailable(v bool) {
	b.mu.Lock()
	b.unavailable = v
	b.mu.Unlock()
}

func (b *MemoryBroker) Submit(_ context.Context, job *Job, opts SubmitOptions) (string, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrBrokerUnavailable
	}

	j := b.admit(job, opts)
	b.enqueueLocked(j)
	return j.ID, nil
}

func (b *MemoryBroker) SubmitChain(_ context.Context, steps []*Job, callback *Job) (string, error) {
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

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrBrokerUnavailable
	}

	chainID := idgen.WithPrefix("chain_")
	ch := &memChain{callback: callback}

	for _, s := range steps {
		j := b.admit(s, SubmitOptions{Priority: s.Priority})
		j.ChainID = chainID
		ch.steps = append(ch.steps, j.ID)
	}
	b.chains[chainID] = ch

	// Only the first step is dispatched; the rest are gated on success.
	b.enqueueLocked(b.jobs[ch.steps[0]].job)
	return chainID, nil
}

func (b *MemoryBroker) Status(_ context.Context, handle string) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return "", ErrBrokerUnavailable
	}

	if mj, ok := b.jobs[handle]; ok {
		return mj.state, nil
	}
	if ch, ok := b.chains[handle]; ok {
		return b.chainStatusLocked(ch), nil
	}
	return "", ErrNotFound
}

func (b *MemoryBroker) Dequeue(_ context.Context, limit int) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return nil, ErrBrokerUnavailable
	}

	sort.SliceStable(b.ready, func(i, j int) bool {
		if b.ready[i].priority != b.ready[j].priority {
			return b.ready[i].priority < b.ready[j].priority
		}
		return b.ready[i].seq < b.ready[j].seq
	})

	now := time.Now()
	var out []*Job
	kept := b.ready[:0]
	for _, ref := range b.ready {
		mj := b.jobs[ref.jobID]
		if mj == nil {
			continue
		}
		// Expired while queued: drop, never execute.
		if !mj.job.ExpiresAt.IsZero() && now.After(mj.job.ExpiresAt) {
			mj.state = StatusFailure
			continue
		}
		if len(out) < limit {
			mj.state = StatusStarted
			cp := *mj.job
			out = append(out, &cp)
			continue
		}
		kept = append(kept, ref)
	}
	b.ready = kept
	return out, nil
}

func (b *MemoryBroker) Complete(_ context.Context, jobID string, jobErr error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unavailable {
		return ErrBrokerUnavailable
	}

	mj, ok := b.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if jobErr != nil {
		mj.state = StatusFailure
	} else {
		mj.state = StatusSuccess
	}

	if mj.job.ChainID == "" {
		return nil
	}
	ch, ok := b.chains[mj.job.ChainID]
	if !ok {
		return nil
	}
	b.advanceChainLocked(mj.job.ChainID, ch, jobErr == nil)
	return nil
}

// admit registers the job with the broker without making it ready.
func (b *MemoryBroker) admit(job *Job, opts SubmitOptions) *Job {
	cp := *job
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("job_")
	}
	cp.Priority = opts.Priority
	cp.EnqueuedAt = time.Now()
	if opts.Expiry > 0 {
		cp.ExpiresAt = cp.EnqueuedAt.Add(opts.Expiry)
	}
	b.jobs[cp.ID] = &memJob{job: &cp, state: StatusPending}
	return &cp
}

func (b *MemoryBroker) enqueueLocked(j *Job) {
	b.seq++
	b.ready = append(b.ready, readyRef{jobID: j.ID, priority: j.Priority, seq: b.seq})
}

// advanceChainLocked dispatches the next gated step, or the callback when
// the chain has ended. The callback fires at most once per chain.
func (b *MemoryBroker) advanceChainLocked(chainID string, ch *memChain, stepOK bool) {
	// The callback completing is not a step result.
	if ch.next >= len(ch.steps) {
		return
	}

	if stepOK {
		ch.next++
		if ch.next < len(ch.steps) {
			b.enqueueLocked(b.jobs[ch.steps[ch.next]].job)
			return
		}
	} else {
		ch.failed = true
		// Remaining steps are abandoned, not dispatched.
		ch.next = len(ch.steps)
	}

	if ch.callbackFired {
		return
	}
	ch.callbackFired = true

	ok := !ch.failed
	cb := b.admit(ch.callback, SubmitOptions{Priority: ch.callback.Priority})
	cb.ChainID = chainID
	cb.ChainOK = &ok
	b.jobs[cb.ID].job = cb
	b.enqueueLocked(cb)
}

func (b *MemoryBroker) chainStatusLocked(ch *memChain) Status {
	if ch.failed {
		return StatusFailure
	}
	if ch.next >= len(ch.steps) {
		return StatusSuccess
	}
	first := b.jobs[ch.steps[0]]
	if ch.next == 0 && first != nil && first.state == StatusPending {
		return StatusPending
	}
	return StatusStarted
}

var _ Broker = (*MemoryBroker)(nil)
