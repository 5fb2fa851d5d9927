package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/storesync/internal/jobs"
	"github.com/mbd888/storesync/internal/queue"
)

type recorder struct {
	mu   sync.Mutex
	runs []string
	fail map[string]error
}

func (r *recorder) handler(t queue.JobType) jobs.Handler {
	return func(_ context.Context, j *queue.Job) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, string(t)+":"+j.ClientID)
		if r.fail != nil {
			return r.fail[j.ID]
		}
		return nil
	}
}

func (r *recorder) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func newTestPool(broker queue.Broker, rec *recorder) *Pool {
	registry := jobs.NewRegistry()
	registry.Register(queue.JobFetchProducts, rec.handler(queue.JobFetchProducts))
	registry.Register(queue.JobFetchOrders, rec.handler(queue.JobFetchOrders))
	registry.Register(queue.JobFinalizeOnboarding, rec.handler(queue.JobFinalizeOnboarding))
	return New(Config{Concurrency: 2, PollInterval: 10 * time.Millisecond}, broker, registry, nil)
}

func TestPool_RunsJobAndRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()
	rec := &recorder{}

	handle, err := broker.Submit(ctx, &queue.Job{Type: queue.JobFetchOrders, ClientID: "cl_1"}, queue.SubmitOptions{})
	require.NoError(t, err)

	pool := newTestPool(broker, rec)
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, func() bool {
		st, err := broker.Status(ctx, handle)
		return err == nil && st == queue.StatusSuccess
	})
	assert.Equal(t, []string{"fetch_orders:cl_1"}, rec.ran())
}

func TestPool_FailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()

	job := &queue.Job{Type: queue.JobFetchProducts, ClientID: "cl_1"}
	handle, err := broker.Submit(ctx, job, queue.SubmitOptions{})
	require.NoError(t, err)

	rec := &recorder{fail: map[string]error{handle: errors.New("store unreachable")}}
	pool := newTestPool(broker, rec)
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, func() bool {
		st, err := broker.Status(ctx, handle)
		return err == nil && st == queue.StatusFailure
	})
}

func TestPool_DrivesChainThroughCallback(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()
	rec := &recorder{}

	chain, err := broker.SubmitChain(ctx, []*queue.Job{
		{Type: queue.JobFetchProducts, ClientID: "cl_1"},
		{Type: queue.JobFetchOrders, ClientID: "cl_1", FullFetch: true},
	}, &queue.Job{Type: queue.JobFinalizeOnboarding, ClientID: "cl_1"})
	require.NoError(t, err)

	pool := newTestPool(broker, rec)
	pool.Start(ctx)
	defer pool.Stop()

	waitFor(t, func() bool {
		st, err := broker.Status(ctx, chain)
		return err == nil && st == queue.StatusSuccess
	})

	// Steps ran in chain order with the callback last.
	runs := rec.ran()
	require.Len(t, runs, 3)
	assert.Equal(t, "fetch_products:cl_1", runs[0])
	assert.Equal(t, "fetch_orders:cl_1", runs[1])
	assert.Equal(t, "finalize_onboarding:cl_1", runs[2])
}

func TestPool_StopWaitsForDrain(t *testing.T) {
	ctx := context.Background()
	broker := queue.NewMemoryBroker()
	rec := &recorder{}

	pool := newTestPool(broker, rec)
	pool.Start(ctx)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
