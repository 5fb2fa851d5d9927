// Package queue provides the job broker client used by every sync driver.
//
// Jobs are transient: they live in the broker and in the worker's execution
// record, never as first-class database rows. Two broker implementations
// exist, Redis-backed for production and in-memory for development and
// tests, both honoring the same priority, expiry, and chain semantics.
package queue

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrBrokerUnavailable indicates a transient broker outage (connection
	// refused, timeout). Callers may retry with bounded backoff.
	ErrBrokerUnavailable = errors.New("queue: broker unavailable")

	// ErrJobRejected indicates a malformed submission. Not retryable.
	ErrJobRejected = errors.New("queue: job rejected")

	// ErrNotFound indicates an unknown job or chain handle.
	ErrNotFound = errors.New("queue: handle not found")
)

// JobType identifies the handler a job is routed to.
type JobType string

const (
	JobFetchProducts      JobType = "fetch_products"
	JobFetchOrders        JobType = "fetch_orders"
	JobFinalizeOnboarding JobType = "finalize_onboarding"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobFetchProducts, JobFetchOrders, JobFinalizeOnboarding:
		return true
	}
	return false
}

// Status is the lifecycle of a submitted job or chain as seen by pollers.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusStarted Status = "STARTED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Job is a unit of work. Priority is an integer where lower runs first;
// relative order is FIFO among equal priorities in the same queue.
type Job struct {
	ID       string  `json:"id"`
	Type     JobType `json:"type"`
	ClientID string  `json:"clientId"`

	// FullFetch requests the client's complete history instead of an
	// incremental fetch. Only meaningful for fetch_orders.
	FullFetch bool `json:"fullFetch,omitempty"`

	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// ExpiresAt bounds how long the job may sit queued. An expired,
	// not-yet-started job is dropped at dequeue, never executed. Zero
	// means no expiry.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`

	// ChainID links the job to its chain, when part of one.
	ChainID string `json:"chainId,omitempty"`

	// ChainOK carries the chain outcome into the finalize callback job.
	// Set by the broker when the callback is enqueued; nil otherwise.
	ChainOK *bool `json:"chainOk,omitempty"`
}

// SubmitOptions control priority and expiry for a single submission.
type SubmitOptions struct {
	Priority int
	Expiry   time.Duration // zero = no expiry
}

// Broker submits work to and retrieves work from the job queue.
type Broker interface {
	// Submit enqueues one job and returns its handle.
	Submit(ctx context.Context, job *Job, opts SubmitOptions) (string, error)

	// SubmitChain enqueues an ordered chain. Step N+1 is not dispatched
	// until step N reports success; on a step failure the remaining steps
	// are skipped. The callback job is enqueued exactly once when the
	// chain ends, with ChainOK reflecting the outcome. Returns the chain
	// handle.
	SubmitChain(ctx context.Context, steps []*Job, callback *Job) (string, error)

	// Status reports the state of a job or chain handle.
	Status(ctx context.Context, handle string) (Status, error)

	// Dequeue pops up to limit ready jobs in priority order, dropping any
	// that expired while queued. Dequeued jobs are marked started.
	Dequeue(ctx context.Context, limit int) ([]*Job, error)

	// Complete records a worker's result for a started job and advances
	// the job's chain, if any.
	Complete(ctx context.Context, jobID string, jobErr error) error
}

// validateJob is the shared admission check; violations are ErrJobRejected.
func validateJob(j *Job) error {
	if j == nil {
		return ErrJobRejected
	}
	if !j.Type.Valid() {
		return ErrJobRejected
	}
	if j.ClientID == "" {
		return ErrJobRejected
	}
	return nil
}
