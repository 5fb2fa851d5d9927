// Package worker runs the job execution pool.
//
// The pool polls the broker for ready jobs, fans them out to a bounded
// set of goroutines, and reports each result back through Complete so
// chains advance. A handler error fails only that job; the pool itself
// keeps running until stopped.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbd888/storesync/internal/jobs"
	"github.com/mbd888/storesync/internal/metrics"
	"github.com/mbd888/storesync/internal/queue"
	"github.com/mbd888/storesync/internal/traces"
)

// Config for the worker pool.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		PollInterval: time.Second,
	}
}

// Pool executes queued jobs.
type Pool struct {
	broker   queue.Broker
	registry *jobs.Registry
	config   Config
	logger   *slog.Logger

	// Shutdown
	stop chan struct{}
	done chan struct{}
}

// New creates a worker pool.
func New(cfg Config, broker queue.Broker, registry *jobs.Registry, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		broker:   broker,
		registry: registry,
		config:   cfg,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins polling for jobs.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool started",
		"concurrency", p.config.Concurrency,
		"poll_interval", p.config.PollInterval,
	)
	go p.pollLoop(ctx)
}

// Stop stops the pool and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Pool) pollLoop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.drainOnce(ctx); err != nil {
				p.logger.Error("dequeue failed", "error", err)
			}
		}
	}
}

// drainOnce pops one batch and runs it to completion.
func (p *Pool) drainOnce(ctx context.Context) error {
	batch, err := p.broker.Dequeue(ctx, p.config.Concurrency)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, job := range batch {
		wg.Add(1)
		go func(j *queue.Job) {
			defer wg.Done()
			p.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
	return nil
}

func (p *Pool) runJob(ctx context.Context, job *queue.Job) {
	ctx, span := traces.StartSpan(ctx, "worker.runJob",
		traces.JobID(job.ID),
		traces.JobType(string(job.Type)),
		traces.ClientID(job.ClientID),
	)
	defer span.End()

	start := time.Now()
	jobErr := p.registry.Handle(ctx, job)
	elapsed := time.Since(start)

	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(elapsed.Seconds())
	result := "success"
	if jobErr != nil {
		result = "failure"
		span.RecordError(jobErr)
		p.logger.Error("job failed",
			"job_id", job.ID, "type", job.Type, "client_id", job.ClientID,
			"elapsed", elapsed, "error", jobErr)
	} else {
		p.logger.Info("job done",
			"job_id", job.ID, "type", job.Type, "client_id", job.ClientID, "elapsed", elapsed)
	}
	metrics.JobsProcessedTotal.WithLabelValues(string(job.Type), result).Inc()

	if err := p.broker.Complete(ctx, job.ID, jobErr); err != nil {
		p.logger.Error("could not record job completion", "job_id", job.ID, "error", err)
	}
}
