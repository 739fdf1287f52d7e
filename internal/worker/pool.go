package worker

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// QueuedJobLister lists jobs awaiting a worker; used by the polling fallback
// when no message broker is configured.
type QueuedJobLister interface {
	ListByStatus(ctx context.Context, status ingestion.JobStatus, limit int) ([]*ingestion.ParseJob, error)
}

// PoolConfig holds worker-pool configuration.
type PoolConfig struct {
	WorkerCount  int
	PollInterval time.Duration
	PollBatch    int
}

// LoadPoolConfig loads pool configuration from environment variables.
func LoadPoolConfig() *PoolConfig {
	return &PoolConfig{
		WorkerCount:  config.GetEnvInt("WORKER_COUNT", 4),
		PollInterval: config.GetEnvDuration("WORKER_POLL_INTERVAL", 10*time.Second),
		PollBatch:    config.GetEnvInt("WORKER_POLL_BATCH", 50),
	}
}

// Pool runs a fixed set of workers that pull parse-job ids from a queue and
// feed them through the processor. Each worker carries a stable uuid identity
// for the job lock column.
type Pool struct {
	processor *Processor
	cfg       *PoolConfig
	logger    *slog.Logger
}

// NewPool wires a worker pool over the given processor.
func NewPool(processor *Processor, cfg *PoolConfig) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	return &Pool{
		processor: processor,
		cfg:       cfg,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Run consumes job ids from the queue with WorkerCount concurrent workers and
// blocks until ctx is cancelled or the queue is closed and drained.
func (p *Pool) Run(ctx context.Context, queue JobQueue) error {
	var wg sync.WaitGroup

	errs := make(chan error, p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		workerID := uuid.NewString()

		wg.Add(1)

		go func() {
			defer wg.Done()

			p.logger.Info("worker started", slog.String("worker_id", workerID))

			errs <- queue.Consume(ctx, func(ctx context.Context, jobID string) error {
				return p.processor.ProcessJob(ctx, jobID, workerID)
			})

			p.logger.Info("worker stopped", slog.String("worker_id", workerID))
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// Poll repeatedly lists QUEUED jobs and processes them with the pool's
// workers. This is the broker-less deployment mode: claims are atomic, so a
// fleet of polling workers never double-processes a job.
func (p *Pool) Poll(ctx context.Context, jobs QueuedJobLister) error {
	queue := NewInlineQueue(p.cfg.PollBatch * 2)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()
		defer func() {
			_ = queue.Close()
		}()

		ticker := time.NewTicker(p.cfg.PollInterval)
		defer ticker.Stop()

		for {
			if err := p.enqueueBatch(ctx, jobs, queue); err != nil {
				p.logger.Error("failed to poll queued jobs", slog.String("error", err.Error()))
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	err := p.Run(ctx, queue)

	wg.Wait()

	return err
}

func (p *Pool) enqueueBatch(ctx context.Context, jobs QueuedJobLister, queue JobQueue) error {
	queued, err := jobs.ListByStatus(ctx, ingestion.JobQueued, p.cfg.PollBatch)
	if err != nil {
		return err
	}

	for _, job := range queued {
		if err := queue.Publish(ctx, job.ID); err != nil {
			return err
		}
	}

	return nil
}
