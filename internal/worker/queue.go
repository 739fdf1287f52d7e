package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/filingwatch/filingwatch/internal/config"
)

// ErrQueueClosed is returned when publishing to a queue that has been closed.
var ErrQueueClosed = errors.New("job queue is closed")

// JobQueue carries parse-job ids from the ingester to the workers.
type JobQueue interface {
	// Publish enqueues one job id for processing.
	Publish(ctx context.Context, jobID string) error

	// Consume delivers job ids to handler until ctx is cancelled. Handler
	// errors are logged, not fatal: the job's own state machine owns retries.
	Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error

	// Close releases the queue's resources.
	Close() error
}

// QueueConfig holds job-queue configuration.
type QueueConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// LoadQueueConfig loads queue configuration from environment variables. An
// empty KAFKA_BROKERS means no broker is available and callers should fall
// back to polling the database directly.
func LoadQueueConfig() *QueueConfig {
	return &QueueConfig{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("KAFKA_TOPIC", "filingwatch.parse-jobs"),
		GroupID: config.GetEnvStr("KAFKA_GROUP_ID", "filingwatch-workers"),
	}
}

// Enabled reports whether a broker is configured.
func (c *QueueConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// KafkaQueue is the Kafka-backed job queue. Job ids are tiny messages keyed by
// the id itself so duplicates for one job land in one partition.
type KafkaQueue struct {
	writer *kafka.Writer
	cfg    *QueueConfig
	logger *slog.Logger
}

var _ JobQueue = (*KafkaQueue)(nil)

// NewKafkaQueue builds a queue over the configured brokers.
func NewKafkaQueue(cfg *QueueConfig) (*KafkaQueue, error) {
	if !cfg.Enabled() {
		return nil, errors.New("no Kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	return &KafkaQueue{
		writer: writer,
		cfg:    cfg,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// Publish writes one job id to the topic.
func (q *KafkaQueue) Publish(ctx context.Context, jobID string) error {
	err := q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(jobID),
		Value: []byte(jobID),
	})
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", jobID, err)
	}

	return nil
}

// Consume reads job ids from the topic and hands them to handler. Messages are
// committed after the handler returns regardless of its error: a failed job is
// already recorded as FAILED/DEADLETTER in the database and must not be
// redelivered forever by the broker.
func (q *KafkaQueue) Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: q.cfg.Brokers,
		GroupID: q.cfg.GroupID,
		Topic:   q.cfg.Topic,
	})

	defer func() {
		_ = reader.Close()
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return fmt.Errorf("failed to fetch message: %w", err)
		}

		jobID := string(msg.Value)

		if err := handler(ctx, jobID); err != nil {
			q.logger.Error("job handler failed",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to commit message for job %s: %w", jobID, err)
		}
	}
}

// Close flushes and closes the underlying writer.
func (q *KafkaQueue) Close() error {
	return q.writer.Close()
}

// InlineQueue is the in-process fallback used when no broker is configured:
// the ingester and workers share a buffered channel inside one binary, and
// deployments without Kafka poll the database instead.
type InlineQueue struct {
	jobs chan string

	mu     sync.Mutex
	closed bool
}

var _ JobQueue = (*InlineQueue)(nil)

// NewInlineQueue builds an in-process queue with the given buffer size.
func NewInlineQueue(buffer int) *InlineQueue {
	if buffer <= 0 {
		buffer = 256
	}

	return &InlineQueue{
		jobs: make(chan string, buffer),
	}
}

// Publish enqueues a job id. Returns ErrQueueClosed after Close, and ctx.Err()
// when the buffer is full and the context expires first.
func (q *InlineQueue) Publish(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers enqueued job ids to handler until the queue is closed and
// drained or ctx is cancelled.
func (q *InlineQueue) Consume(ctx context.Context, handler func(ctx context.Context, jobID string) error) error {
	for {
		select {
		case jobID, ok := <-q.jobs:
			if !ok {
				return nil
			}

			// Handler errors are owned by the job state machine.
			_ = handler(ctx, jobID)
		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops publishers and lets Consume drain the remaining buffer.
func (q *InlineQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.jobs)

	return nil
}
