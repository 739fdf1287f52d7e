package worker

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

// setupKafka starts a single-broker Kafka container and returns a queue bound
// to a test topic.
func setupKafka(t *testing.T) *KafkaQueue {
	t.Helper()

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("filingwatch-test"),
	)
	require.NoError(t, err, "failed to start Kafka container")

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	queue, err := NewKafkaQueue(&QueueConfig{
		Brokers: brokers,
		Topic:   "parse-jobs-test",
		GroupID: "filingwatch-workers-test",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = queue.Close()
	})

	return queue
}

func TestKafkaQueueIntegration_PublishConsume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	queue := setupKafka(t)

	ctx := context.Background()

	want := []string{"job-a", "job-b", "job-c"}
	for _, id := range want {
		require.NoError(t, queue.Publish(ctx, id))
	}

	consumeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var got []string

	err := queue.Consume(consumeCtx, func(_ context.Context, jobID string) error {
		got = append(got, jobID)

		if len(got) == len(want) {
			cancel()
		}

		return nil
	})
	require.NoError(t, err)

	// Ids are keyed by job id, so partition assignment may reorder delivery.
	sort.Strings(got)
	require.Equal(t, want, got)
}

func TestKafkaQueueIntegration_HandlerErrorDoesNotStopConsumption(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	queue := setupKafka(t)

	ctx := context.Background()

	require.NoError(t, queue.Publish(ctx, "job-bad"))
	require.NoError(t, queue.Publish(ctx, "job-good"))

	consumeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var got []string

	err := queue.Consume(consumeCtx, func(_ context.Context, jobID string) error {
		got = append(got, jobID)

		if len(got) == 2 {
			cancel()
		}

		if jobID == "job-bad" {
			return errors.New("synthetic handler failure")
		}

		return nil
	})
	require.NoError(t, err)

	sort.Strings(got)
	require.Equal(t, []string{"job-bad", "job-good"}, got)
}
