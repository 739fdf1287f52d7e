// Command worker consumes parse jobs and runs the extraction pipeline:
// normalize the raw filing, extract facts, snapshot them, and detect changes
// against the filer's previous comparable filing.
//
// With KAFKA_BROKERS set the worker consumes job ids from Kafka; without it
// the worker polls the database for QUEUED jobs. Claims are atomic either way.
//
// Running `worker requeue` instead moves every FAILED job back to QUEUED and
// exits; this is the operator action for draining the failed set after a fix.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/filingwatch/filingwatch/internal/alerting"
	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/storage"
	"github.com/filingwatch/filingwatch/internal/worker"
)

func main() {
	// Optional .env for local development; environment wins in deployment.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	if err := run(logger); err != nil {
		logger.Error("worker failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := storage.Connect(storage.LoadConfig())
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	jobs, err := storage.NewJobStore(conn)
	if err != nil {
		return err
	}

	artifacts, err := storage.NewArtifactStore(conn)
	if err != nil {
		return err
	}

	snapshots, err := storage.NewSnapshotStore(conn)
	if err != nil {
		return err
	}

	alerts, err := storage.NewAlertStore(conn)
	if err != nil {
		return err
	}

	blobs, err := storage.NewLocalBlobStore("")
	if err != nil {
		return err
	}

	if len(os.Args) > 1 && os.Args[1] == "requeue" {
		count, err := jobs.RequeueFailed(ctx)
		if err != nil {
			return err
		}

		logger.Info("requeued failed parse jobs", slog.Int64("count", count))

		return nil
	}

	rules := alerting.LoadRules(config.GetEnvStr("ALERT_RULESET_DIR", "rulesets"), logger)
	detector := alerting.NewDetector(rules, snapshots, alerts)
	processor := worker.NewProcessor(jobs, artifacts, blobs, snapshots, detector)
	pool := worker.NewPool(processor, worker.LoadPoolConfig())

	queueCfg := worker.LoadQueueConfig()
	if !queueCfg.Enabled() {
		logger.Info("no Kafka brokers configured, polling database for queued jobs")

		return pool.Poll(ctx, jobs)
	}

	queue, err := worker.NewKafkaQueue(queueCfg)
	if err != nil {
		return err
	}

	defer func() {
		_ = queue.Close()
	}()

	logger.Info("consuming parse jobs from Kafka",
		slog.String("topic", queueCfg.Topic),
		slog.String("group_id", queueCfg.GroupID),
	)

	return pool.Run(ctx, queue)
}
