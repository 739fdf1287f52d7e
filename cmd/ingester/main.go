// Command ingester runs one filing-ingestion pass for a set of tickers:
// resolve filer ids, select recent filings, download primary documents,
// register artifacts and queue parse jobs.
//
// When Kafka is configured the newly created parse-job ids are published for
// the worker fleet; otherwise workers pick them up by polling the database.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/ingestion"
	"github.com/filingwatch/filingwatch/internal/registry"
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
		logger.Error("ingester failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tickers := config.ParseCommaSeparatedList(config.GetEnvStr("SEC_TICKERS", ""))
	if len(tickers) == 0 {
		return errors.New("SEC_TICKERS cannot be empty")
	}

	conn, err := storage.Connect(storage.LoadConfig())
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	instruments, err := storage.NewInstrumentStore(conn)
	if err != nil {
		return err
	}

	artifacts, err := storage.NewArtifactStore(conn)
	if err != nil {
		return err
	}

	jobs, err := storage.NewJobStore(conn)
	if err != nil {
		return err
	}

	blobs, err := storage.NewLocalBlobStore("")
	if err != nil {
		return err
	}

	client, err := registry.NewClient(nil)
	if err != nil {
		return err
	}

	orchestrator := ingestion.NewOrchestrator(nil, client, instruments, artifacts, jobs, blobs)

	queue, err := buildQueue(logger)
	if err != nil {
		return err
	}

	if queue != nil {
		defer func() {
			_ = queue.Close()
		}()
	}

	var failed int

	for _, ticker := range tickers {
		result, err := orchestrator.Ingest(ctx, ticker)
		if err != nil {
			if errors.Is(err, ingestion.ErrIngestionDisabled) {
				return err
			}

			logger.Error("ticker ingestion failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)

			failed++

			continue
		}

		publishJobs(ctx, logger, queue, result)
	}

	if failed > 0 {
		logger.Warn("ingestion finished with failures",
			slog.Int("failed", failed),
			slog.Int("total", len(tickers)),
		)
	}

	return nil
}

// buildQueue returns the Kafka job queue when brokers are configured, nil
// otherwise.
func buildQueue(logger *slog.Logger) (worker.JobQueue, error) {
	cfg := worker.LoadQueueConfig()
	if !cfg.Enabled() {
		logger.Info("no Kafka brokers configured, workers will poll the database")

		return nil, nil
	}

	return worker.NewKafkaQueue(cfg)
}

func publishJobs(ctx context.Context, logger *slog.Logger, queue worker.JobQueue, result *ingestion.Result) {
	if queue == nil {
		return
	}

	for _, jobID := range result.ParseJobIDs {
		if err := queue.Publish(ctx, jobID); err != nil {
			// The job row is already QUEUED; polling workers will find it.
			logger.Warn("failed to publish parse job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}
}
