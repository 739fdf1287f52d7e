// Package worker turns queued parse jobs into normalized artifacts, fact
// snapshots, changes and alerts.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/filingwatch/filingwatch/internal/alerting"
	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/extraction"
	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// Processor executes one parse job end to end:
// claim → normalize → extract facts → detect changes → mark done.
//
// Every stage is idempotent (normalized artifacts, snapshots and changes are
// all create-if-absent), so a job that crashed halfway can be retried and will
// only fill in whatever is missing.
type Processor struct {
	jobs      ingestion.JobStore
	artifacts ingestion.ArtifactStore
	blobs     ingestion.BlobStore
	snapshots extraction.SnapshotStore
	detector  *alerting.Detector
	logger    *slog.Logger
}

// NewProcessor wires a parse-job processor.
func NewProcessor(
	jobs ingestion.JobStore,
	artifacts ingestion.ArtifactStore,
	blobs ingestion.BlobStore,
	snapshots extraction.SnapshotStore,
	detector *alerting.Detector,
) *Processor {
	return &Processor{
		jobs:      jobs,
		artifacts: artifacts,
		blobs:     blobs,
		snapshots: snapshots,
		detector:  detector,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// ProcessJob claims and runs one parse job on behalf of workerID.
//
// A job that cannot be claimed (already running, done, or deadlettered) is not
// an error: duplicate deliveries from the queue are expected. A processing
// failure records the error on the job and moves it to FAILED, or DEADLETTER
// once the attempt budget is exhausted.
func (p *Processor) ProcessJob(ctx context.Context, jobID, workerID string) error {
	job, claimed, err := p.jobs.Claim(ctx, jobID, workerID)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}

	if !claimed {
		p.logger.Debug("job not claimable, skipping",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
		)

		return nil
	}

	if err := p.run(ctx, job); err != nil {
		next := ingestion.NextStatusAfterFailure(job.AttemptCount, job.MaxAttempts)

		p.logger.Error("parse job failed",
			slog.String("job_id", job.ID),
			slog.String("artifact_id", job.ArtifactID),
			slog.Int("attempt", job.AttemptCount),
			slog.String("next_status", string(next)),
			slog.String("error", err.Error()),
		)

		if markErr := p.jobs.MarkFailed(ctx, job.ID, next, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}

		return err
	}

	if err := p.jobs.MarkDone(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", job.ID, err)
	}

	p.logger.Info("parse job complete",
		slog.String("job_id", job.ID),
		slog.String("artifact_id", job.ArtifactID),
		slog.String("worker_id", workerID),
	)

	return nil
}

func (p *Processor) run(ctx context.Context, job *ingestion.ParseJob) error {
	raw, err := p.artifacts.Get(ctx, job.ArtifactID)
	if err != nil {
		return fmt.Errorf("failed to load raw artifact: %w", err)
	}

	normalized, text, err := p.ensureNormalized(ctx, raw, job.ExtractorVersion)
	if err != nil {
		return err
	}

	facts := extraction.SelectBestFacts(extraction.ExtractFacts(text))

	snapshot, created, err := p.snapshots.CreateSnapshot(ctx, &extraction.FactSnapshot{
		ID:               uuid.NewString(),
		Ticker:           raw.Ticker,
		FilerID:          raw.FilerID,
		ArtifactID:       normalized.ID,
		FormType:         raw.FormType,
		FilingDate:       raw.FilingDate,
		PeriodEnd:        raw.PeriodEnd,
		ExtractorVersion: job.ExtractorVersion,
		ExtractedAt:      time.Now().UTC(),
	}, facts)
	if err != nil {
		return fmt.Errorf("failed to create fact snapshot: %w", err)
	}

	if !created {
		p.logger.Debug("snapshot already exists for artifact",
			slog.String("artifact_id", normalized.ID),
			slog.String("snapshot_id", snapshot.ID),
		)
	}

	if _, err := p.detector.Process(ctx, snapshot); err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}

	return nil
}

// ensureNormalized returns the NORMALIZED_TEXT artifact for a raw filing at
// the given extractor version, creating it (and its stored body) when absent.
func (p *Processor) ensureNormalized(
	ctx context.Context,
	raw *ingestion.Artifact,
	extractorVersion string,
) (*ingestion.Artifact, string, error) {
	existing, err := p.artifacts.FindNormalized(ctx, raw.ID, extractorVersion)
	if err == nil {
		body, readErr := p.blobs.Read(existing.StoragePath)
		if readErr != nil {
			return nil, "", fmt.Errorf("failed to read normalized text: %w", readErr)
		}

		return existing, string(body), nil
	}

	if !errors.Is(err, ingestion.ErrArtifactNotFound) {
		return nil, "", fmt.Errorf("failed to look up normalized artifact: %w", err)
	}

	body, err := p.blobs.Read(raw.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read raw document: %w", err)
	}

	text, err := extraction.NormalizeDocument(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to normalize document: %w", err)
	}

	fileName := fmt.Sprintf("normalized-%s.txt", extractorVersion)

	storagePath, err := p.blobs.Write(raw.FilerID, raw.FilingID, fileName, []byte(text))
	if err != nil {
		return nil, "", fmt.Errorf("failed to store normalized text: %w", err)
	}

	sum := sha256.Sum256([]byte(text))

	normalized, _, err := p.artifacts.CreateNormalized(ctx, &ingestion.Artifact{
		ID:               uuid.NewString(),
		Ticker:           raw.Ticker,
		FilerID:          raw.FilerID,
		FilingID:         raw.FilingID,
		FormType:         raw.FormType,
		FilingDate:       raw.FilingDate,
		PeriodEnd:        raw.PeriodEnd,
		Kind:             ingestion.KindNormalizedText,
		StorageBackend:   raw.StorageBackend,
		StoragePath:      storagePath,
		FileName:         fileName,
		ContentHash:      hex.EncodeToString(sum[:]),
		ExtractorVersion: extractorVersion,
		ParentArtifactID: &raw.ID,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to register normalized artifact: %w", err)
	}

	return normalized, text, nil
}
