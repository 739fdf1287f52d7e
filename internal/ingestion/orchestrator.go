package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/registry"
)

// ErrIngestionDisabled is returned when ingestion is switched off via configuration.
var ErrIngestionDisabled = errors.New("filing ingestion is disabled")

// Registry is the subset of the filing registry client the orchestrator needs.
type Registry interface {
	ResolveFilerID(ctx context.Context, ticker string) (string, error)
	FetchFilingIndex(ctx context.Context, filerID string) ([]registry.Filing, error)
	DownloadDocument(ctx context.Context, filerID, filingID, documentName string) (*registry.Document, error)
}

// Config holds ingestion orchestrator configuration.
type Config struct {
	Enabled           bool
	AnnualLookback    int // most recent N annual filings
	QuarterlyLookback int // most recent M quarterly filings
	IncludeAmendments bool
	ExtractorVersion  string
	ParseMaxAttempts  int
}

// LoadConfig loads ingestion configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Enabled:           config.GetEnvBool("SEC_INTEGRATION_ENABLED", true),
		AnnualLookback:    config.GetEnvInt("SEC_ANNUAL_LOOKBACK", 2),
		QuarterlyLookback: config.GetEnvInt("SEC_QUARTERLY_LOOKBACK", 8),
		IncludeAmendments: config.GetEnvBool("SEC_INCLUDE_AMENDMENTS", false),
		ExtractorVersion:  config.GetEnvStr("SEC_EXTRACTOR_VERSION", "v1"),
		ParseMaxAttempts:  config.GetEnvInt("SEC_PARSE_MAX_ATTEMPTS", 3),
	}
}

// Result summarizes one ingestion run for a ticker.
type Result struct {
	Ticker           string
	FilerID          string
	SelectedCount    int
	ArtifactIDs      []string
	ParseJobIDs      []string
	CreatedArtifacts int
	CreatedJobs      int
	RanAt            time.Time
}

// Orchestrator drives one ticker's ingestion end to end:
// resolve filer id → fetch index → select filings → download → register RAW
// artifacts → create parse jobs.
//
// Every write is an idempotent upsert guarded by the store's uniqueness
// invariants, so re-running ingest for a ticker with no new filings performs
// network round-trips but writes nothing new. There is no cross-call
// transaction: each artifact/job write commits independently, which keeps the
// pipeline resumable after a crash.
type Orchestrator struct {
	cfg         *Config
	registry    Registry
	instruments InstrumentDirectory
	artifacts   ArtifactStore
	jobs        JobStore
	blobs       BlobStore
	logger      *slog.Logger
}

// NewOrchestrator wires an ingestion orchestrator.
func NewOrchestrator(
	cfg *Config,
	reg Registry,
	instruments InstrumentDirectory,
	artifacts ArtifactStore,
	jobs JobStore,
	blobs BlobStore,
) *Orchestrator {
	if cfg == nil {
		cfg = LoadConfig()
	}

	return &Orchestrator{
		cfg:         cfg,
		registry:    reg,
		instruments: instruments,
		artifacts:   artifacts,
		jobs:        jobs,
		blobs:       blobs,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// Ingest runs the full ingestion pipeline for one ticker.
//
// Resolution failure is fatal for the run; a download failure for a single
// filing is logged and skipped so one bad filing cannot abort ingestion of the
// others. Safe to call repeatedly.
func (o *Orchestrator) Ingest(ctx context.Context, ticker string) (*Result, error) {
	if !o.cfg.Enabled {
		return nil, ErrIngestionDisabled
	}

	symbol := strings.ToUpper(strings.TrimSpace(ticker))

	filerID, err := o.resolveFilerID(ctx, symbol)
	if err != nil {
		return nil, err
	}

	index, err := o.registry.FetchFilingIndex(ctx, filerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch filing index for %s: %w", symbol, err)
	}

	selected := SelectFilings(index, o.cfg.AnnualLookback, o.cfg.QuarterlyLookback, o.cfg.IncludeAmendments)

	result := &Result{
		Ticker:        symbol,
		FilerID:       filerID,
		SelectedCount: len(selected),
		RanAt:         time.Now().UTC(),
	}

	for _, filing := range selected {
		artifact, created, err := o.registerFiling(ctx, symbol, filerID, filing)
		if err != nil {
			o.logger.Error("failed to ingest filing",
				slog.String("ticker", symbol),
				slog.String("filing_id", filing.FilingID),
				slog.String("form_type", filing.FormType),
				slog.String("error", err.Error()),
			)

			continue
		}

		result.ArtifactIDs = append(result.ArtifactIDs, artifact.ID)
		if created {
			result.CreatedArtifacts++
		}

		job, jobCreated, err := o.createParseJob(ctx, artifact)
		if err != nil {
			o.logger.Error("failed to create parse job",
				slog.String("artifact_id", artifact.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		if jobCreated {
			result.ParseJobIDs = append(result.ParseJobIDs, job.ID)
			result.CreatedJobs++
		}
	}

	o.logger.Info("ingestion run complete",
		slog.String("ticker", symbol),
		slog.String("filer_id", filerID),
		slog.Int("selected", result.SelectedCount),
		slog.Int("created_artifacts", result.CreatedArtifacts),
		slog.Int("created_jobs", result.CreatedJobs),
	)

	return result, nil
}

// resolveFilerID reuses the cached filer id when present and otherwise resolves
// through the registry, caching the result. An unresolvable ticker is fatal.
func (o *Orchestrator) resolveFilerID(ctx context.Context, symbol string) (string, error) {
	if cached, err := o.instruments.CachedFilerID(ctx, symbol); err == nil && cached != "" {
		return cached, nil
	}

	filerID, err := o.registry.ResolveFilerID(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("failed to resolve filer id for %s: %w", symbol, err)
	}

	if err := o.instruments.SaveFilerID(ctx, symbol, filerID); err != nil {
		// Caching is best-effort; resolution already succeeded.
		o.logger.Warn("failed to cache filer id",
			slog.String("ticker", symbol),
			slog.String("filer_id", filerID),
			slog.String("error", err.Error()),
		)
	}

	return filerID, nil
}

// registerFiling downloads the primary document and upserts the RAW_FILING
// artifact keyed by (filer id, filing id).
func (o *Orchestrator) registerFiling(
	ctx context.Context,
	symbol, filerID string,
	filing registry.Filing,
) (*Artifact, bool, error) {
	doc, err := o.registry.DownloadDocument(ctx, filerID, filing.FilingID, filing.PrimaryDocument)
	if err != nil {
		return nil, false, fmt.Errorf("download failed: %w", err)
	}

	storagePath, err := o.blobs.Write(filerID, filing.FilingID, filing.PrimaryDocument, doc.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store document body: %w", err)
	}

	artifact := &Artifact{
		ID:             uuid.NewString(),
		Ticker:         symbol,
		FilerID:        filerID,
		FilingID:       filing.FilingID,
		FormType:       filing.FormType,
		FilingDate:     filing.FilingDate,
		PeriodEnd:      filing.PeriodEnd,
		Kind:           KindRawFiling,
		StorageBackend: StorageBackendLocalFS,
		StoragePath:    storagePath,
		FileName:       filing.PrimaryDocument,
		ContentHash:    doc.SHA256,
	}

	return o.artifacts.UpsertRaw(ctx, artifact)
}

// createParseJob creates the QUEUED parse job for a raw artifact unless one
// already exists for (artifact, extractor version).
func (o *Orchestrator) createParseJob(ctx context.Context, artifact *Artifact) (*ParseJob, bool, error) {
	job := &ParseJob{
		ID:               uuid.NewString(),
		ArtifactID:       artifact.ID,
		Status:           JobQueued,
		MaxAttempts:      o.cfg.ParseMaxAttempts,
		IdempotencyKey:   JobIdempotencyKey(artifact.ID, o.cfg.ExtractorVersion),
		ExtractorVersion: o.cfg.ExtractorVersion,
	}

	return o.jobs.CreateIfAbsent(ctx, job)
}
