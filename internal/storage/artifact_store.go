package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sq "github.com/Masterminds/squirrel"

	"github.com/filingwatch/filingwatch/internal/config"
	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// Compile-time interface assertion.
var _ ingestion.ArtifactStore = (*ArtifactStore)(nil)

const artifactColumns = `id, ticker, filer_id, filing_id, form_type, filing_date, period_end,
	kind, storage_backend, storage_path, file_name, content_hash, extractor_version,
	parent_artifact_id, created_at, updated_at`

// ArtifactStore implements ingestion.ArtifactStore with a PostgreSQL backend.
//
// The uniqueness invariants live in partial unique indexes, so concurrent
// ingestion runs race safely: whoever inserts first wins and everyone else
// reads the existing row back.
type ArtifactStore struct {
	conn   *Connection
	logger *slog.Logger
}

// NewArtifactStore creates a PostgreSQL-backed artifact store.
func NewArtifactStore(conn *Connection) (*ArtifactStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &ArtifactStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}, nil
}

// UpsertRaw registers a RAW_FILING artifact keyed by (filer id, filing id).
//
// A re-run with an unchanged content hash is a no-op returning the existing
// row. A changed hash (the registry replaced the document in place) updates
// the stored pointer and hash without minting a new artifact id, so downstream
// references stay valid.
func (s *ArtifactStore) UpsertRaw(ctx context.Context, artifact *ingestion.Artifact) (*ingestion.Artifact, bool, error) {
	insert := `
		INSERT INTO artifacts (` + artifactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (filer_id, filing_id) WHERE kind = 'RAW_FILING' DO NOTHING
		RETURNING ` + artifactColumns

	row := s.conn.QueryRowContext(ctx, insert,
		artifact.ID, artifact.Ticker, artifact.FilerID, artifact.FilingID,
		artifact.FormType, artifact.FilingDate, artifact.PeriodEnd,
		ingestion.KindRawFiling, artifact.StorageBackend, artifact.StoragePath,
		artifact.FileName, artifact.ContentHash, artifact.ExtractorVersion,
		artifact.ParentArtifactID,
	)

	stored, err := scanArtifact(row)
	if err == nil {
		return stored, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert artifact: %w", err)
	}

	// Conflict: the artifact already exists for this filing.
	existing, err := s.findRaw(ctx, artifact.FilerID, artifact.FilingID)
	if err != nil {
		return nil, false, err
	}

	if existing.ContentHash == artifact.ContentHash {
		return existing, false, nil
	}

	s.logger.Info("filing document changed in place, updating artifact",
		slog.String("artifact_id", existing.ID),
		slog.String("filing_id", existing.FilingID),
	)

	update := `
		UPDATE artifacts
		SET content_hash = $1, storage_path = $2, file_name = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING ` + artifactColumns

	updated, err := scanArtifact(s.conn.QueryRowContext(ctx, update,
		artifact.ContentHash, artifact.StoragePath, artifact.FileName, existing.ID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to update artifact %s: %w", existing.ID, err)
	}

	return updated, false, nil
}

// CreateNormalized registers a NORMALIZED_TEXT artifact keyed by
// (parent artifact, extractor version). Concurrent or repeated creates return
// the existing row.
func (s *ArtifactStore) CreateNormalized(
	ctx context.Context,
	artifact *ingestion.Artifact,
) (*ingestion.Artifact, bool, error) {
	if artifact.ParentArtifactID == nil {
		return nil, false, errors.New("normalized artifact requires a parent artifact id")
	}

	insert := `
		INSERT INTO artifacts (` + artifactColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (parent_artifact_id, extractor_version) WHERE kind = 'NORMALIZED_TEXT' DO NOTHING
		RETURNING ` + artifactColumns

	row := s.conn.QueryRowContext(ctx, insert,
		artifact.ID, artifact.Ticker, artifact.FilerID, artifact.FilingID,
		artifact.FormType, artifact.FilingDate, artifact.PeriodEnd,
		ingestion.KindNormalizedText, artifact.StorageBackend, artifact.StoragePath,
		artifact.FileName, artifact.ContentHash, artifact.ExtractorVersion,
		artifact.ParentArtifactID,
	)

	stored, err := scanArtifact(row)
	if err == nil {
		return stored, true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert normalized artifact: %w", err)
	}

	existing, err := s.FindNormalized(ctx, *artifact.ParentArtifactID, artifact.ExtractorVersion)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// Get returns an artifact by id, or ingestion.ErrArtifactNotFound.
func (s *ArtifactStore) Get(ctx context.Context, id string) (*ingestion.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`

	artifact, err := scanArtifact(s.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ingestion.ErrArtifactNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", id, err)
	}

	return artifact, nil
}

// FindNormalized returns the NORMALIZED_TEXT artifact derived from a raw
// artifact at a given extractor version, or ingestion.ErrArtifactNotFound.
func (s *ArtifactStore) FindNormalized(
	ctx context.Context,
	rawArtifactID, extractorVersion string,
) (*ingestion.Artifact, error) {
	query := `
		SELECT ` + artifactColumns + `
		FROM artifacts
		WHERE kind = 'NORMALIZED_TEXT' AND parent_artifact_id = $1 AND extractor_version = $2
	`

	artifact, err := scanArtifact(s.conn.QueryRowContext(ctx, query, rawArtifactID, extractorVersion))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: normalized for %s at %s",
			ingestion.ErrArtifactNotFound, rawArtifactID, extractorVersion)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find normalized artifact: %w", err)
	}

	return artifact, nil
}

// ArtifactFilter narrows List results; zero values mean "no filter".
type ArtifactFilter struct {
	Ticker   string
	FormType string
	Kind     ingestion.ArtifactKind
	Limit    uint64
}

const defaultListLimit = 100

// List returns artifacts matching the filter, newest filings first.
func (s *ArtifactStore) List(ctx context.Context, filter ArtifactFilter) ([]*ingestion.Artifact, error) {
	builder := sq.Select(artifactColumns).
		From("artifacts").
		OrderBy("filing_date DESC, filing_id DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.Ticker != "" {
		builder = builder.Where(sq.Eq{"ticker": filter.Ticker})
	}

	if filter.FormType != "" {
		builder = builder.Where(sq.Eq{"form_type": filter.FormType})
	}

	if filter.Kind != "" {
		builder = builder.Where(sq.Eq{"kind": filter.Kind})
	}

	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	query, args, err := builder.Limit(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build artifact query: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var artifacts []*ingestion.Artifact

	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}

		artifacts = append(artifacts, artifact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifact rows: %w", err)
	}

	return artifacts, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*ingestion.Artifact, error) {
	var (
		artifact  ingestion.Artifact
		periodEnd sql.NullTime
		parentID  sql.NullString
	)

	err := row.Scan(
		&artifact.ID, &artifact.Ticker, &artifact.FilerID, &artifact.FilingID,
		&artifact.FormType, &artifact.FilingDate, &periodEnd,
		&artifact.Kind, &artifact.StorageBackend, &artifact.StoragePath,
		&artifact.FileName, &artifact.ContentHash, &artifact.ExtractorVersion,
		&parentID, &artifact.CreatedAt, &artifact.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if periodEnd.Valid {
		artifact.PeriodEnd = &periodEnd.Time
	}

	if parentID.Valid {
		artifact.ParentArtifactID = &parentID.String
	}

	return &artifact, nil
}

func (s *ArtifactStore) findRaw(ctx context.Context, filerID, filingID string) (*ingestion.Artifact, error) {
	query := `
		SELECT ` + artifactColumns + `
		FROM artifacts
		WHERE kind = 'RAW_FILING' AND filer_id = $1 AND filing_id = $2
	`

	artifact, err := scanArtifact(s.conn.QueryRowContext(ctx, query, filerID, filingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: raw %s/%s", ingestion.ErrArtifactNotFound, filerID, filingID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find raw artifact: %w", err)
	}

	return artifact, nil
}
