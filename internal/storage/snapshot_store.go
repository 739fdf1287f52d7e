package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/filingwatch/filingwatch/internal/extraction"
)

// Compile-time interface assertion.
var _ extraction.SnapshotStore = (*SnapshotStore)(nil)

const snapshotColumns = `id, ticker, filer_id, artifact_id, form_type, filing_date,
	period_end, extractor_version, fact_count, extracted_at`

// SnapshotStore implements extraction.SnapshotStore with a PostgreSQL backend.
type SnapshotStore struct {
	conn *Connection
}

// NewSnapshotStore creates a PostgreSQL-backed fact snapshot store.
func NewSnapshotStore(conn *Connection) (*SnapshotStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &SnapshotStore{conn: conn}, nil
}

// CreateSnapshot stores a snapshot and its facts in one transaction.
//
// The artifact_id uniqueness constraint makes this idempotent: a retried parse
// job that already produced a snapshot gets the existing row back and writes
// no duplicate facts.
func (s *SnapshotStore) CreateSnapshot(
	ctx context.Context,
	snapshot *extraction.FactSnapshot,
	facts []extraction.Fact,
) (*extraction.FactSnapshot, bool, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	insert := `
		INSERT INTO fact_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (artifact_id) DO NOTHING
		RETURNING ` + snapshotColumns

	row := tx.QueryRowContext(ctx, insert,
		snapshot.ID, snapshot.Ticker, snapshot.FilerID, snapshot.ArtifactID,
		snapshot.FormType, snapshot.FilingDate, snapshot.PeriodEnd,
		snapshot.ExtractorVersion, len(facts),
	)

	stored, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		existing, findErr := s.FindByArtifact(ctx, snapshot.ArtifactID)
		if findErr != nil {
			return nil, false, findErr
		}

		return existing, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	factInsert := `
		INSERT INTO facts (id, snapshot_id, metric_key, metric_label, value_num,
			value_raw, unit, period, snippet, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, fact := range facts {
		_, err := tx.ExecContext(ctx, factInsert,
			uuid.NewString(), stored.ID, fact.MetricKey, fact.MetricLabel,
			fact.Value, fact.ValueRaw, fact.Unit, fact.Period, fact.Snippet, fact.Confidence,
		)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert fact %s: %w", fact.MetricKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return stored, true, nil
}

// FindByArtifact returns the snapshot extracted from a normalized artifact, or
// extraction.ErrSnapshotNotFound.
func (s *SnapshotStore) FindByArtifact(ctx context.Context, artifactID string) (*extraction.FactSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM fact_snapshots WHERE artifact_id = $1`

	snapshot, err := scanSnapshot(s.conn.QueryRowContext(ctx, query, artifactID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: artifact %s", extraction.ErrSnapshotNotFound, artifactID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find snapshot: %w", err)
	}

	return snapshot, nil
}

// LatestPrior returns the most recent snapshot before the given one for the
// same filer and form type, or extraction.ErrSnapshotNotFound.
func (s *SnapshotStore) LatestPrior(
	ctx context.Context,
	snapshot *extraction.FactSnapshot,
) (*extraction.FactSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM fact_snapshots
		WHERE filer_id = $1 AND form_type = $2 AND id <> $3
		ORDER BY period_end DESC NULLS LAST, filing_date DESC
		LIMIT 1
	`

	prior, err := scanSnapshot(s.conn.QueryRowContext(ctx, query, snapshot.FilerID, snapshot.FormType, snapshot.ID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no prior for %s/%s",
			extraction.ErrSnapshotNotFound, snapshot.FilerID, snapshot.FormType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find prior snapshot: %w", err)
	}

	return prior, nil
}

// Facts returns all facts belonging to a snapshot.
func (s *SnapshotStore) Facts(ctx context.Context, snapshotID string) ([]extraction.Fact, error) {
	query := `
		SELECT metric_key, metric_label, value_num, value_raw, unit, period, snippet, confidence
		FROM facts
		WHERE snapshot_id = $1
		ORDER BY metric_key, period
	`

	rows, err := s.conn.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var facts []extraction.Fact

	for rows.Next() {
		var (
			fact  extraction.Fact
			value sql.NullFloat64
		)

		err := rows.Scan(&fact.MetricKey, &fact.MetricLabel, &value,
			&fact.ValueRaw, &fact.Unit, &fact.Period, &fact.Snippet, &fact.Confidence)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fact row: %w", err)
		}

		if value.Valid {
			fact.Value = &value.Float64
		}

		facts = append(facts, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fact rows: %w", err)
	}

	return facts, nil
}

func scanSnapshot(row rowScanner) (*extraction.FactSnapshot, error) {
	var (
		snapshot  extraction.FactSnapshot
		periodEnd sql.NullTime
	)

	err := row.Scan(
		&snapshot.ID, &snapshot.Ticker, &snapshot.FilerID, &snapshot.ArtifactID,
		&snapshot.FormType, &snapshot.FilingDate, &periodEnd,
		&snapshot.ExtractorVersion, &snapshot.FactCount, &snapshot.ExtractedAt,
	)
	if err != nil {
		return nil, err
	}

	if periodEnd.Valid {
		snapshot.PeriodEnd = &periodEnd.Time
	}

	return &snapshot, nil
}
