package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/filingwatch/filingwatch/internal/ingestion"
)

// Compile-time interface assertion.
var _ ingestion.InstrumentDirectory = (*InstrumentStore)(nil)

// InstrumentStore caches ticker → filer id resolutions in PostgreSQL so
// repeated ingestion runs skip the registry's full ticker index download.
type InstrumentStore struct {
	conn *Connection
}

// NewInstrumentStore creates a PostgreSQL-backed instrument directory.
func NewInstrumentStore(conn *Connection) (*InstrumentStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &InstrumentStore{conn: conn}, nil
}

// CachedFilerID returns the cached filer id for a ticker, or "" when the
// ticker has not been resolved before.
func (s *InstrumentStore) CachedFilerID(ctx context.Context, ticker string) (string, error) {
	query := `SELECT filer_id FROM instruments WHERE ticker = $1`

	var filerID string

	err := s.conn.QueryRowContext(ctx, query, normalizeTicker(ticker)).Scan(&filerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to look up instrument: %w", err)
	}

	return filerID, nil
}

// SaveFilerID records the resolved filer id for a ticker, creating the
// instrument row when missing.
func (s *InstrumentStore) SaveFilerID(ctx context.Context, ticker, filerID string) error {
	query := `
		INSERT INTO instruments (ticker, filer_id)
		VALUES ($1, $2)
		ON CONFLICT (ticker) DO UPDATE
		SET filer_id = EXCLUDED.filer_id, updated_at = NOW()
	`

	if _, err := s.conn.ExecContext(ctx, query, normalizeTicker(ticker), filerID); err != nil {
		return fmt.Errorf("failed to save instrument: %w", err)
	}

	return nil
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
