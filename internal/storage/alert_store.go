package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/filingwatch/filingwatch/internal/alerting"
)

// Compile-time interface assertion.
var _ alerting.Store = (*AlertStore)(nil)

// AlertStore implements alerting.Store with a PostgreSQL backend.
type AlertStore struct {
	conn *Connection
}

// NewAlertStore creates a PostgreSQL-backed change and alert store.
func NewAlertStore(conn *Connection) (*AlertStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &AlertStore{conn: conn}, nil
}

// HasChanges reports whether change detection already ran for a snapshot.
func (s *AlertStore) HasChanges(ctx context.Context, snapshotID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM changes WHERE curr_snapshot_id = $1)`

	var exists bool
	if err := s.conn.QueryRowContext(ctx, query, snapshotID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing changes: %w", err)
	}

	return exists, nil
}

// SaveChange stores one detected change. Changes are unique per
// (current snapshot, metric, period); a concurrent detection run losing the
// race is a silent no-op, the winner's row stands.
func (s *AlertStore) SaveChange(ctx context.Context, change *alerting.Change) error {
	insert := `
		INSERT INTO changes (id, ticker, filer_id, metric_key, metric_label,
			prev_value, curr_value, delta, delta_pct, unit, period,
			prev_snapshot_id, curr_snapshot_id, severity, rule_id, snippet, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (curr_snapshot_id, metric_key, period) DO NOTHING
	`

	_, err := s.conn.ExecContext(ctx, insert,
		change.ID, change.Ticker, change.FilerID, change.MetricKey, change.MetricLabel,
		change.PrevValue, change.CurrValue, change.Delta, change.DeltaPct,
		change.Unit, change.Period, change.PrevSnapshotID, change.CurrSnapshotID,
		change.Severity, change.RuleID, change.Snippet, change.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert change: %w", err)
	}

	return nil
}

// SaveAlert stores one triggered alert.
func (s *AlertStore) SaveAlert(ctx context.Context, alert *alerting.Alert) error {
	insert := `
		INSERT INTO alerts (id, ticker, filer_id, alert_type, severity, status,
			message, rule_id, change_id, snapshot_id, snippet, triggered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.conn.ExecContext(ctx, insert,
		alert.ID, alert.Ticker, alert.FilerID, alert.AlertType, alert.Severity,
		alert.Status, alert.Message, alert.RuleID, alert.ChangeID,
		alert.SnapshotID, alert.Snippet, alert.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// AlertFilter narrows ListAlerts results; zero values mean "no filter".
type AlertFilter struct {
	Ticker   string
	Severity string
	Status   string
	Since    time.Time
	Limit    uint64
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *AlertStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*alerting.Alert, error) {
	builder := sq.Select(`id, ticker, filer_id, alert_type, severity, status,
			message, rule_id, change_id, snapshot_id, snippet, triggered_at`).
		From("alerts").
		OrderBy("triggered_at DESC").
		PlaceholderFormat(sq.Dollar)

	if filter.Ticker != "" {
		builder = builder.Where(sq.Eq{"ticker": filter.Ticker})
	}

	if filter.Severity != "" {
		builder = builder.Where(sq.Eq{"severity": filter.Severity})
	}

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}

	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"triggered_at": filter.Since})
	}

	limit := filter.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	query, args, err := builder.Limit(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build alert query: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var alerts []*alerting.Alert

	for rows.Next() {
		var alert alerting.Alert

		err := rows.Scan(
			&alert.ID, &alert.Ticker, &alert.FilerID, &alert.AlertType,
			&alert.Severity, &alert.Status, &alert.Message, &alert.RuleID,
			&alert.ChangeID, &alert.SnapshotID, &alert.Snippet, &alert.TriggeredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		alerts = append(alerts, &alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rows: %w", err)
	}

	return alerts, nil
}

// ListChanges returns the changes detected for a snapshot, for operator
// inspection alongside the alerts they triggered.
func (s *AlertStore) ListChanges(ctx context.Context, snapshotID string) ([]*alerting.Change, error) {
	query := `
		SELECT id, ticker, filer_id, metric_key, metric_label, prev_value, curr_value,
			delta, delta_pct, unit, period, prev_snapshot_id, curr_snapshot_id,
			severity, rule_id, snippet, detected_at
		FROM changes
		WHERE curr_snapshot_id = $1
		ORDER BY metric_key, period
	`

	rows, err := s.conn.QueryContext(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var changes []*alerting.Change

	for rows.Next() {
		var (
			change   alerting.Change
			deltaPct sql.NullFloat64
		)

		err := rows.Scan(
			&change.ID, &change.Ticker, &change.FilerID, &change.MetricKey, &change.MetricLabel,
			&change.PrevValue, &change.CurrValue, &change.Delta, &deltaPct,
			&change.Unit, &change.Period, &change.PrevSnapshotID, &change.CurrSnapshotID,
			&change.Severity, &change.RuleID, &change.Snippet, &change.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan change row: %w", err)
		}

		if deltaPct.Valid {
			change.DeltaPct = &deltaPct.Float64
		}

		changes = append(changes, &change)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change rows: %w", err)
	}

	return changes, nil
}
