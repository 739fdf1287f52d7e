package alerting

import (
	"context"
	"time"
)

// AlertStatusOpen is the status new alerts are created with.
const AlertStatusOpen = "open"

// Change records one metric moving between two consecutive snapshots of the
// same filer and form type.
type Change struct {
	ID          string
	Ticker      string
	FilerID     string
	MetricKey   string
	MetricLabel string
	PrevValue   float64
	CurrValue   float64
	Delta       float64

	// DeltaPct is nil when the prior value was zero.
	DeltaPct *float64

	Unit   string
	Period string

	PrevSnapshotID string
	CurrSnapshotID string

	// Severity is the highest severity among the rules the change triggered,
	// or info when no rule matched.
	Severity string

	// RuleID is the rule that set Severity, empty when no rule matched.
	RuleID string

	Snippet    string
	DetectedAt time.Time
}

// Alert is one rule firing on one change.
type Alert struct {
	ID          string
	Ticker      string
	FilerID     string
	AlertType   string
	Severity    string
	Status      string
	Message     string
	RuleID      string
	ChangeID    string
	SnapshotID  string
	Snippet     string
	TriggeredAt time.Time
}

// Store persists changes and alerts.
type Store interface {
	// HasChanges reports whether change detection already ran for a snapshot.
	HasChanges(ctx context.Context, snapshotID string) (bool, error)

	// SaveChange stores one detected change.
	SaveChange(ctx context.Context, change *Change) error

	// SaveAlert stores one triggered alert.
	SaveAlert(ctx context.Context, alert *Alert) error
}
