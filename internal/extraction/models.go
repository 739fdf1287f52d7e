package extraction

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup.
var ErrSnapshotNotFound = errors.New("fact snapshot not found")

// FactSnapshot is the unit of extraction output: all facts extracted from one
// normalized artifact at one extractor version. At most one snapshot exists
// per normalized artifact, which is what makes parse-job reprocessing safe.
type FactSnapshot struct {
	ID               string
	Ticker           string
	FilerID          string
	ArtifactID       string // the NORMALIZED_TEXT artifact this was extracted from
	FormType         string
	FilingDate       time.Time
	PeriodEnd        *time.Time
	ExtractorVersion string
	FactCount        int
	ExtractedAt      time.Time
}

// SnapshotStore persists fact snapshots and their facts.
type SnapshotStore interface {
	// CreateSnapshot stores a snapshot and its facts. Returns the stored
	// snapshot and whether it was created; when a snapshot already exists for
	// the artifact the existing one is returned untouched.
	CreateSnapshot(ctx context.Context, snapshot *FactSnapshot, facts []Fact) (*FactSnapshot, bool, error)

	// FindByArtifact returns the snapshot extracted from a normalized artifact,
	// or ErrSnapshotNotFound.
	FindByArtifact(ctx context.Context, artifactID string) (*FactSnapshot, error)

	// LatestPrior returns the most recent snapshot before the given one for the
	// same filer and form type, ordered by period end then filing date
	// descending, or ErrSnapshotNotFound when this is the first.
	LatestPrior(ctx context.Context, snapshot *FactSnapshot) (*FactSnapshot, error)

	// Facts returns all facts belonging to a snapshot.
	Facts(ctx context.Context, snapshotID string) ([]Fact, error)
}
