package ingestion

import (
	"context"
	"errors"
)

// ErrArtifactNotFound is returned when an artifact id does not exist.
var ErrArtifactNotFound = errors.New("artifact not found")

// ErrJobNotFound is returned when a parse-job id does not exist.
var ErrJobNotFound = errors.New("parse job not found")

// ArtifactStore persists filing artifacts.
//
// The store enforces the uniqueness invariants from the domain model: upserting
// an unchanged RAW_FILING is a no-op returning the existing row, a changed
// content hash updates the pointer in place, and NORMALIZED_TEXT creation is
// idempotent per (parent artifact, extractor version).
type ArtifactStore interface {
	// UpsertRaw registers a RAW_FILING artifact keyed by (filer id, filing id).
	// Returns the stored artifact and whether a new row was created.
	UpsertRaw(ctx context.Context, artifact *Artifact) (*Artifact, bool, error)

	// CreateNormalized registers a NORMALIZED_TEXT artifact keyed by
	// (parent artifact id, extractor version). A concurrent or repeated create
	// returns the existing row with created=false.
	CreateNormalized(ctx context.Context, artifact *Artifact) (*Artifact, bool, error)

	// Get returns an artifact by id, or ErrArtifactNotFound.
	Get(ctx context.Context, id string) (*Artifact, error)

	// FindNormalized returns the NORMALIZED_TEXT artifact derived from a raw
	// artifact at a given extractor version, or ErrArtifactNotFound.
	FindNormalized(ctx context.Context, rawArtifactID, extractorVersion string) (*Artifact, error)
}

// JobStore persists parse jobs and implements the claim semantics of the state
// machine.
type JobStore interface {
	// CreateIfAbsent inserts a QUEUED job unless one already exists for the
	// job's idempotency key. Returns the stored job and whether it was created.
	CreateIfAbsent(ctx context.Context, job *ParseJob) (*ParseJob, bool, error)

	// Get returns a job by id, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*ParseJob, error)

	// Claim atomically moves a QUEUED job to RUNNING on behalf of workerID,
	// setting the lock holder, lock timestamp and incrementing the attempt
	// count. Returns claimed=false without error when another worker won or the
	// job is not claimable.
	Claim(ctx context.Context, id, workerID string) (*ParseJob, bool, error)

	// MarkDone moves a RUNNING job to DONE and clears the lock.
	MarkDone(ctx context.Context, id string) error

	// MarkFailed records the attempt error and moves the job to status
	// (FAILED or DEADLETTER, per NextStatusAfterFailure), clearing the lock.
	MarkFailed(ctx context.Context, id string, status JobStatus, lastError string) error

	// RequeueFailed is the bulk operator action: every FAILED job goes back to
	// QUEUED with its lock and last error cleared. Returns the number requeued.
	RequeueFailed(ctx context.Context) (int64, error)
}

// InstrumentDirectory is the external identity collaborator: a ticker ↔ filer id
// lookup/creation capability. The core caches resolved ids through it but never
// invents an id for an unresolvable ticker.
type InstrumentDirectory interface {
	// CachedFilerID returns the cached filer id for a ticker, or "" when the
	// ticker has not been resolved before.
	CachedFilerID(ctx context.Context, ticker string) (string, error)

	// SaveFilerID records (creating the instrument when missing) the resolved
	// filer id for a ticker.
	SaveFilerID(ctx context.Context, ticker, filerID string) error
}

// BlobStore writes artifact bodies to durable byte storage and serves them back.
type BlobStore interface {
	// Write stores a document body under (filer id, filing id, file name) and
	// returns the storage path recorded on the artifact.
	Write(filerID, filingID, fileName string, body []byte) (string, error)

	// Read returns the body stored at a path previously returned by Write.
	Read(path string) ([]byte, error)
}
