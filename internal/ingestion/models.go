// Package ingestion provides the filing ingestion domain: artifact and parse-job
// models, the parse-job state machine, deterministic filing selection, and the
// orchestrator that drives resolution → selection → download → registration.
//
// This package defines the store interfaces it needs for persistence without
// depending on concrete implementations; the PostgreSQL implementations live in
// internal/storage.
package ingestion

import (
	"fmt"
	"time"
)

// ArtifactKind distinguishes raw downloaded documents from derived plain text.
type ArtifactKind string

const (
	// KindRawFiling is the unmodified downloaded filing document.
	KindRawFiling ArtifactKind = "RAW_FILING"

	// KindNormalizedText is the plain-text derivative of a raw filing for a
	// given extractor version.
	KindNormalizedText ArtifactKind = "NORMALIZED_TEXT"
)

// StorageBackendLocalFS is the only storage backend currently supported for
// artifact bodies.
const StorageBackendLocalFS = "local_fs"

// Artifact is one stored filing document, raw or normalized.
//
// Uniqueness invariants (enforced by the store):
//   - at most one RAW_FILING artifact per (filer id, filing id)
//   - at most one NORMALIZED_TEXT artifact per (parent artifact, extractor version)
type Artifact struct {
	ID             string
	Ticker         string
	FilerID        string
	FilingID       string // accession number
	FormType       string
	FilingDate     time.Time
	PeriodEnd      *time.Time
	Kind           ArtifactKind
	StorageBackend string
	StoragePath    string
	FileName       string

	// ContentHash is the sha256 of the body; set for RAW_FILING artifacts only.
	ContentHash string

	// ExtractorVersion tags NORMALIZED_TEXT artifacts with the extraction logic
	// revision that produced them.
	ExtractorVersion string

	// ParentArtifactID links a NORMALIZED_TEXT artifact back to its RAW_FILING.
	ParentArtifactID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStatus is the parse-job state machine state.
type JobStatus string

const (
	// JobQueued is the initial state; the job is waiting to be claimed.
	JobQueued JobStatus = "QUEUED"

	// JobRunning means a worker holds the lock and is processing the job.
	JobRunning JobStatus = "RUNNING"

	// JobDone is terminal success.
	JobDone JobStatus = "DONE"

	// JobFailed is terminal for the current attempt; the job may be requeued
	// while attempts remain.
	JobFailed JobStatus = "FAILED"

	// JobDeadletter is terminal failure after the attempt budget is exhausted;
	// requires operator intervention.
	JobDeadletter JobStatus = "DEADLETTER"
)

// IsTerminal reports whether the status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobDone || s == JobDeadletter
}

// ParseJob is a durable work item that turns one RAW_FILING artifact into a
// NORMALIZED_TEXT artifact and downstream facts.
type ParseJob struct {
	ID               string
	ArtifactID       string
	Status           JobStatus
	AttemptCount     int
	MaxAttempts      int
	LockedBy         string
	LockedAt         *time.Time
	IdempotencyKey   string
	ExtractorVersion string
	LastError        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// JobIdempotencyKey builds the globally unique key guaranteeing at most one
// parse job per (artifact, extractor version), no matter how often ingestion runs.
func JobIdempotencyKey(artifactID, extractorVersion string) string {
	return fmt.Sprintf("parse:%s:%s", artifactID, extractorVersion)
}
