package models

import "time"

// JobStatus is the lifecycle of a Sync Job Record.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Direction selects which halves of a run execute.
type Direction string

const (
	DirectionImport Direction = "import"
	DirectionExport Direction = "export"
	DirectionBoth   Direction = "both"
)

// Imports reports whether the direction pulls external data in.
func (d Direction) Imports() bool { return d == DirectionImport || d == DirectionBoth || d == "" }

// Exports reports whether the direction pushes local changes out.
func (d Direction) Exports() bool { return d == DirectionExport || d == DirectionBoth || d == "" }

// Valid reports whether d is one of the known directions. Empty means both.
func (d Direction) Valid() bool {
	switch d {
	case "", DirectionImport, DirectionExport, DirectionBoth:
		return true
	}
	return false
}

// MaxJobErrors bounds the error log persisted on a job record.
const MaxJobErrors = 100

// SyncJob is the audit row of one orchestration run.
type SyncJob struct {
	ID           string
	ConnectionID string
	UserID       string
	Provider     Provider
	Direction    Direction
	Status       JobStatus

	Attempts    int
	MaxAttempts int
	RunAfter    time.Time

	Stats     SyncStats
	LastError string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}
