package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Outcome is the per-record result of running a record through the pipeline.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeMerged  Outcome = "merged"
	OutcomeSkipped Outcome = "skipped"
)

// SyncStats aggregates per-outcome counters and a bounded error log.
type SyncStats struct {
	Created  int
	Merged   int
	Skipped  int
	Exported int
	Failed   int
	Errors   JobErrors
}

// Record counts one pipeline outcome.
func (s *SyncStats) Record(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeMerged:
		s.Merged++
	case OutcomeSkipped:
		s.Skipped++
	}
}

// AddError counts a failure and appends msg to the error log until the log
// reaches MaxJobErrors entries.
func (s *SyncStats) AddError(msg string) {
	s.Failed++
	s.Errors = s.Errors.Append(msg)
}

// Merge adds other's counters and errors into s.
func (s *SyncStats) Merge(other SyncStats) {
	s.Created += other.Created
	s.Merged += other.Merged
	s.Skipped += other.Skipped
	s.Exported += other.Exported
	s.Failed += other.Failed
	for _, e := range other.Errors {
		s.Errors = s.Errors.Append(e)
	}
}

// Processed is the number of records that reached a terminal outcome.
func (s SyncStats) Processed() int {
	return s.Created + s.Merged + s.Skipped
}

// JobErrors is the bounded error list persisted as JSON on the job record.
type JobErrors []string

// Append returns the list with msg added unless MaxJobErrors is reached.
func (e JobErrors) Append(msg string) JobErrors {
	if len(e) >= MaxJobErrors {
		return e
	}
	return append(e, msg)
}

func (e JobErrors) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(e))
}

func (e *JobErrors) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported job errors type %T", src)
	}
	if len(raw) == 0 {
		*e = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*e = out
	return nil
}
