package models

import "time"

// SchemaVersion tags cached values so a deploy with a changed payload shape
// does not misread entries written by an older build.
const SchemaVersion = "2"

// PersonSchedule is the cache value for one person: every event found across
// the materialized window. Absence from the cache is an expected state, not an
// error.
type PersonSchedule struct {
	Person        string        `json:"person"`
	Category      string        `json:"category"`
	Role          RoleType      `json:"roleType"`
	Events        []EventRecord `json:"events"`
	Days          []string      `json:"days"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	SchemaVersion string        `json:"schemaVersion"`
}

// BatchRunMetadata summarizes the most recent materialization run. One live
// instance, overwritten each run; observability only, never correctness.
type BatchRunMetadata struct {
	RunID           string    `json:"runId"`
	LastRun         time.Time `json:"lastRun"`
	DurationSeconds float64   `json:"durationSeconds"`
	SheetsProcessed int       `json:"sheetsProcessed"`
	PeopleProcessed int       `json:"peopleProcessed"`
	EventsFound     int       `json:"eventsFound"`
	CacheSizeBytes  int       `json:"cacheSizeBytes"`
	ErrorCount      int       `json:"errorCount"`
	Errors          []string  `json:"errors,omitempty"`
}

// RunResult is the outcome of one materializer invocation. A quiet-hours skip
// is a normal result, not an error.
type RunResult struct {
	RunID      string            `json:"runId"`
	Skipped    bool              `json:"skipped"`
	SkipReason string            `json:"skipReason,omitempty"`
	Metadata   *BatchRunMetadata `json:"metadata,omitempty"`
}

// SheetRef describes one resolved whiteboard sheet.
type SheetRef struct {
	Name       string    `json:"name"`
	Date       time.Time `json:"date"`
	OffsetDays int       `json:"offsetDays"`
}
