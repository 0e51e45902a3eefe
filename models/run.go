package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is the ledger row for one source within one session.
type ScrapeRun struct {
	ID              int64      `json:"id" db:"id"`
	SessionID       string     `json:"session_id" db:"session_id"`
	Source          string     `json:"source" db:"source"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	ListingsFound   int        `json:"listings_found" db:"listings_found"`
	ListingsNew     int        `json:"listings_new" db:"listings_new"`
	ListingsUpdated int        `json:"listings_updated" db:"listings_updated"`
	ListingsSkipped int        `json:"listings_skipped" db:"listings_skipped"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}
