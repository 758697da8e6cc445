package models

import "time"

type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// ParsingSession tracks one scraper execution. FinishedAt stays nil until the
// session completes; a run that never finishes remains "running" forever.
type ParsingSession struct {
	SessionID   string        `json:"session_id" db:"session_id"`
	StartedAt   time.Time     `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time    `json:"finished_at" db:"finished_at"`
	TotalParsed int           `json:"total_parsed" db:"total_parsed"`
	TotalSaved  int           `json:"total_saved" db:"total_saved"`
	Source      string        `json:"source" db:"source"`
	Status      SessionStatus `json:"status" db:"status"`
	Notes       string        `json:"notes" db:"notes"`
}
