package models

import "time"

// Outbox job kinds.
const (
	OutboxKindContactAlert = "contact_alert"
)

// OutboxJob is a deferred side effect handed to the background worker pool.
// Jobs are best effort: failures are retried a bounded number of times and
// then dropped with a log line, never surfaced to the caller.
type OutboxJob struct {
	Kind        string    `json:"kind"`
	UserID      string    `json:"userId"`
	EmergencyID string    `json:"emergencyId"`
	Attempts    int       `json:"attempts"`
	EnqueuedAt  time.Time `json:"enqueuedAt"`
}
