package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a queue entry. Unknown values are
// rejected at the boundary via ParseStatus.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusReEnter   Status = "re-enter"
	StatusServed    Status = "served"
	StatusNoShow    Status = "no-show"
	StatusCancelled Status = "cancelled"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusWaiting, StatusActive, StatusReEnter, StatusServed, StatusNoShow, StatusCancelled:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown queue status %q", s)
}

// Queued reports whether the entry counts toward the doctor's queue
// (holds a position number).
func (s Status) Queued() bool {
	return s == StatusWaiting || s == StatusReEnter
}

func (s Status) Terminal() bool {
	return s == StatusServed || s == StatusNoShow || s == StatusCancelled
}

// Tier is the priority class used for ordering queued entries.
// Re-entered patients outrank normal waiting patients.
func (s Status) Tier() int {
	switch s {
	case StatusReEnter:
		return 0
	case StatusWaiting:
		return 1
	}
	return 2
}

type QueueEntry struct {
	ID                 string    `json:"id"`
	DoctorID           string    `json:"doctor_id"`
	PatientID          string    `json:"patient_id"`
	PatientName        string    `json:"patient_name"`
	TokenNumber        int       `json:"token_number"`
	Token              string    `json:"token"`
	Status             Status    `json:"status"`
	Position           int       `json:"position"`
	EstimatedWait      int       `json:"estimated_wait_minutes"`
	HealthSummary      string    `json:"health_summary,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	ScheduledAt        time.Time `json:"scheduled_at,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	StartedAt          time.Time `json:"started_at,omitempty"`
	CompletedAt        time.Time `json:"completed_at,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Revision           int       `json:"revision"`
}

// ActionKind identifies the staff action an undo record can reverse.
type ActionKind string

const (
	ActionServed ActionKind = "served"
	ActionNoShow ActionKind = "no-show"
)

// QueueAction is the record of the most recent serve/no-show for one
// doctor. It holds exactly what Undo needs to restore the prior state:
// the terminated entry and, if a next patient was promoted as a side
// effect, that entry's pre-promotion status.
type QueueAction struct {
	Kind               ActionKind `json:"kind"`
	DoctorID           string     `json:"doctor_id"`
	EntryID            string     `json:"entry_id"`
	PromotedID         string     `json:"promoted_id,omitempty"`
	PromotedPrevStatus Status     `json:"promoted_prev_status,omitempty"`
	RecordedAt         time.Time  `json:"recorded_at"`
}
