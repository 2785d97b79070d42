package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates persisted marathon attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusExpired    AttemptStatus = "EXPIRED"
)

// Attempt represents a participant's marathon attempt as stored in PostgreSQL.
// The live, authoritative copy of an in-progress attempt lives in its
// session actor; this row is updated by the persistence workers.
type Attempt struct {
	ID            uuid.UUID     `json:"id"`
	MarathonID    uuid.UUID     `json:"marathon_id"`
	ParticipantID int           `json:"participant_id"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    *time.Time    `json:"finished_at,omitempty"`
	Status        AttemptStatus `json:"status"`
}

// Submission is a finalized answer for one question of an attempt.
// Resubmission overwrites the previous row (last final answer wins).
type Submission struct {
	MarathonID    uuid.UUID `json:"marathon_id"`
	ParticipantID int       `json:"participant_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	Answer        string    `json:"answer"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
