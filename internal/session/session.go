package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the live session states.
type Status string

const (
	// StatusPending exists only for the instant between registry insertion
	// and the first deadline computation; callers never observe it.
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Key identifies one participant's attempt at one marathon.
type Key struct {
	MarathonID    uuid.UUID
	ParticipantID int
}

func (k Key) String() string {
	return fmt.Sprintf("participant:%d:marathon:%s", k.ParticipantID, k.MarathonID)
}

// Snapshot is a point-in-time copy of an actor's authoritative state.
// Time remaining is derived from the immutable deadline, never stored.
type Snapshot struct {
	Key           Key
	Status        Status
	StartedAt     time.Time
	Deadline      time.Time
	QuestionOrder []uuid.UUID
	CurrentIndex  int
	Submitted     []uuid.UUID
	TimeRemaining time.Duration
	TimeElapsed   time.Duration
}

// CurrentQuestionID returns the question the pointer is on.
func (s Snapshot) CurrentQuestionID() uuid.UUID {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.QuestionOrder) {
		return uuid.Nil
	}
	return s.QuestionOrder[s.CurrentIndex]
}

// SubmitResult reports the outcome of a final answer submission.
type SubmitResult struct {
	Accepted         bool
	AlreadySubmitted bool
	// Completed is true when this submission finalized the whole session.
	Completed bool
}

// EventType enumerates broadcasts an actor pushes to attached listeners.
type EventType string

const (
	EventTick            EventType = "tick"
	EventQuestionChanged EventType = "question_changed"
	EventDraftSaved      EventType = "draft_saved"
	EventTimeUp          EventType = "time_up"
	EventCompleted       EventType = "completed"
)

// Event is a broadcast from an actor to every attached listener.
type Event struct {
	Type          EventType
	Key           Key
	Status        Status
	QuestionID    uuid.UUID
	SavedAt       time.Time
	TimeRemaining time.Duration
	TimeElapsed   time.Duration
}

// Completer is the persistence/leaderboard collaborator invoked by actors.
// PersistFinalAnswer is called once per SubmitFinal (at-least-once;
// resubmission overwrites downstream). PersistSessionCompletion is called
// exactly once per session, on the first finalize.
type Completer interface {
	PersistFinalAnswer(ctx context.Context, key Key, questionID uuid.UUID, answer string) error
	PersistSessionCompletion(ctx context.Context, key Key, status Status, submitted []uuid.UUID) error
}

// DraftSaver is the non-authoritative draft holder written on save_draft.
// Implemented by the draft package; last write for the same key wins.
type DraftSaver interface {
	Save(ctx context.Context, marathonID string, participantID int, questionID, text string) (time.Time, error)
}
