package session

import "errors"

// Recoverable client-input errors. These are surfaced to the client as
// error events and never terminate the actor.
var (
	// ErrNotFound is returned by Attach when no actor is registered for the
	// key. Callers should fall back to Start.
	ErrNotFound = errors.New("no active session")

	// ErrAlreadyActive is returned by Start when a live actor already owns
	// the key. Idempotent callers should use Attach instead.
	ErrAlreadyActive = errors.New("session already active")

	// ErrInvalidTransition is returned for commands sent after the session
	// reached a terminal state.
	ErrInvalidTransition = errors.New("session is no longer accepting commands")

	// ErrUnknownQuestion is returned when a command names a question that is
	// not part of the session's question order.
	ErrUnknownQuestion = errors.New("question is not part of this session")

	// ErrCollaborator wraps failures of the persistence/leaderboard
	// collaborator during submit or finalize. The session state is still
	// consistent; callers may retry out-of-band.
	ErrCollaborator = errors.New("collaborator call failed")
)
