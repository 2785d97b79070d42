package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry is the process-wide map from session key to its single live
// actor. The mutex-guarded check-and-insert is what guarantees at most
// one authoritative actor per key under concurrent connect storms.
type Registry struct {
	clock     Clock
	tick      time.Duration
	drafts    DraftSaver
	completer Completer
	log       zerolog.Logger

	mu     sync.Mutex
	actors map[string]*Actor
}

// NewRegistry creates a registry whose actors share the given clock,
// tick interval, draft store and completion collaborator.
func NewRegistry(clock Clock, tick time.Duration, drafts DraftSaver, completer Completer, log zerolog.Logger) *Registry {
	return &Registry{
		clock:     clock,
		tick:      tick,
		drafts:    drafts,
		completer: completer,
		log:       log.With().Str("component", "session_registry").Logger(),
		actors:    make(map[string]*Actor),
	}
}

// Start creates and registers a new actor for the key, schedules its
// deadline timer and returns an initial snapshot. Fails with
// ErrAlreadyActive if a live actor exists.
func (r *Registry) Start(key Key, questionOrder []uuid.UUID, timeLimit time.Duration) (*Actor, Snapshot, error) {
	r.mu.Lock()
	if _, exists := r.actors[key.String()]; exists {
		r.mu.Unlock()
		return nil, Snapshot{}, ErrAlreadyActive
	}

	a := newActor(key, questionOrder, timeLimit, r)
	r.actors[key.String()] = a
	r.mu.Unlock()

	snap := a.snapshotLocked() // safe: run goroutine not started yet
	go a.run()

	r.log.Info().
		Str("session_key", key.String()).
		Int("questions", len(questionOrder)).
		Dur("time_limit", timeLimit).
		Msg("Session started")

	return a, snap, nil
}

// Attach returns the live actor for the key without creating state.
// Fails with ErrNotFound, signaling the caller to fall back to Start.
func (r *Registry) Attach(key Key) (*Actor, error) {
	r.mu.Lock()
	a, exists := r.actors[key.String()]
	r.mu.Unlock()

	if !exists {
		return nil, ErrNotFound
	}
	return a, nil
}

// StartOrAttach implements the wire-level start_or_attach semantics:
// attach when an actor is live, otherwise start one. Loops so that a
// concurrent finalize between Attach and Start cannot fail the caller.
func (r *Registry) StartOrAttach(key Key, questionOrder []uuid.UUID, timeLimit time.Duration) (*Actor, error) {
	for {
		a, err := r.Attach(key)
		if err == nil {
			return a, nil
		}

		a, _, err = r.Start(key, questionOrder, timeLimit)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrAlreadyActive) {
			return nil, err
		}
		// Lost the start race; the winner's actor is now registered.
	}
}

// Len reports the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// remove deletes the actor's registration. Compare-before-delete keeps a
// stale actor from evicting a successor registered under the same key.
func (r *Registry) remove(key Key, a *Actor) {
	r.mu.Lock()
	if current, ok := r.actors[key.String()]; ok && current == a {
		delete(r.actors, key.String())
	}
	r.mu.Unlock()
}
