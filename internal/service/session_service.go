package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/draft"
	"github.com/scribeworks/marathon-backend/internal/model"
	"github.com/scribeworks/marathon-backend/internal/repository"
	"github.com/scribeworks/marathon-backend/internal/session"
)

// Session orchestration errors.
var (
	ErrMarathonNotFound = errors.New("marathon not found")
	ErrMarathonNotOpen  = errors.New("marathon is not open for attempts")
	ErrNoQuestions      = errors.New("marathon has no questions")
	ErrAttemptFinished  = errors.New("attempt already finished")
)

// SessionService bridges persistent marathon data and the in-memory
// session registry. It owns the start path: validating the marathon,
// recording the attempt row and starting or attaching the actor.
type SessionService struct {
	marathons *repository.MarathonRepository
	attempts  *repository.AttemptRepository
	registry  *session.Registry
	drafts    *draft.Store
	log       zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	marathons *repository.MarathonRepository,
	attempts *repository.AttemptRepository,
	registry *session.Registry,
	drafts *draft.Store,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		marathons: marathons,
		attempts:  attempts,
		registry:  registry,
		drafts:    drafts,
		log:       log.With().Str("component", "session_service").Logger(),
	}
}

// StartOrAttach returns the live actor for the participant's attempt,
// starting one when none exists. The returned drafts map carries every
// saved draft of the attempt so a reconnecting client can resync.
func (s *SessionService) StartOrAttach(ctx context.Context, marathonID uuid.UUID, participantID int) (*session.Actor, session.Snapshot, map[string]draft.Draft, error) {
	key := session.Key{MarathonID: marathonID, ParticipantID: participantID}

	// Fast path: a live actor needs no database round trips.
	actor, err := s.registry.Attach(key)
	if errors.Is(err, session.ErrNotFound) {
		actor, err = s.start(ctx, key)
	}
	if err != nil {
		return nil, session.Snapshot{}, nil, err
	}

	snap, err := actor.Snapshot(ctx)
	if errors.Is(err, session.ErrInvalidTransition) {
		// The actor finalized between attach and snapshot. Retry once;
		// the registry no longer holds it, so this starts fresh only if
		// the attempt is genuinely restartable.
		return s.StartOrAttach(ctx, marathonID, participantID)
	}
	if err != nil {
		return nil, session.Snapshot{}, nil, err
	}

	drafts, err := s.drafts.Load(ctx, marathonID.String(), participantID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_key", key.String()).Msg("Draft resync load failed")
		drafts = map[string]draft.Draft{}
	}

	return actor, snap, drafts, nil
}

func (s *SessionService) start(ctx context.Context, key session.Key) (*session.Actor, error) {
	m, err := s.marathons.GetByID(ctx, key.MarathonID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMarathonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load marathon: %w", err)
	}
	if m.Status != model.MarathonStatusPublished {
		return nil, ErrMarathonNotOpen
	}

	order, err := s.marathons.ListQuestionIDs(ctx, key.MarathonID)
	if err != nil {
		return nil, fmt.Errorf("load question order: %w", err)
	}
	if len(order) == 0 {
		return nil, ErrNoQuestions
	}

	// A finished attempt must not restart with a fresh clock. The
	// terminal status lands via the completion worker, so a participant
	// racing the flush window can still slip through; the worker's
	// update is the authoritative end either way.
	prev, err := s.attempts.GetByMarathonAndParticipant(ctx, key.MarathonID, key.ParticipantID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if prev != nil && prev.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptFinished
	}

	if err := s.attempts.Begin(ctx, key.MarathonID, key.ParticipantID); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	timeLimit := time.Duration(m.DurationMinutes) * time.Minute
	return s.registry.StartOrAttach(key, order, timeLimit)
}
