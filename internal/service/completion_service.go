package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/model"
	"github.com/scribeworks/marathon-backend/internal/session"
)

// CompletionService hands session persistence work to the queue workers.
// Session actors call it inline, so both methods only enqueue: the
// database writes happen asynchronously in worker batches.
type CompletionService struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewCompletionService creates a new CompletionService.
func NewCompletionService(rdb *redis.Client, log zerolog.Logger) *CompletionService {
	return &CompletionService{
		rdb: rdb,
		log: log.With().Str("component", "completion_service").Logger(),
	}
}

// PersistFinalAnswer queues one final answer for durable storage.
func (s *CompletionService) PersistFinalAnswer(ctx context.Context, key session.Key, questionID uuid.UUID, answer string) error {
	task := model.AnswerTask{
		MarathonID:    key.MarathonID.String(),
		ParticipantID: key.ParticipantID,
		QuestionID:    questionID.String(),
		Answer:        answer,
		SubmittedAt:   time.Now(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal answer task: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue answer task: %w", err)
	}
	return nil
}

// PersistSessionCompletion queues the terminal attempt update.
func (s *CompletionService) PersistSessionCompletion(ctx context.Context, key session.Key, status session.Status, submitted []uuid.UUID) error {
	ids := make([]string, len(submitted))
	for i, id := range submitted {
		ids[i] = id.String()
	}

	task := model.CompletionTask{
		MarathonID:    key.MarathonID.String(),
		ParticipantID: key.ParticipantID,
		Status:        string(status),
		Submitted:     ids,
		FinishedAt:    time.Now(),
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal completion task: %w", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue completion task: %w", err)
	}

	s.log.Debug().
		Str("session_key", key.String()).
		Str("status", string(status)).
		Msg("Completion task queued")
	return nil
}
