package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribeworks/marathon-backend/internal/model"
)

// AttemptRepository handles marathon attempt data access. Terminal
// updates go through the completion worker, not this repository.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Begin records the attempt row when a session starts. Idempotent: a
// concurrent or repeated start leaves the existing row untouched.
func (r *AttemptRepository) Begin(ctx context.Context, marathonID uuid.UUID, participantID int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (marathon_id, participant_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (marathon_id, participant_id) DO NOTHING`,
		marathonID, participantID, model.AttemptStatusInProgress,
	)
	return err
}

// GetByMarathonAndParticipant retrieves one attempt row.
func (r *AttemptRepository) GetByMarathonAndParticipant(ctx context.Context, marathonID uuid.UUID, participantID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, marathon_id, participant_id, started_at, finished_at, status
		 FROM attempts
		 WHERE marathon_id = $1 AND participant_id = $2`, marathonID, participantID,
	).Scan(&a.ID, &a.MarathonID, &a.ParticipantID, &a.StartedAt, &a.FinishedAt, &a.Status)
	if err != nil {
		return nil, err
	}
	return a, nil
}
