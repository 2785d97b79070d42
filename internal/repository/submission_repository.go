package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribeworks/marathon-backend/internal/model"
)

// SubmissionRepository reads finalized answers. Writes go through the
// answer worker, which drains the Redis persistence queue in bulk.
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// ListByMarathon returns every finalized answer for a marathon, grouped
// by participant then question order. Used by the report pipeline.
func (r *SubmissionRepository) ListByMarathon(ctx context.Context, marathonID uuid.UUID) ([]model.Submission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.marathon_id, s.participant_id, s.question_id, s.answer, s.submitted_at
		 FROM submissions s
		 JOIN questions q ON q.id = s.question_id
		 WHERE s.marathon_id = $1
		 ORDER BY s.participant_id, q.order_num`, marathonID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.MarathonID, &s.ParticipantID, &s.QuestionID, &s.Answer, &s.SubmittedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
