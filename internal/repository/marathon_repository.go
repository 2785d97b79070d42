package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribeworks/marathon-backend/internal/model"
)

// MarathonRepository handles marathon and question data access.
type MarathonRepository struct {
	pool *pgxpool.Pool
}

// NewMarathonRepository creates a new MarathonRepository.
func NewMarathonRepository(pool *pgxpool.Pool) *MarathonRepository {
	return &MarathonRepository{pool: pool}
}

// GetByID retrieves a marathon.
func (r *MarathonRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Marathon, error) {
	m := &model.Marathon{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, author_id, duration_minutes, question_count, status, created_at, updated_at
		 FROM marathons
		 WHERE id = $1`, id,
	).Scan(&m.ID, &m.Title, &m.AuthorID, &m.DurationMinutes, &m.QuestionCount, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListQuestionIDs returns the marathon's question IDs in authoritative
// order. Insertion order (order_num) decides current-question semantics.
func (r *MarathonRepository) ListQuestionIDs(ctx context.Context, marathonID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions
		 WHERE marathon_id = $1
		 ORDER BY order_num ASC`, marathonID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListQuestions returns the marathon's full questions in order.
func (r *MarathonRepository) ListQuestions(ctx context.Context, marathonID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, marathon_id, prompt, order_num FROM questions
		 WHERE marathon_id = $1
		 ORDER BY order_num ASC`, marathonID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.MarathonID, &q.Prompt, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
