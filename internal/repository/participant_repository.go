package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribeworks/marathon-backend/internal/model"
)

// ParticipantRepository handles participant and operator account lookup.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

// GetParticipantByEmail looks up a participant for login.
func (r *ParticipantRepository) GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error) {
	p := &model.Participant{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM participants
		 WHERE email = $1`, email,
	).Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetOperatorByEmail looks up an operator for login.
func (r *ParticipantRepository) GetOperatorByEmail(ctx context.Context, email string) (*model.Operator, error) {
	o := &model.Operator{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, created_at
		 FROM operators
		 WHERE email = $1`, email,
	).Scan(&o.ID, &o.Name, &o.Email, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOperator inserts an operator account. Used by the CLI tool.
func (r *ParticipantRepository) CreateOperator(ctx context.Context, o *model.Operator) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO operators (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		o.Name, o.Email, o.PasswordHash,
	).Scan(&o.ID, &o.CreatedAt)
}
