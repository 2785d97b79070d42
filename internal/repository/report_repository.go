package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scribeworks/marathon-backend/internal/model"
)

// ReportRepository stores the aggregate analysis document per marathon.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// Upsert writes the report, replacing any previous generation.
func (r *ReportRepository) Upsert(ctx context.Context, rep *model.Report) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reports (marathon_id, submission_count, body, generated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (marathon_id) DO UPDATE
		 SET submission_count = EXCLUDED.submission_count,
		     body = EXCLUDED.body,
		     generated_at = NOW()`,
		rep.MarathonID, rep.SubmissionCount, rep.Body,
	)
	return err
}

// GetByMarathon retrieves the latest report for a marathon.
func (r *ReportRepository) GetByMarathon(ctx context.Context, marathonID uuid.UUID) (*model.Report, error) {
	rep := &model.Report{}
	err := r.pool.QueryRow(ctx,
		`SELECT marathon_id, submission_count, body, generated_at
		 FROM reports
		 WHERE marathon_id = $1`, marathonID,
	).Scan(&rep.MarathonID, &rep.SubmissionCount, &rep.Body, &rep.GeneratedAt)
	if err != nil {
		return nil, err
	}
	return rep, nil
}
