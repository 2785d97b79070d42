package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/model"
	"github.com/scribeworks/marathon-backend/internal/pipeline"
	"github.com/scribeworks/marathon-backend/internal/repository"
)

// ErrReportNotFound is returned when no report has been generated yet.
var ErrReportNotFound = errors.New("report not found")

// Analyzer turns a marathon's submissions into a report body.
type Analyzer interface {
	Analyze(ctx context.Context, marathonID uuid.UUID, subs []model.Submission) (json.RawMessage, error)
}

// ReportService runs the report generation pipeline. Generation is
// single-flight per marathon: triggering while a run is in flight
// attaches to it instead of starting a second one.
type ReportService struct {
	marathons   *repository.MarathonRepository
	submissions *repository.SubmissionRepository
	reports     *repository.ReportRepository
	analyzer    Analyzer
	runner      *pipeline.Runner
	log         zerolog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(
	marathons *repository.MarathonRepository,
	submissions *repository.SubmissionRepository,
	reports *repository.ReportRepository,
	analyzer Analyzer,
	runner *pipeline.Runner,
	log zerolog.Logger,
) *ReportService {
	return &ReportService{
		marathons:   marathons,
		submissions: submissions,
		reports:     reports,
		analyzer:    analyzer,
		runner:      runner,
		log:         log.With().Str("component", "report_service").Logger(),
	}
}

// TaskKey returns the pipeline task key for one marathon's report run.
// It doubles as the progress topic key.
func (s *ReportService) TaskKey(marathonID uuid.UUID) string {
	return "report:" + marathonID.String()
}

// Generate starts the report pipeline for a marathon, or attaches to the
// run already in flight. started reports whether this call began a new
// run. Stage state flows through closure variables; stages execute
// serially on one goroutine so no locking is needed.
func (s *ReportService) Generate(marathonID uuid.UUID) (*pipeline.Run, bool) {
	var (
		subs []model.Submission
		body json.RawMessage
	)

	stages := []pipeline.Stage{
		{
			Name: "collect_submissions",
			Run: func(ctx context.Context) error {
				if _, err := s.marathons.GetByID(ctx, marathonID); err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return ErrMarathonNotFound
					}
					return fmt.Errorf("load marathon: %w", err)
				}
				var err error
				subs, err = s.submissions.ListByMarathon(ctx, marathonID)
				if err != nil {
					return fmt.Errorf("collect submissions: %w", err)
				}
				return nil
			},
		},
		{
			Name: "run_analysis",
			Run: func(ctx context.Context) error {
				var err error
				body, err = s.analyzer.Analyze(ctx, marathonID, subs)
				return err
			},
		},
		{
			Name: "persist_report",
			Run: func(ctx context.Context) error {
				return s.reports.Upsert(ctx, &model.Report{
					MarathonID:      marathonID,
					SubmissionCount: len(subs),
					Body:            body,
				})
			},
		},
	}

	return s.runner.RunOrAttach(s.TaskKey(marathonID), stages)
}

// Get returns the in-flight run for a marathon's report, if any.
func (s *ReportService) Get(marathonID uuid.UUID) (*pipeline.Run, bool) {
	return s.runner.Get(s.TaskKey(marathonID))
}

// GetReport returns the last persisted report for a marathon.
func (s *ReportService) GetReport(ctx context.Context, marathonID uuid.UUID) (*model.Report, error) {
	rep, err := s.reports.GetByMarathon(ctx, marathonID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReportNotFound
	}
	return rep, err
}
