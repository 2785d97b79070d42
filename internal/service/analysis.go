package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/model"
	"golang.org/x/sync/errgroup"
)

// localAnalysisConcurrency caps parallel per-participant aggregation in
// the fallback analyzer.
const localAnalysisConcurrency = 8

// NewAnalyzer picks the analyzer implementation from configuration: the
// external HTTP service when ANALYSIS_URL is set, otherwise a local
// summary-only analysis.
func NewAnalyzer(cfg *config.Config, log zerolog.Logger) Analyzer {
	if cfg.AnalysisURL != "" {
		return &HTTPAnalyzer{
			url:    cfg.AnalysisURL,
			client: &http.Client{Timeout: cfg.AnalysisTimeout},
			log:    log.With().Str("component", "http_analyzer").Logger(),
		}
	}
	log.Info().Msg("ANALYSIS_URL not set, using local analyzer")
	return &LocalAnalyzer{
		log: log.With().Str("component", "local_analyzer").Logger(),
	}
}

// HTTPAnalyzer delegates analysis to an external service.
type HTTPAnalyzer struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

type analysisRequest struct {
	MarathonID  string             `json:"marathon_id"`
	Submissions []model.Submission `json:"submissions"`
}

// Analyze posts the submissions and returns the service's response body
// verbatim as the report body.
func (a *HTTPAnalyzer) Analyze(ctx context.Context, marathonID uuid.UUID, subs []model.Submission) (json.RawMessage, error) {
	payload, err := json.Marshal(analysisRequest{
		MarathonID:  marathonID.String(),
		Submissions: subs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analysis service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis service returned %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("analysis service returned invalid JSON")
	}
	return body, nil
}

// LocalAnalyzer computes a word-count summary in-process. Used in
// deployments without an analysis service.
type LocalAnalyzer struct {
	log zerolog.Logger
}

type participantSummary struct {
	ParticipantID int `json:"participant_id"`
	AnswerCount   int `json:"answer_count"`
	WordCount     int `json:"word_count"`
}

type localReport struct {
	Kind         string               `json:"kind"`
	Participants []participantSummary `json:"participants"`
	TotalAnswers int                  `json:"total_answers"`
	TotalWords   int                  `json:"total_words"`
}

// Analyze aggregates submissions per participant.
func (a *LocalAnalyzer) Analyze(ctx context.Context, marathonID uuid.UUID, subs []model.Submission) (json.RawMessage, error) {
	byParticipant := make(map[int][]model.Submission)
	for _, s := range subs {
		byParticipant[s.ParticipantID] = append(byParticipant[s.ParticipantID], s)
	}

	var (
		mu        sync.Mutex
		summaries []participantSummary
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(localAnalysisConcurrency)
	for pid, ss := range byParticipant {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sum := participantSummary{ParticipantID: pid, AnswerCount: len(ss)}
			for _, s := range ss {
				sum.WordCount += len(strings.Fields(s.Answer))
			}
			mu.Lock()
			summaries = append(summaries, sum)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ParticipantID < summaries[j].ParticipantID
	})

	rep := localReport{Kind: "local_summary", Participants: summaries}
	for _, s := range summaries {
		rep.TotalAnswers += s.AnswerCount
		rep.TotalWords += s.WordCount
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("marshal local report: %w", err)
	}
	return body, nil
}
