package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeworks/marathon-backend/internal/config"
	"github.com/scribeworks/marathon-backend/internal/model"
	"github.com/scribeworks/marathon-backend/internal/service"
)

func TestLocalAnalyzerSummarizesPerParticipant(t *testing.T) {
	analyzer := service.NewAnalyzer(&config.Config{}, zerolog.Nop())

	marathonID := uuid.New()
	subs := []model.Submission{
		{MarathonID: marathonID, ParticipantID: 1, QuestionID: uuid.New(), Answer: "one two three"},
		{MarathonID: marathonID, ParticipantID: 1, QuestionID: uuid.New(), Answer: "four"},
		{MarathonID: marathonID, ParticipantID: 2, QuestionID: uuid.New(), Answer: "five six"},
	}

	body, err := analyzer.Analyze(context.Background(), marathonID, subs)
	require.NoError(t, err)

	var report struct {
		Kind         string `json:"kind"`
		TotalAnswers int    `json:"total_answers"`
		TotalWords   int    `json:"total_words"`
		Participants []struct {
			ParticipantID int `json:"participant_id"`
			AnswerCount   int `json:"answer_count"`
			WordCount     int `json:"word_count"`
		} `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(body, &report))

	assert.Equal(t, "local_summary", report.Kind)
	assert.Equal(t, 3, report.TotalAnswers)
	assert.Equal(t, 6, report.TotalWords)
	require.Len(t, report.Participants, 2)
	assert.Equal(t, 1, report.Participants[0].ParticipantID)
	assert.Equal(t, 4, report.Participants[0].WordCount)
	assert.Equal(t, 2, report.Participants[1].ParticipantID)
	assert.Equal(t, 2, report.Participants[1].WordCount)
}

func TestLocalAnalyzerEmptySubmissions(t *testing.T) {
	analyzer := service.NewAnalyzer(&config.Config{}, zerolog.Nop())

	body, err := analyzer.Analyze(context.Background(), uuid.New(), nil)
	require.NoError(t, err)

	var report struct {
		TotalAnswers int `json:"total_answers"`
	}
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, 0, report.TotalAnswers)
}

func TestHTTPAnalyzerForwardsSubmissions(t *testing.T) {
	var received struct {
		MarathonID  string             `json:"marathon_id"`
		Submissions []model.Submission `json:"submissions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"kind":"external","score":0.9}`))
	}))
	defer srv.Close()

	analyzer := service.NewAnalyzer(&config.Config{
		AnalysisURL:     srv.URL,
		AnalysisTimeout: 5 * time.Second,
	}, zerolog.Nop())

	marathonID := uuid.New()
	subs := []model.Submission{
		{MarathonID: marathonID, ParticipantID: 1, QuestionID: uuid.New(), Answer: "hello"},
	}

	body, err := analyzer.Analyze(context.Background(), marathonID, subs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"external","score":0.9}`, string(body))
	assert.Equal(t, marathonID.String(), received.MarathonID)
	require.Len(t, received.Submissions, 1)
}

func TestHTTPAnalyzerRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	analyzer := service.NewAnalyzer(&config.Config{
		AnalysisURL:     srv.URL,
		AnalysisTimeout: 5 * time.Second,
	}, zerolog.Nop())

	_, err := analyzer.Analyze(context.Background(), uuid.New(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
