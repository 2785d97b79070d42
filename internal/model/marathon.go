package model

import (
	"time"

	"github.com/google/uuid"
)

// MarathonStatus enumerates the possible states of a marathon.
type MarathonStatus string

const (
	MarathonStatusDraft     MarathonStatus = "DRAFT"
	MarathonStatusPublished MarathonStatus = "PUBLISHED"
	MarathonStatusArchived  MarathonStatus = "ARCHIVED"
)

// Marathon represents a timed writing marathon.
type Marathon struct {
	ID              uuid.UUID      `json:"id"`
	Title           string         `json:"title"`
	AuthorID        int            `json:"author_id"`
	DurationMinutes int            `json:"duration_minutes"`
	QuestionCount   int            `json:"question_count"`
	Status          MarathonStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
