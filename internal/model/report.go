package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Report is the aggregate analysis document produced by the report pipeline
// for one marathon. Regeneration overwrites the previous row.
type Report struct {
	MarathonID      uuid.UUID       `json:"marathon_id"`
	SubmissionCount int             `json:"submission_count"`
	Body            json.RawMessage `json:"body"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
