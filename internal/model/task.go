package model

import "time"

// AnswerTask is queued once per final answer submission and drained by
// the answer worker into the submissions table. Re-submission enqueues
// another task; the newest write wins on upsert.
type AnswerTask struct {
	MarathonID    string    `json:"marathon_id"`
	ParticipantID int       `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	Answer        string    `json:"answer"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// CompletionTask is queued exactly once per finalized session and
// drained by the completion worker into the attempts table.
type CompletionTask struct {
	MarathonID    string    `json:"marathon_id"`
	ParticipantID int       `json:"participant_id"`
	Status        string    `json:"status"`
	Submitted     []string  `json:"submitted"`
	FinishedAt    time.Time `json:"finished_at"`
}
