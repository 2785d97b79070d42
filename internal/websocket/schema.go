package websocket

import "time"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStartOrAttach  Action = "start_or_attach"
	ActionChangeQuestion Action = "change_question"
	ActionSaveDraft      Action = "save_draft"
	ActionSubmitAnswer   Action = "submit_answer"
	ActionComplete       Action = "complete_marathon"
	ActionPing           Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// StartOrAttachRequest starts the participant's attempt or attaches to
// the live one.
type StartOrAttachRequest struct {
	Action     Action `json:"action"`
	MarathonID string `json:"marathon_id"`
}

// ChangeQuestionRequest moves the current question pointer.
type ChangeQuestionRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
}

// SaveDraftRequest saves non-authoritative draft text for one question.
type SaveDraftRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
}

// SubmitAnswerRequest finalizes the answer for one question.
type SubmitAnswerRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
}

// CompleteRequest explicitly finalizes the whole attempt.
type CompleteRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventMarathonStarted   Event = "marathon_started"
	EventTimeUpdate        Event = "time_update"
	EventTimeUp            Event = "time_up"
	EventQuestionChanged   Event = "question_changed"
	EventAnswerSaved       Event = "answer_saved"
	EventAnswerSubmitted   Event = "answer_submitted"
	EventMarathonCompleted Event = "marathon_completed"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// ErrCode identifies rejected commands on the error event.
type ErrCode string

const (
	ErrCodeInvalidPayload      ErrCode = "INVALID_PAYLOAD"
	ErrCodeMarathonNotFound    ErrCode = "MARATHON_NOT_FOUND"
	ErrCodeMarathonNotOpen     ErrCode = "MARATHON_NOT_OPEN"
	ErrCodeNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrCodeAttemptFinished     ErrCode = "ATTEMPT_FINISHED"
	ErrCodeSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrCodeInvalidTransition   ErrCode = "INVALID_TRANSITION"
	ErrCodeInvalidQuestion     ErrCode = "INVALID_QUESTION"
	ErrCodeCollaboratorFailure ErrCode = "COLLABORATOR_FAILURE"
	ErrCodeInternal            ErrCode = "INTERNAL_ERROR"
)

// DraftPayload is one saved draft returned on resync.
type DraftPayload struct {
	Text    string    `json:"text"`
	SavedAt time.Time `json:"saved_at"`
}

// MarathonStartedResponse is the initial/resync snapshot. Drafts carry
// everything previously saved so a reconnecting client loses nothing.
type MarathonStartedResponse struct {
	Event             Event                   `json:"event"`
	Status            string                  `json:"status"`
	CurrentQuestionID string                  `json:"current_question_id"`
	QuestionOrder     []string                `json:"question_order"`
	Submitted         []string                `json:"submitted"`
	TimeRemaining     int64                   `json:"time_remaining"`
	TimeElapsed       int64                   `json:"time_elapsed"`
	Drafts            map[string]DraftPayload `json:"drafts,omitempty"`
}

// TimeUpdateResponse is the periodic tick. Times are whole seconds,
// always derived from the deadline on the server.
type TimeUpdateResponse struct {
	Event         Event `json:"event"`
	TimeRemaining int64 `json:"time_remaining"`
	TimeElapsed   int64 `json:"time_elapsed"`
}

type TimeUpResponse struct {
	Event Event `json:"event"`
}

type QuestionChangedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
}

type AnswerSavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID string    `json:"question_id"`
	SavedAt    time.Time `json:"saved_at"`
}

type AnswerSubmittedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	// Completed is true when this submission finalized the attempt.
	Completed bool `json:"completed"`
}

type MarathonCompletedResponse struct {
	Event   Event  `json:"event"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Event   Event   `json:"event"`
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
