package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/draft"
	"github.com/scribeworks/marathon-backend/internal/middleware"
	"github.com/scribeworks/marathon-backend/internal/service"
	"github.com/scribeworks/marathon-backend/internal/session"
	ws "github.com/scribeworks/marathon-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionSource resolves the live actor for a participant's attempt.
// Implemented by service.SessionService.
type SessionSource interface {
	StartOrAttach(ctx context.Context, marathonID uuid.UUID, participantID int) (*session.Actor, session.Snapshot, map[string]draft.Draft, error)
}

// WSHandler handles the WebSocket marathon stream. It is a thin
// translator: every command becomes an actor call, every actor event
// becomes a wire event, and no session state lives in the connection.
type WSHandler struct {
	sessions SessionSource
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionSource, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// MarathonStream godoc
// WS /ws/v1/marathon/stream
// Upgrades to WebSocket for the real-time attempt protocol.
func (h *WSHandler) MarathonStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	participantID := claims.UserID
	wsLog := h.log.With().Int("participant_id", participantID).Logger()
	wsLog.Info().Msg("Participant connected")

	var (
		actor *session.Actor
		sub   *session.Subscription
	)
	defer func() {
		if sub != nil {
			// Disconnect only detaches this listener. The actor keeps
			// running and a reconnect resyncs from a snapshot.
			sub.Cancel()
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			conn.WriteError(ws.ErrCodeInvalidPayload, "malformed message")
			continue
		}

		switch envelope.Action {
		case ws.ActionStartOrAttach:
			actor, sub = h.handleStartOrAttach(c.Request.Context(), conn, wsLog, participantID, data, actor, sub)
		case ws.ActionChangeQuestion:
			h.handleChangeQuestion(c.Request.Context(), conn, actor, data)
		case ws.ActionSaveDraft:
			h.handleSaveDraft(c.Request.Context(), conn, actor, data)
		case ws.ActionSubmitAnswer:
			h.handleSubmitAnswer(c.Request.Context(), conn, actor, data)
		case ws.ActionComplete:
			h.handleComplete(c.Request.Context(), conn, actor)
		case ws.ActionPing:
			conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			conn.WriteError(ws.ErrCodeInvalidPayload, "unknown action: "+string(envelope.Action))
		}
	}
}

// handleStartOrAttach resolves the actor, attaches the event pump and
// sends the snapshot. Calling it again on the same connection resyncs.
func (h *WSHandler) handleStartOrAttach(
	ctx context.Context,
	conn *ws.Conn,
	wsLog zerolog.Logger,
	participantID int,
	data []byte,
	prevActor *session.Actor,
	prevSub *session.Subscription,
) (*session.Actor, *session.Subscription) {
	var req ws.StartOrAttachRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "malformed start_or_attach")
		return prevActor, prevSub
	}

	marathonID, err := uuid.Parse(req.MarathonID)
	if err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "invalid marathon_id format")
		return prevActor, prevSub
	}

	actor, snap, drafts, err := h.sessions.StartOrAttach(ctx, marathonID, participantID)
	if err != nil {
		writeSessionError(conn, err)
		return prevActor, prevSub
	}

	sub, err := actor.Subscribe(ctx)
	if err != nil {
		// Finalized between resolve and subscribe; tell the client to retry.
		writeSessionError(conn, err)
		return prevActor, prevSub
	}
	if prevSub != nil {
		prevSub.Cancel()
	}
	go h.pumpEvents(conn, sub)

	submitted := make([]string, len(snap.Submitted))
	for i, id := range snap.Submitted {
		submitted[i] = id.String()
	}
	order := make([]string, len(snap.QuestionOrder))
	for i, id := range snap.QuestionOrder {
		order[i] = id.String()
	}
	draftPayloads := make(map[string]ws.DraftPayload, len(drafts))
	for qid, d := range drafts {
		draftPayloads[qid] = ws.DraftPayload{Text: d.Text, SavedAt: d.SavedAt}
	}

	conn.WriteTyped(ws.MarathonStartedResponse{
		Event:             ws.EventMarathonStarted,
		Status:            string(snap.Status),
		CurrentQuestionID: snap.CurrentQuestionID().String(),
		QuestionOrder:     order,
		Submitted:         submitted,
		TimeRemaining:     int64(snap.TimeRemaining.Seconds()),
		TimeElapsed:       int64(snap.TimeElapsed.Seconds()),
		Drafts:            draftPayloads,
	})

	wsLog.Info().
		Str("marathon_id", marathonID.String()).
		Str("status", string(snap.Status)).
		Msg("Session stream attached")
	return actor, sub
}

// pumpEvents forwards actor broadcasts to the client until the
// subscription channel closes.
func (h *WSHandler) pumpEvents(conn *ws.Conn, sub *session.Subscription) {
	for ev := range sub.C {
		var payload interface{}
		switch ev.Type {
		case session.EventTick:
			payload = ws.TimeUpdateResponse{
				Event:         ws.EventTimeUpdate,
				TimeRemaining: int64(ev.TimeRemaining.Seconds()),
				TimeElapsed:   int64(ev.TimeElapsed.Seconds()),
			}
		case session.EventQuestionChanged:
			payload = ws.QuestionChangedResponse{
				Event:      ws.EventQuestionChanged,
				QuestionID: ev.QuestionID.String(),
			}
		case session.EventDraftSaved:
			payload = ws.AnswerSavedResponse{
				Event:      ws.EventAnswerSaved,
				QuestionID: ev.QuestionID.String(),
				SavedAt:    ev.SavedAt,
			}
		case session.EventTimeUp:
			payload = ws.TimeUpResponse{Event: ws.EventTimeUp}
		case session.EventCompleted:
			payload = ws.MarathonCompletedResponse{
				Event:   ws.EventMarathonCompleted,
				Status:  string(ev.Status),
				Message: "marathon completed",
			}
		default:
			continue
		}

		if err := conn.WriteTyped(payload); err != nil {
			return
		}
	}
}

func (h *WSHandler) handleChangeQuestion(ctx context.Context, conn *ws.Conn, actor *session.Actor, data []byte) {
	if actor == nil {
		conn.WriteError(ws.ErrCodeSessionNotFound, "no attached session, send start_or_attach first")
		return
	}

	var req ws.ChangeQuestionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "malformed change_question")
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "invalid question_id format")
		return
	}

	if err := actor.ChangeQuestion(ctx, questionID); err != nil {
		writeSessionError(conn, err)
	}
	// The question_changed ack arrives via the event pump, so every
	// attached tab sees the same broadcast.
}

func (h *WSHandler) handleSaveDraft(ctx context.Context, conn *ws.Conn, actor *session.Actor, data []byte) {
	if actor == nil {
		conn.WriteError(ws.ErrCodeSessionNotFound, "no attached session, send start_or_attach first")
		return
	}

	var req ws.SaveDraftRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "malformed save_draft")
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "invalid question_id format")
		return
	}

	// The answer_saved ack also travels through the pump broadcast.
	if _, err := actor.SaveDraft(ctx, questionID, req.Text); err != nil {
		writeSessionError(conn, err)
	}
}

func (h *WSHandler) handleSubmitAnswer(ctx context.Context, conn *ws.Conn, actor *session.Actor, data []byte) {
	if actor == nil {
		conn.WriteError(ws.ErrCodeSessionNotFound, "no attached session, send start_or_attach first")
		return
	}

	var req ws.SubmitAnswerRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "malformed submit_answer")
		return
	}
	questionID, err := uuid.Parse(req.QuestionID)
	if err != nil {
		conn.WriteError(ws.ErrCodeInvalidPayload, "invalid question_id format")
		return
	}

	res, err := actor.SubmitFinal(ctx, questionID, req.Answer)
	if err != nil {
		writeSessionError(conn, err)
		return
	}

	conn.WriteTyped(ws.AnswerSubmittedResponse{
		Event:      ws.EventAnswerSubmitted,
		QuestionID: questionID.String(),
		Completed:  res.Completed,
	})
}

func (h *WSHandler) handleComplete(ctx context.Context, conn *ws.Conn, actor *session.Actor) {
	if actor == nil {
		conn.WriteError(ws.ErrCodeSessionNotFound, "no attached session, send start_or_attach first")
		return
	}

	// The marathon_completed terminal event arrives via the pump.
	if err := actor.Complete(ctx); err != nil {
		writeSessionError(conn, err)
	}
}

// writeSessionError maps core and orchestration errors to wire codes.
func writeSessionError(conn *ws.Conn, err error) {
	switch {
	case errors.Is(err, service.ErrMarathonNotFound):
		conn.WriteError(ws.ErrCodeMarathonNotFound, err.Error())
	case errors.Is(err, service.ErrMarathonNotOpen):
		conn.WriteError(ws.ErrCodeMarathonNotOpen, err.Error())
	case errors.Is(err, service.ErrNoQuestions):
		conn.WriteError(ws.ErrCodeNoQuestions, err.Error())
	case errors.Is(err, service.ErrAttemptFinished):
		conn.WriteError(ws.ErrCodeAttemptFinished, err.Error())
	case errors.Is(err, session.ErrNotFound):
		conn.WriteError(ws.ErrCodeSessionNotFound, err.Error())
	case errors.Is(err, session.ErrUnknownQuestion):
		conn.WriteError(ws.ErrCodeInvalidQuestion, err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		conn.WriteError(ws.ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, session.ErrCollaborator):
		conn.WriteError(ws.ErrCodeCollaboratorFailure, err.Error())
	default:
		conn.WriteError(ws.ErrCodeInternal, "internal error")
	}
}
