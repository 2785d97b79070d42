package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/progress"
	"github.com/scribeworks/marathon-backend/internal/response"
	"github.com/scribeworks/marathon-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// ReportHandler exposes report generation: a trigger endpoint, an SSE
// progress stream and the persisted report document.
type ReportHandler struct {
	reports *service.ReportService
	bus     *progress.Bus
	log     zerolog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reports *service.ReportService, bus *progress.Bus, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reports: reports,
		bus:     bus,
		log:     log.With().Str("component", "report_handler").Logger(),
	}
}

// TriggerReport godoc
// POST /api/v1/operator/marathons/:id/report
// Starts report generation or attaches to the run already in flight.
func (h *ReportHandler) TriggerReport(c *gin.Context) {
	marathonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	run, started := h.reports.Generate(marathonID)
	h.log.Info().
		Str("marathon_id", marathonID.String()).
		Bool("started", started).
		Msg("Report generation requested")

	response.Success(c, http.StatusAccepted, gin.H{
		"started": started,
		"run":     run.Snapshot(),
	})
}

// ReportProgressSSE godoc
// GET /api/v1/operator/marathons/:id/report/progress
// Streams progress events for the marathon's report run.
func (h *ReportHandler) ReportProgressSSE(c *gin.Context) {
	marathonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	topicKey := h.reports.TaskKey(marathonID)

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	// Subscribe before the snapshot so no stage boundary lands in the gap.
	sub := h.bus.Subscribe(topicKey)
	defer sub.Cancel()

	if run, ok := h.reports.Get(marathonID); ok {
		c.SSEvent("message", gin.H{"type": "snapshot", "run": run.Snapshot()})
	} else {
		c.SSEvent("message", gin.H{"type": "snapshot", "run": nil})
	}
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("topic_key", topicKey).Msg("Operator attached to report progress SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("topic_key", topicKey).Msg("Operator disconnected from report progress SSE")
			return

		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent("message", gin.H{"type": "progress", "data": ev})
			c.Writer.Flush()
			if ev.Terminal {
				return
			}

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// GetReport godoc
// GET /api/v1/operator/marathons/:id/report
func (h *ReportHandler) GetReport(c *gin.Context) {
	marathonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rep, err := h.reports.GetReport(c.Request.Context(), marathonID)
	if err != nil {
		if errors.Is(err, service.ErrReportNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrReportNotFound)
			return
		}
		h.log.Error().Err(err).Str("marathon_id", marathonID.String()).Msg("Get report failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, rep)
}
