package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/scribeworks/marathon-backend/internal/model"
	"github.com/scribeworks/marathon-backend/internal/repository"
	"github.com/scribeworks/marathon-backend/internal/response"
	"github.com/scribeworks/marathon-backend/internal/service"
	"github.com/scribeworks/marathon-backend/internal/validator"
)

// AuthHandler handles participant and operator login.
type AuthHandler struct {
	auth     *service.AuthService
	accounts *repository.ParticipantRepository
	log      zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, accounts *repository.ParticipantRepository, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		accounts: accounts,
		log:      log.With().Str("component", "auth_handler").Logger(),
	}
}

// ParticipantLogin godoc
// POST /api/v1/auth/participant/login
func (h *AuthHandler) ParticipantLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	p, err := h.accounts.GetParticipantByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.log.Error().Err(err).Msg("Participant lookup failed")
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.auth.CheckPassword(p.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.auth.GenerateParticipantToken(c.Request.Context(), p.ID)
	if err != nil {
		h.log.Error().Err(err).Int("participant_id", p.ID).Msg("Token generation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":       token,
		"participant": p,
	})
}

// OperatorLogin godoc
// POST /api/v1/auth/operator/login
func (h *AuthHandler) OperatorLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	o, err := h.accounts.GetOperatorByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.log.Error().Err(err).Msg("Operator lookup failed")
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	if err := h.auth.CheckPassword(o.PasswordHash, req.Password); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := h.auth.GenerateOperatorToken(o.ID)
	if err != nil {
		h.log.Error().Err(err).Int("operator_id", o.ID).Msg("Token generation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":    token,
		"operator": o,
	})
}
