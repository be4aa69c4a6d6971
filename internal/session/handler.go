package session

import (
	"context"
	"errors"
	"net/http"

	"spinwish/internal/api"
	"spinwish/internal/auth"
	"spinwish/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// @Summary      Create a session
// @Description  Performer-only: opens a new session in PREPARING
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body session.CreateSessionRequest true "Session payload"
// @Success      201 {object} session.Session
// @Failure      400 {object} api.ErrorResponse
// @Router       /sessions [post]
func (h *Handler) CreateSession(c *gin.Context) {
	performerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, api.ErrorResponse{Error: "User not authenticated"})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindError(c, err)
		return
	}

	s, err := h.manager.Create(c.Request.Context(), performerID, auth.GetUserName(c), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      200 {object} session.Session
// @Failure      404 {object} api.ErrorResponse
// @Router       /sessions/{id} [get]
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.manager.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      List my sessions
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} session.Session
// @Router       /me/sessions [get]
func (h *Handler) ListMySessions(c *gin.Context) {
	performerID, _ := auth.GetUserID(c)
	sessions, err := h.manager.ListByPerformer(c.Request.Context(), performerID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if sessions == nil {
		sessions = []Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) StartSession(c *gin.Context)  { h.lifecycle(c, h.manager.Start) }
func (h *Handler) PauseSession(c *gin.Context)  { h.lifecycle(c, h.manager.Pause) }
func (h *Handler) ResumeSession(c *gin.Context) { h.lifecycle(c, h.manager.Resume) }
func (h *Handler) EndSession(c *gin.Context)    { h.lifecycle(c, h.manager.End) }

type lifecycleOp func(ctx context.Context, performerID, id string) (*Session, error)

func (h *Handler) lifecycle(c *gin.Context, op lifecycleOp) {
	performerID, _ := auth.GetUserID(c)
	s, err := op(c.Request.Context(), performerID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Toggle request intake
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Param        request body session.SetAcceptingRequest true "Toggle"
// @Success      200 {object} session.Session
// @Router       /sessions/{id}/accepting [put]
func (h *Handler) SetAccepting(c *gin.Context) {
	var req SetAcceptingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindError(c, err)
		return
	}

	performerID, _ := auth.GetUserID(c)
	s, err := h.manager.SetAcceptingRequests(c.Request.Context(), performerID, c.Param("id"), *req.Accepting)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary      Session analytics
// @Tags         sessions
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      200 {object} session.Analytics
// @Router       /sessions/{id}/analytics [get]
func (h *Handler) GetAnalytics(c *gin.Context) {
	ctx := c.Request.Context()
	performerID, _ := auth.GetUserID(c)
	if _, err := h.manager.owned(ctx, performerID, c.Param("id")); err != nil {
		RespondError(c, err)
		return
	}

	a, err := h.manager.Analytics(ctx, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// RespondError maps session errors onto HTTP statuses.
func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotOwner):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrInvalidMinimum):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrSessionNotLive),
		errors.Is(err, ErrNotAcceptingRequests),
		errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		logger.Error("session operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "Internal server error"})
	}
}
