package request

import (
	"context"
	"errors"
	"net/http"

	"spinwish/internal/api"
	"spinwish/internal/auth"
	"spinwish/internal/payment"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

// @Summary      Request a song
// @Description  Creates a paid song request and sends a payment prompt to the phone
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Param        request body request.SubmitRequest true "Request payload"
// @Success      202 {object} request.SubmitResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /sessions/{id}/requests [post]
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindError(c, err)
		return
	}

	requesterID, _ := auth.GetUserID(c)
	resp, err := h.queue.Submit(c.Request.Context(), c.Param("id"), requesterID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *Handler) GetRequest(c *gin.Context) {
	req, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// @Summary      Session queue
// @Description  Pending requests in play order. status=ACCEPTED|REJECTED|PLAYED lists other states.
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Param        status query string false "Request status"
// @Success      200 {array} request.QueueEntry
// @Router       /sessions/{id}/queue [get]
func (h *Handler) ListQueue(c *gin.Context) {
	ctx := c.Request.Context()
	if raw := c.Query("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
			return
		}
		requests, err := h.queue.ListByStatus(ctx, c.Param("id"), status)
		if err != nil {
			RespondError(c, err)
			return
		}
		if requests == nil {
			requests = []Request{}
		}
		c.JSON(http.StatusOK, requests)
		return
	}

	entries, err := h.queue.ListQueue(ctx, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Accept(c *gin.Context)     { h.decide(c, h.queue.Accept) }
func (h *Handler) Reject(c *gin.Context)     { h.decide(c, h.queue.Reject) }
func (h *Handler) MarkPlayed(c *gin.Context) { h.decide(c, h.queue.MarkPlayed) }

func (h *Handler) decide(c *gin.Context, op func(ctx context.Context, performerID, id string) (*Request, error)) {
	performerID, _ := auth.GetUserID(c)
	req, err := op(c.Request.Context(), performerID, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func RespondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotPerformer):
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrInvalidStatusChange), errors.Is(err, ErrNotAwaitingPayment):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		payment.RespondError(c, err)
	}
}
