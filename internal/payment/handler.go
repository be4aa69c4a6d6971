package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"spinwish/internal/api"
	"spinwish/internal/auth"
	"spinwish/internal/logger"
	"spinwish/internal/session"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service    *Service
	reconciler *Reconciler
}

func NewHandler(service *Service, reconciler *Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

// Callback answers the provider with Accepted once the body parses, even
// when settlement fails, so it does not redeliver into our own errors.
//
// @Summary      M-Pesa STK callback
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200 {object} payment.CallbackAck
// @Failure      400 {object} payment.CallbackAck
// @Router       /payments/mpesa/callback [post]
func (h *Handler) Callback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		c.JSON(http.StatusBadRequest, CallbackAck{ResultCode: 1, ResultDesc: "Unreadable body"})
		return
	}

	res, err := ParseCallback(body)
	if err != nil {
		logger.Warn("rejected malformed callback", "error", err)
		c.JSON(http.StatusBadRequest, CallbackAck{ResultCode: 1, ResultDesc: "Rejected"})
		return
	}

	if err := h.reconciler.Reconcile(c.Request.Context(), res, "callback"); err != nil {
		logger.Error("callback reconcile failed", "correlation_id", res.CorrelationID, "error", err)
	}
	c.JSON(http.StatusOK, CallbackAck{ResultCode: 0, ResultDesc: "Accepted"})
}

// @Summary      Tip a performer
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Param        request body payment.TipRequest true "Tip payload"
// @Success      202 {object} payment.InitiateResponse
// @Failure      400 {object} api.ErrorResponse
// @Failure      502 {object} api.ErrorResponse
// @Router       /sessions/{id}/tips [post]
func (h *Handler) Tip(c *gin.Context) {
	var req TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.RespondBindError(c, err)
		return
	}

	payerID, _ := auth.GetUserID(c)
	ps, err := h.service.Tip(c.Request.Context(), c.Param("id"), payerID, req)
	if err != nil {
		RespondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, InitiateResponse{
		CorrelationID: ps.CorrelationID,
		Amount:        ps.Amount,
		Phone:         ps.Phone,
		Message:       "Payment prompt sent. Enter your PIN to complete the tip.",
	})
}

// ListSessionPayments returns captured payments of a session to its performer.
func (h *Handler) ListSessionPayments(c *gin.Context) {
	ctx := c.Request.Context()
	s, err := h.service.directory.Get(ctx, c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	if userID, _ := auth.GetUserID(c); s.PerformerID != userID {
		c.JSON(http.StatusForbidden, api.ErrorResponse{Error: session.ErrNotOwner.Error()})
		return
	}

	records, err := h.reconciler.ListRecords(ctx, s.ID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) ListAnomalies(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "limit must be between 1 and 500"})
		return
	}

	records, err := h.reconciler.ListAnomalies(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, err)
		return
	}
	if records == nil {
		records = []Record{}
	}
	c.JSON(http.StatusOK, records)
}

// QueryPayment forces a status query for one correlation id and applies
// the result when terminal.
func (h *Handler) QueryPayment(c *gin.Context) {
	ctx := c.Request.Context()
	correlationID := c.Param("correlationId")
	if _, err := h.service.Get(ctx, correlationID); err != nil {
		RespondError(c, err)
		return
	}

	res, err := h.reconciler.QueryAndReconcile(ctx, correlationID)
	if err != nil {
		RespondError(c, err)
		return
	}

	ps, err := h.service.Get(ctx, correlationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result_code": res.ResultCode,
		"result_desc": res.ResultDesc,
		"pending":     res.Pending,
		"session":     ps,
	})
}

// RespondError maps payment errors onto HTTP statuses and falls back to
// the session mapping.
func RespondError(c *gin.Context, err error) {
	var verr *ValidationError
	var gerr *GatewayError
	switch {
	case errors.As(err, &verr):
		api.RespondValidation(c, api.FieldError{Field: verr.Field, Message: verr.Message})
	case errors.Is(err, ErrPaymentSessionNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrTipsClosed):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrPaymentFailed), errors.As(err, &gerr):
		retryable := errors.Is(err, ErrPaymentFailed) || gerr.Temporary
		logger.Warn("gateway failure", "error", err, "retryable", retryable)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "Payment could not be initiated", Retryable: retryable})
	default:
		session.RespondError(c, err)
	}
}
