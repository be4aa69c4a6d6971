package mockgateway

import (
	"context"
	"errors"
	"net/http"

	"spinwish/internal/api"
	"spinwish/internal/logger"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	harness *Harness
}

func NewHandler(harness *Harness) *Handler {
	return &Handler{harness: harness}
}

// @Summary      Mock gateway status
// @Tags         mock-payment
// @Produce      json
// @Success      200 {object} mockgateway.StatusInfo
// @Router       /mock-payment/status [get]
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.harness.Status())
}

// @Summary      List unprocessed mock payments
// @Tags         mock-payment
// @Produce      json
// @Success      200 {array} mockgateway.Payment
// @Router       /mock-payment/pending [get]
func (h *Handler) ListPending(c *gin.Context) {
	c.JSON(http.StatusOK, h.harness.ListPending())
}

// @Summary      Get a mock payment
// @Tags         mock-payment
// @Produce      json
// @Param        id path string true "Checkout request ID"
// @Success      200 {object} mockgateway.Payment
// @Failure      404 {object} api.ErrorResponse
// @Router       /mock-payment/session/{id} [get]
func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.harness.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Approve a mock payment
// @Tags         mock-payment
// @Produce      json
// @Param        id path string true "Checkout request ID"
// @Success      200 {object} api.ActionResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /mock-payment/approve/{id} [post]
func (h *Handler) Approve(c *gin.Context) {
	h.act(c, h.harness.Approve, "payment approved")
}

// @Summary      Reject a mock payment
// @Tags         mock-payment
// @Produce      json
// @Param        id path string true "Checkout request ID"
// @Success      200 {object} api.ActionResponse
// @Failure      404 {object} api.ErrorResponse
// @Failure      409 {object} api.ErrorResponse
// @Router       /mock-payment/reject/{id} [post]
func (h *Handler) Reject(c *gin.Context) {
	h.act(c, h.harness.Reject, "payment rejected")
}

// @Summary      Deliver a mock callback now
// @Tags         mock-payment
// @Produce      json
// @Param        id path string true "Checkout request ID"
// @Success      200 {object} api.ActionResponse
// @Failure      404 {object} api.ErrorResponse
// @Router       /mock-payment/simulate-callback/{id} [post]
func (h *Handler) SimulateCallback(c *gin.Context) {
	h.act(c, h.harness.SimulateCallback, "callback delivered")
}

type action func(ctx context.Context, id string) (*Payment, error)

func (h *Handler) act(c *gin.Context, fn action, message string) {
	id := c.Param("id")
	p, err := fn(c.Request.Context(), id)
	if err != nil && p == nil {
		respondError(c, err)
		return
	}
	if err != nil {
		// The decision stands; only delivery failed.
		logger.Warn("mock callback delivery failed", "correlation_id", id, "error", err)
		message += " (callback delivery failed)"
	}
	c.JSON(http.StatusOK, api.ActionResponse{Success: true, Message: message})
}

// @Summary      Clear all mock payments
// @Tags         mock-payment
// @Produce      json
// @Success      200 {object} api.ActionResponse
// @Router       /mock-payment/clear-all [delete]
func (h *Handler) ClearAll(c *gin.Context) {
	n := h.harness.ClearAll()
	logger.Info("mock payments cleared", "count", n)
	c.JSON(http.StatusOK, api.ActionResponse{Success: true, Message: "all mock payments cleared"})
}

// @Summary      List canned test scenarios
// @Tags         mock-payment
// @Produce      json
// @Success      200 {array} mockgateway.Scenario
// @Router       /mock-payment/test-scenarios [get]
func (h *Handler) ListScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, h.harness.ListScenarios())
}

// Register mounts the harness routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
	rg.GET("/pending", h.ListPending)
	rg.GET("/session/:id", h.GetPayment)
	rg.POST("/approve/:id", h.Approve)
	rg.POST("/reject/:id", h.Reject)
	rg.POST("/simulate-callback/:id", h.SimulateCallback)
	rg.DELETE("/clear-all", h.ClearAll)
	rg.GET("/test-scenarios", h.ListScenarios)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}
}
