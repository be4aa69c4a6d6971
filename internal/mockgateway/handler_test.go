package mockgateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spinwish/internal/api"
)

func setupMockRouter(h *Harness) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(h).Register(router.Group("/mock-payment"))
	return router
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHandler_StatusAndPending(t *testing.T) {
	h, _, _ := newTestHarness(testConfig())
	router := setupMockRouter(h)

	_, err := h.GeneratePrompt(context.Background(), SuccessPhone, hundred, "song")
	require.NoError(t, err)

	w := do(router, http.MethodGet, "/mock-payment/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.MockEnabled)
	assert.True(t, status.AutoProcess)
	assert.InDelta(t, 0.85, status.SuccessRate, 1e-9)
	assert.Equal(t, 1, status.PendingCount)

	w = do(router, http.MethodGet, "/mock-payment/pending")
	require.Equal(t, http.StatusOK, w.Code)
	var pending []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, SuccessPhone, pending[0]["phoneNumber"])
	assert.Equal(t, false, pending[0]["processed"])
}

func TestHandler_Actions(t *testing.T) {
	h, _, sink := newTestHarness(testConfig())
	router := setupMockRouter(h)

	p, err := h.GeneratePrompt(context.Background(), SuccessPhone, hundred, "song")
	require.NoError(t, err)

	w := do(router, http.MethodGet, "/mock-payment/session/"+p.CorrelationID)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/mock-payment/approve/"+p.CorrelationID)
	require.Equal(t, http.StatusOK, w.Code)
	var resp api.ActionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, sink.count())

	w = do(router, http.MethodPost, "/mock-payment/reject/"+p.CorrelationID)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/mock-payment/simulate-callback/"+p.CorrelationID)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, sink.count())
}

func TestHandler_UnknownIDs(t *testing.T) {
	h, _, _ := newTestHarness(testConfig())
	router := setupMockRouter(h)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/mock-payment/session/ws_CO_nope"},
		{http.MethodPost, "/mock-payment/approve/ws_CO_nope"},
		{http.MethodPost, "/mock-payment/reject/ws_CO_nope"},
		{http.MethodPost, "/mock-payment/simulate-callback/ws_CO_nope"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(router, tt.method, tt.path)
			assert.Equal(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestHandler_ClearAllAndScenarios(t *testing.T) {
	h, _, _ := newTestHarness(testConfig())
	router := setupMockRouter(h)

	_, err := h.GeneratePrompt(context.Background(), SuccessPhone, hundred, "song")
	require.NoError(t, err)

	w := do(router, http.MethodDelete, "/mock-payment/clear-all")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, h.ListPending())

	w = do(router, http.MethodGet, "/mock-payment/test-scenarios")
	require.Equal(t, http.StatusOK, w.Code)
	var scenarios []Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scenarios))
	phones := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		phones = append(phones, s.Phone)
	}
	assert.ElementsMatch(t, []string{SuccessPhone, FailPhone, TimeoutPhone, InvalidPhone}, phones)
}
