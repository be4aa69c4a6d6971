package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spinwish/internal/config"
)

func newDarajaServer(t *testing.T, tokenCalls *int32, query http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" || r.Method != http.MethodGet {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok", "expires_in": "3599"})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req stkPushRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "174379", req.BusinessShortCode)
		assert.Equal(t, "CustomerPayBillOnline", req.TransactionType)
		assert.Equal(t, int64(100), req.Amount)
		assert.Equal(t, "254712345678", req.PhoneNumber)
		assert.Equal(t, "SpinWish", req.AccountReference)
		want := base64.StdEncoding.EncodeToString([]byte("174379" + "pass" + req.Timestamp))
		assert.Equal(t, want, req.Password)

		json.NewEncoder(w).Encode(stkPushResponse{
			MerchantRequestID: "29115-34620561-1",
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		})
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", query)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testMpesaConfig(baseURL string) config.MpesaConfig {
	return config.MpesaConfig{
		BaseURL:        baseURL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "pass",
		CallbackURL:    "https://example.com/payments/mpesa/callback",
	}
}

func TestDaraja_InitiatePushCachesToken(t *testing.T) {
	var tokenCalls int32
	srv := newDarajaServer(t, &tokenCalls, nil)
	client := NewDarajaClient(testMpesaConfig(srv.URL), &http.Client{Timeout: 5 * time.Second})

	for i := 0; i < 2; i++ {
		resp, err := client.InitiatePush(context.Background(), PushRequest{
			Phone:  "254712345678",
			Amount: decimal.NewFromInt(100),
		})
		require.NoError(t, err)
		assert.Equal(t, "ws_CO_191220191020363925", resp.CorrelationID)
		assert.Equal(t, "29115-34620561-1", resp.MerchantRequestID)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestDaraja_QueryStatus(t *testing.T) {
	var tokenCalls int32
	srv := newDarajaServer(t, &tokenCalls, func(w http.ResponseWriter, r *http.Request) {
		var req stkQueryRequest
		json.NewDecoder(r.Body).Decode(&req)
		switch req.CheckoutRequestID {
		case "done":
			w.Write([]byte(`{"ResponseCode":"0","MerchantRequestID":"m","CheckoutRequestID":"done","ResultCode":"1032","ResultDesc":"Request cancelled by user"}`))
		case "pending":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"requestId":"r","errorCode":"500.001.1001","errorMessage":"The transaction is being processed"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`upstream down`))
		}
	})
	client := NewDarajaClient(testMpesaConfig(srv.URL), nil)

	res, err := client.QueryStatus(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelled, res.ResultCode)
	assert.False(t, res.Pending)

	res, err = client.QueryStatus(context.Background(), "pending")
	require.NoError(t, err)
	assert.True(t, res.Pending)

	_, err = client.QueryStatus(context.Background(), "other")
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
}

func TestDaraja_BadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := newDarajaServer(t, &tokenCalls, nil)
	cfg := testMpesaConfig(srv.URL)
	cfg.ConsumerSecret = "wrong"
	client := NewDarajaClient(cfg, nil)

	_, err := client.InitiatePush(context.Background(), PushRequest{Phone: "254712345678", Amount: decimal.NewFromInt(100)})
	require.Error(t, err)
	assert.False(t, IsTemporary(err))
}
