package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"spinwish/internal/config"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	// errorCodeProcessing is returned by the query endpoint while the payer
	// has not yet answered the prompt.
	errorCodeProcessing = "500.001.1001"
)

// DarajaClient talks to the M-Pesa STK push API.
type DarajaClient struct {
	cfg    config.MpesaConfig
	client *http.Client
	now    func() time.Time
}

// NewDarajaClient returns a client whose requests carry a cached bearer
// token. base is used for both token and API calls.
func NewDarajaClient(cfg config.MpesaConfig, base *http.Client) *DarajaClient {
	if base == nil {
		base = &http.Client{Timeout: 30 * time.Second}
	}
	ts := oauth2.ReuseTokenSource(nil, &darajaTokenSource{cfg: cfg, client: base})
	client := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   base.Transport,
		},
	}
	return &DarajaClient{cfg: cfg, client: client, now: time.Now}
}

// darajaTokenSource fetches client-credential tokens. The provider wants
// a GET with basic auth, which oauth2/clientcredentials does not send.
type darajaTokenSource struct {
	cfg    config.MpesaConfig
	client *http.Client
}

func (s *darajaTokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(s.cfg.BaseURL, "/")+tokenPath, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.cfg.ConsumerKey, s.cfg.ConsumerSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: "token", Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &GatewayError{
			Op:         "token",
			StatusCode: resp.StatusCode,
			Temporary:  temporaryStatus(resp.StatusCode),
			Err:        errors.New(strings.TrimSpace(string(body))),
		}
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &GatewayError{Op: "token", Err: err}
	}

	seconds, err := strconv.Atoi(body.ExpiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3599
	}
	return &oauth2.Token{
		AccessToken: body.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(time.Duration(seconds) * time.Second),
	}, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	MerchantRequestID   string      `json:"MerchantRequestID"`
	CheckoutRequestID   string      `json:"CheckoutRequestID"`
	ResultCode          json.Number `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`
}

type apiError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *DarajaClient) credentials() (password, timestamp string) {
	timestamp = c.now().In(nairobi).Format(transactionDateLayout)
	password = base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.Passkey + timestamp))
	return password, timestamp
}

func (c *DarajaClient) InitiatePush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	password, timestamp := c.credentials()
	payload := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.Ceil().IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  SanitizeReference(req.Reference),
		TransactionDesc:   req.Description,
	}
	if payload.TransactionDesc == "" {
		payload.TransactionDesc = "Payment"
	}

	var out stkPushResponse
	if err := c.post(ctx, "push", pushPath, payload, &out); err != nil {
		return nil, err
	}
	if out.ResponseCode != "0" {
		return nil, &GatewayError{Op: "push", Err: fmt.Errorf("response code %s: %s", out.ResponseCode, out.ResponseDescription)}
	}

	return &PushResponse{
		CorrelationID:     out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		Description:       out.CustomerMessage,
	}, nil
}

func (c *DarajaClient) QueryStatus(ctx context.Context, correlationID string) (*StatusResult, error) {
	password, timestamp := c.credentials()
	payload := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: correlationID,
	}

	var out stkQueryResponse
	err := c.post(ctx, "query", queryPath, payload, &out)
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		var apiErr *apiError
		if errors.As(gerr.Err, &apiErr) && apiErr.ErrorCode == errorCodeProcessing {
			return &StatusResult{CorrelationID: correlationID, Pending: true, ResultDesc: apiErr.ErrorMessage}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	code, err := strconv.Atoi(out.ResultCode.String())
	if err != nil {
		return nil, &GatewayError{Op: "query", Err: fmt.Errorf("result code %q: %w", out.ResultCode, err)}
	}
	return &StatusResult{
		CorrelationID:     out.CheckoutRequestID,
		MerchantRequestID: out.MerchantRequestID,
		ResultCode:        code,
		ResultDesc:        out.ResultDesc,
	}, nil
}

func (e *apiError) Error() string {
	return e.ErrorCode + ": " + e.ErrorMessage
}

func (c *DarajaClient) post(ctx context.Context, op, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var gerr *GatewayError
		if errors.As(err, &gerr) {
			return gerr
		}
		return &GatewayError{Op: op, Temporary: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Op: op, Temporary: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.ErrorCode != "" {
			return &GatewayError{Op: op, StatusCode: resp.StatusCode, Temporary: temporaryStatus(resp.StatusCode), Err: &apiErr}
		}
		return &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Temporary:  temporaryStatus(resp.StatusCode),
			Err:        errors.New(strings.TrimSpace(string(data))),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func temporaryStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
