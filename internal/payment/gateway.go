package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Provider result codes.
const (
	ResultSuccess           = 0
	ResultInsufficientFunds = 1
	ResultCancelled         = 1032
	ResultTimeout           = 1037
	ResultWrongPIN          = 2001
)

// Gateway initiates push-payment prompts and answers status queries.
// A successful InitiatePush only means the prompt was dispatched.
type Gateway interface {
	InitiatePush(ctx context.Context, req PushRequest) (*PushResponse, error)
	QueryStatus(ctx context.Context, correlationID string) (*StatusResult, error)
}

type PushRequest struct {
	Phone       string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

type PushResponse struct {
	CorrelationID     string
	MerchantRequestID string
	Description       string
}

// StatusResult has the same shape as a callback result. Pending is set
// while the provider is still waiting on the payer.
type StatusResult struct {
	CorrelationID     string
	MerchantRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Amount            *decimal.Decimal
	Phone             string
	TransactionTime   *time.Time
	Pending           bool
}

func (r *StatusResult) Succeeded() bool {
	return !r.Pending && r.ResultCode == ResultSuccess
}

// GatewayError classifies a transport failure talking to the provider.
type GatewayError struct {
	Op         string
	StatusCode int
	Temporary  bool
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsTemporary reports whether err is a GatewayError worth retrying.
func IsTemporary(err error) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Temporary
}

// ResultOutcome maps a provider result code to the outcome label used in
// metrics and logs.
func ResultOutcome(code int) string {
	switch code {
	case ResultSuccess:
		return "completed"
	case ResultCancelled:
		return "cancelled"
	case ResultTimeout:
		return "timeout"
	case ResultInsufficientFunds:
		return "insufficient_funds"
	case ResultWrongPIN:
		return "wrong_pin"
	default:
		return "failed_" + strconv.Itoa(code)
	}
}
