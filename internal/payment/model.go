package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Purpose string

const (
	PurposeRequest Purpose = "REQUEST"
	PurposeTip     Purpose = "TIP"
)

// Session correlates an outstanding prompt with what it pays for. It is
// marked processed exactly once.
type Session struct {
	CorrelationID     string          `db:"correlation_id" json:"correlation_id"`
	MerchantRequestID string          `db:"merchant_request_id" json:"merchant_request_id"`
	Phone             string          `db:"phone" json:"phone"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Purpose           Purpose         `db:"purpose" json:"purpose"`
	RequestID         *string         `db:"request_id" json:"request_id,omitempty"`
	SessionID         string          `db:"session_id" json:"session_id"`
	PerformerID       string          `db:"performer_id" json:"performer_id"`
	PayerID           string          `db:"payer_id" json:"payer_id"`
	Processed         bool            `db:"processed" json:"processed"`
	Succeeded         bool            `db:"succeeded" json:"succeeded"`
	ResultCode        *int            `db:"result_code" json:"result_code,omitempty"`
	ResultDesc        *string         `db:"result_desc" json:"result_desc,omitempty"`
	ReceiptNumber     string          `db:"receipt_number" json:"receipt_number,omitempty"`
	Recorded          bool            `db:"recorded" json:"recorded"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	ExpiresAt         time.Time       `db:"expires_at" json:"expires_at"`
	ProcessedAt       *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// Record is an append-only receipt for captured money.
type Record struct {
	ID              string          `db:"id" json:"id"`
	CorrelationID   string          `db:"correlation_id" json:"correlation_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	PayerPhone      string          `db:"payer_phone" json:"payer_phone"`
	ReceiptNumber   string          `db:"receipt_number" json:"receipt_number"`
	PaymentType     Purpose         `db:"payment_type" json:"payment_type"`
	RequestID       *string         `db:"request_id" json:"request_id,omitempty"`
	SessionID       string          `db:"session_id" json:"session_id"`
	PerformerID     string          `db:"performer_id" json:"performer_id"`
	PerformerName   string          `db:"performer_name" json:"performer_name"`
	Anomaly         bool            `db:"anomaly" json:"anomaly"`
	AnomalyReason   *string         `db:"anomaly_reason" json:"anomaly_reason,omitempty"`
	TransactionTime time.Time       `db:"transaction_time" json:"transaction_time"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type TipRequest struct {
	Phone  string           `json:"phone" binding:"required"`
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type InitiateResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Amount        decimal.Decimal `json:"amount"`
	Phone         string          `json:"phone"`
	Message       string          `json:"message"`
}
