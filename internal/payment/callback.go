package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const transactionDateLayout = "20060102150405"

// Provider timestamps are East Africa Time.
var nairobi = time.FixedZone("EAT", 3*60*60)

// Callback is the provider's STK push webhook body.
type Callback struct {
	Body CallbackBody `json:"Body"`
}

type CallbackBody struct {
	StkCallback StkCallback `json:"stkCallback"`
}

type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values arrive as numbers or strings depending on the field.
type CallbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// ParseCallback decodes a webhook body into a StatusResult.
func ParseCallback(data []byte) (*StatusResult, error) {
	var cb Callback
	if err := json.Unmarshal(data, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	return cb.Result()
}

func (cb *Callback) Result() (*StatusResult, error) {
	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrInvalidCallback)
	}

	res := &StatusResult{
		CorrelationID:     stk.CheckoutRequestID,
		MerchantRequestID: stk.MerchantRequestID,
		ResultCode:        stk.ResultCode,
		ResultDesc:        stk.ResultDesc,
	}
	if stk.CallbackMetadata == nil {
		return res, nil
	}

	for _, item := range stk.CallbackMetadata.Item {
		raw := itemString(item.Value)
		switch item.Name {
		case "MpesaReceiptNumber":
			res.Receipt = raw
		case "Amount":
			if amount, err := decimal.NewFromString(raw); err == nil {
				res.Amount = &amount
			}
		case "TransactionDate":
			if t, err := time.ParseInLocation(transactionDateLayout, raw, nairobi); err == nil {
				res.TransactionTime = &t
			}
		case "PhoneNumber":
			res.Phone = raw
		}
	}
	return res, nil
}

// NewCallback builds the webhook body for res. Used by the mock gateway
// and by status queries that replay through the callback path.
func NewCallback(res *StatusResult) *Callback {
	stk := StkCallback{
		MerchantRequestID: res.MerchantRequestID,
		CheckoutRequestID: res.CorrelationID,
		ResultCode:        res.ResultCode,
		ResultDesc:        res.ResultDesc,
	}

	if res.ResultCode == ResultSuccess {
		var items []CallbackItem
		if res.Amount != nil {
			items = append(items, CallbackItem{Name: "Amount", Value: res.Amount.InexactFloat64()})
		}
		if res.Receipt != "" {
			items = append(items, CallbackItem{Name: "MpesaReceiptNumber", Value: res.Receipt})
		}
		if res.TransactionTime != nil {
			date, _ := strconv.ParseInt(res.TransactionTime.In(nairobi).Format(transactionDateLayout), 10, 64)
			items = append(items, CallbackItem{Name: "TransactionDate", Value: date})
		}
		if res.Phone != "" {
			phone, _ := strconv.ParseInt(res.Phone, 10, 64)
			items = append(items, CallbackItem{Name: "PhoneNumber", Value: phone})
		}
		stk.CallbackMetadata = &CallbackMetadata{Item: items}
	}

	return &Callback{Body: CallbackBody{StkCallback: stk}}
}

func itemString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// CallbackAck is the body the provider expects back from the webhook.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
