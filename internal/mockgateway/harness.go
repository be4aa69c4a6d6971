package mockgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spinwish/internal/config"
	"spinwish/internal/logger"
	"spinwish/internal/metrics"
	"spinwish/internal/payment"
)

var (
	ErrNotFound = errors.New("mock payment not found")
	ErrConflict = errors.New("mock payment already processed")
)

// Canned scenario phones.
const (
	SuccessPhone = "254712345678"
	FailPhone    = "254745678901"
	TimeoutPhone = "254700000000"
	InvalidPhone = "12345"
)

type State string

const (
	StateInitiated State = "INITIATED"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Payment is one simulated prompt.
type Payment struct {
	CorrelationID     string          `json:"checkoutRequestId"`
	MerchantRequestID string          `json:"merchantRequestId"`
	Phone             string          `json:"phoneNumber"`
	Amount            decimal.Decimal `json:"amount"`
	Note              string          `json:"note"`
	State             State           `json:"state"`
	Processed         bool            `json:"processed"`
	WillSucceed       *bool           `json:"willSucceed"`
	ResultCode        *int            `json:"resultCode,omitempty"`
	ResultDesc        string          `json:"resultDesc,omitempty"`
	Receipt           string          `json:"receiptNumber,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
}

type Scenario struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	Phone           string `json:"phoneNumber"`
	ExpectedOutcome string `json:"expectedOutcome"`
}

type StatusInfo struct {
	MockEnabled  bool    `json:"mockEnabled"`
	AutoProcess  bool    `json:"autoProcess"`
	SuccessRate  float64 `json:"successRate"`
	PendingCount int     `json:"pendingCount"`
}

// CallbackSink receives webhook bodies exactly as the provider would post them.
type CallbackSink interface {
	HandleCallback(ctx context.Context, body []byte) error
}

// Harness simulates the push-payment provider in memory. It implements
// payment.Gateway.
type Harness struct {
	mu       sync.Mutex
	cfg      config.MockConfig
	payments map[string]*Payment
	timers   map[string]Timer
	sched    Scheduler
	sink     CallbackSink
	roll     func() float64
	delay    func() time.Duration
	now      func() time.Time
}

func New(cfg config.MockConfig, sched Scheduler) *Harness {
	if sched == nil {
		sched = RealScheduler()
	}
	h := &Harness{
		cfg:      cfg,
		payments: make(map[string]*Payment),
		timers:   make(map[string]Timer),
		sched:    sched,
		roll:     rand.Float64,
		now:      time.Now,
	}
	h.delay = h.randomDelay
	return h
}

// SetSink wires the callback destination. Until it is set, decisions are
// recorded but nothing is delivered.
func (h *Harness) SetSink(sink CallbackSink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sink = sink
}

func (h *Harness) randomDelay() time.Duration {
	spread := h.cfg.MaxDelay - h.cfg.MinDelay
	if spread <= 0 {
		return h.cfg.MinDelay
	}
	return h.cfg.MinDelay + time.Duration(rand.Int63n(int64(spread)+1))
}

// GeneratePrompt validates input, records a new INITIATED payment and,
// with auto-process on, schedules its outcome.
func (h *Harness) GeneratePrompt(ctx context.Context, phone string, amount decimal.Decimal, note string) (*Payment, error) {
	canonical, err := payment.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}
	if err := payment.ValidateAmount(&amount); err != nil {
		return nil, err
	}

	p := &Payment{
		CorrelationID:     "ws_CO_" + h.now().Format("02012006150405") + strings.ToUpper(uuid.NewString()[:8]),
		MerchantRequestID: uuid.NewString(),
		Phone:             canonical,
		Amount:            amount,
		Note:              note,
		State:             StateInitiated,
		CreatedAt:         h.now(),
	}

	h.mu.Lock()
	h.payments[p.CorrelationID] = p
	if h.cfg.AutoProcess && canonical != TimeoutPhone {
		id := p.CorrelationID
		h.timers[id] = h.sched.AfterFunc(h.delay(), func() {
			h.autoProcess(id)
		})
	}
	pending := h.pendingLocked()
	h.mu.Unlock()

	metrics.SetMockPending(pending)
	logger.FromContext(ctx).Info("mock payment prompt", "correlation_id", p.CorrelationID, "phone", canonical, "amount", amount.String())
	return p, nil
}

func (h *Harness) autoProcess(id string) {
	_, err := h.decide(context.Background(), id, h.outcomeLocked, false)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
		logger.Error("mock auto-process failed", "correlation_id", id, "error", err)
	}
}

// outcomeLocked picks the simulated result for p.
func (h *Harness) outcomeLocked(p *Payment) (int, string) {
	switch p.Phone {
	case SuccessPhone:
		return payment.ResultSuccess, "The service request is processed successfully."
	case FailPhone:
		return payment.ResultInsufficientFunds, "The balance is insufficient for the transaction."
	}
	if h.roll() < h.cfg.SuccessRate {
		return payment.ResultSuccess, "The service request is processed successfully."
	}
	return payment.ResultCancelled, "Request cancelled by user"
}

func (h *Harness) Approve(ctx context.Context, id string) (*Payment, error) {
	return h.decide(ctx, id, func(*Payment) (int, string) {
		return payment.ResultSuccess, "The service request is processed successfully."
	}, false)
}

func (h *Harness) Reject(ctx context.Context, id string) (*Payment, error) {
	return h.decide(ctx, id, func(*Payment) (int, string) {
		return payment.ResultCancelled, "Request cancelled by user"
	}, false)
}

// SimulateCallback decides an undecided payment now and delivers its
// callback. A processed payment has its callback delivered again.
func (h *Harness) SimulateCallback(ctx context.Context, id string) (*Payment, error) {
	return h.decide(ctx, id, h.outcomeLocked, true)
}

func (h *Harness) decide(ctx context.Context, id string, outcome func(*Payment) (int, string), redeliver bool) (*Payment, error) {
	h.mu.Lock()
	p, ok := h.payments[id]
	if !ok {
		h.mu.Unlock()
		return nil, ErrNotFound
	}
	if p.Processed && !redeliver {
		h.mu.Unlock()
		return nil, ErrConflict
	}

	if !p.Processed {
		code, desc := outcome(p)
		now := h.now()
		succeed := code == payment.ResultSuccess
		p.Processed = true
		p.WillSucceed = &succeed
		p.ResultCode = &code
		p.ResultDesc = desc
		p.ProcessedAt = &now
		p.State = StateFailed
		if succeed {
			p.State = StateCompleted
			p.Receipt = newReceipt()
		}
		if t, ok := h.timers[id]; ok {
			t.Stop()
			delete(h.timers, id)
		}
	}

	snapshot := *p
	sink := h.sink
	pending := h.pendingLocked()
	h.mu.Unlock()

	metrics.SetMockPending(pending)
	if err := h.deliver(ctx, sink, &snapshot); err != nil {
		return &snapshot, err
	}
	return &snapshot, nil
}

func (h *Harness) deliver(ctx context.Context, sink CallbackSink, p *Payment) error {
	if sink == nil {
		return nil
	}
	body, err := json.Marshal(payment.NewCallback(p.result()))
	if err != nil {
		return err
	}
	if err := sink.HandleCallback(ctx, body); err != nil {
		return fmt.Errorf("deliver mock callback: %w", err)
	}
	return nil
}

// result is the provider view of p. Undecided payments are pending.
func (p *Payment) result() *payment.StatusResult {
	res := &payment.StatusResult{
		CorrelationID:     p.CorrelationID,
		MerchantRequestID: p.MerchantRequestID,
	}
	if !p.Processed {
		res.Pending = true
		res.ResultDesc = "The transaction is being processed"
		return res
	}

	res.ResultCode = *p.ResultCode
	res.ResultDesc = p.ResultDesc
	if res.ResultCode == payment.ResultSuccess {
		amount := p.Amount
		res.Amount = &amount
		res.Receipt = p.Receipt
		res.Phone = p.Phone
		res.TransactionTime = p.ProcessedAt
	}
	return res
}

func newReceipt() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
}

func (h *Harness) Get(id string) (*Payment, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.payments[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *p
	return &snapshot, nil
}

// ListPending returns unprocessed payments, oldest first.
func (h *Harness) ListPending() []Payment {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := []Payment{}
	for _, p := range h.payments {
		if !p.Processed {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (h *Harness) pendingLocked() int {
	n := 0
	for _, p := range h.payments {
		if !p.Processed {
			n++
		}
	}
	return n
}

func (h *Harness) Remove(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.payments[id]; !ok {
		return ErrNotFound
	}
	if t, ok := h.timers[id]; ok {
		t.Stop()
		delete(h.timers, id)
	}
	delete(h.payments, id)
	metrics.SetMockPending(h.pendingLocked())
	return nil
}

// ClearAll drops every simulated payment and cancels scheduled outcomes.
func (h *Harness) ClearAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.payments)
	for _, t := range h.timers {
		t.Stop()
	}
	h.payments = make(map[string]*Payment)
	h.timers = make(map[string]Timer)
	metrics.SetMockPending(0)
	return n
}

func (h *Harness) ListScenarios() []Scenario {
	return []Scenario{
		{
			Name:            "success",
			Description:     "Payment always completes",
			Phone:           SuccessPhone,
			ExpectedOutcome: "COMPLETED (ResultCode 0)",
		},
		{
			Name:            "failure",
			Description:     "Payer has insufficient funds",
			Phone:           FailPhone,
			ExpectedOutcome: "FAILED (ResultCode 1)",
		},
		{
			Name:            "timeout",
			Description:     "Payer never answers; no callback is sent and the sweeper times the payment out",
			Phone:           TimeoutPhone,
			ExpectedOutcome: "FAILED (ResultCode 1037)",
		},
		{
			Name:            "invalid_phone",
			Description:     "Rejected by validation before any prompt is created",
			Phone:           InvalidPhone,
			ExpectedOutcome: "400 validation failed",
		},
	}
}

func (h *Harness) Status() StatusInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	return StatusInfo{
		MockEnabled:  h.cfg.Enabled,
		AutoProcess:  h.cfg.AutoProcess,
		SuccessRate:  h.cfg.SuccessRate,
		PendingCount: h.pendingLocked(),
	}
}

func (h *Harness) InitiatePush(ctx context.Context, req payment.PushRequest) (*payment.PushResponse, error) {
	p, err := h.GeneratePrompt(ctx, req.Phone, req.Amount, req.Description)
	if err != nil {
		return nil, err
	}
	return &payment.PushResponse{
		CorrelationID:     p.CorrelationID,
		MerchantRequestID: p.MerchantRequestID,
		Description:       "Success. Request accepted for processing",
	}, nil
}

// QueryStatus reports 1037 for ids the harness does not know.
func (h *Harness) QueryStatus(_ context.Context, correlationID string) (*payment.StatusResult, error) {
	p, err := h.Get(correlationID)
	if errors.Is(err, ErrNotFound) {
		return &payment.StatusResult{
			CorrelationID: correlationID,
			ResultCode:    payment.ResultTimeout,
			ResultDesc:    "DS timeout user cannot be reached",
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.result(), nil
}

var _ payment.Gateway = (*Harness)(nil)
