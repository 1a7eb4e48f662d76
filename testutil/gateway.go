package testutil

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/payment"
)

// Gateway is a fake payment.Gateway. Callback bodies are the JSON of FakeCallback and
// signatures must equal "valid".
type Gateway struct {
	mu        sync.Mutex
	Orders    []payment.GatewayOrder
	Statuses  map[string]payment.OutcomeStatus // CheckStatus answers, by txn id
	Checks    int                              // CheckStatus calls
	OrderErr  error
	StatusErr error
}

type FakeCallback struct {
	TransactionID string                `json:"txn"`
	Status        payment.OutcomeStatus `json:"status"`
}

var _ payment.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{Statuses: make(map[string]payment.OutcomeStatus)}
}

func (g *Gateway) Name() string { return "fake" }

func (g *Gateway) CreateOrder(_ context.Context, order payment.GatewayOrder) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.OrderErr != nil {
		return "", g.OrderErr
	}
	g.Orders = append(g.Orders, order)
	return "https://pay.test/checkout/" + order.TransactionID, nil
}

func (g *Gateway) VerifyCallback(_ context.Context, payload payment.CallbackPayload) (payment.Outcome, error) {
	if payload.Signature != "valid" {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, "signature mismatch")
	}
	var cb FakeCallback
	if err := json.Unmarshal(payload.Body, &cb); err != nil {
		return payment.Outcome{}, errors.Wrap(payment.ErrInvalidCallback, err.Error())
	}
	return payment.Outcome{TransactionID: cb.TransactionID, Status: cb.Status, Code: string(cb.Status)}, nil
}

func (g *Gateway) CheckStatus(_ context.Context, txnID string) (payment.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Checks++
	if g.StatusErr != nil {
		return payment.Outcome{}, g.StatusErr
	}
	status, ok := g.Statuses[txnID]
	if !ok {
		status = payment.OutcomePending
	}
	return payment.Outcome{TransactionID: txnID, Status: status, Code: string(status)}, nil
}

// Callback builds a signed callback payload.
func Callback(txnID string, status payment.OutcomeStatus) payment.CallbackPayload {
	body, _ := json.Marshal(FakeCallback{TransactionID: txnID, Status: status})
	return payment.CallbackPayload{Body: body, Signature: "valid"}
}

// IDs generates sequential transaction ids.
type IDs struct {
	n int64
}

func (ids *IDs) NewTransactionID() string {
	return "TXN" + strconv.FormatInt(atomic.AddInt64(&ids.n, 1), 10)
}

// Scheduler records scheduled status checks.
type Scheduler struct {
	mu     sync.Mutex
	Checks map[string]time.Duration
}

func (s *Scheduler) ScheduleStatusCheck(_ context.Context, txnID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Checks == nil {
		s.Checks = make(map[string]time.Duration)
	}
	s.Checks[txnID] = delay
	return nil
}
