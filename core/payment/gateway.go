package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidCallback is the cause of every callback signature or decoding failure.
var ErrInvalidCallback = errors.New("invalid gateway callback")

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomePending OutcomeStatus = "pending"
)

type (
	// GatewayOrder is what the gateway needs to open a checkout. Amount is in minor units.
	GatewayOrder struct {
		TransactionID string
		UserID        string
		AmountMinor   int64
	}

	// CallbackPayload is the raw, untrusted callback delivered by the gateway.
	CallbackPayload struct {
		Body      []byte
		Signature string
	}

	// Outcome is a verified payment result reported by the gateway.
	Outcome struct {
		TransactionID string
		Status        OutcomeStatus
		Code          string
		GatewayRef    string
	}

	Gateway interface {
		Name() string
		// CreateOrder returns the URL the user must be redirected to.
		CreateOrder(ctx context.Context, order GatewayOrder) (payURL string, err error)
		// VerifyCallback checks the payload integrity before decoding it.
		// Failures wrap ErrInvalidCallback.
		VerifyCallback(ctx context.Context, payload CallbackPayload) (Outcome, error)
		CheckStatus(ctx context.Context, txnID string) (Outcome, error)
	}

	// StatusCheckScheduler schedules a later status poll of a pending transaction.
	StatusCheckScheduler interface {
		ScheduleStatusCheck(ctx context.Context, txnID string, delay time.Duration) error
	}

	// IDGenerator generates process-unique transaction ids.
	IDGenerator interface {
		NewTransactionID() string
	}
)

// RejectedError is returned when the gateway answered but refused the request.
type RejectedError struct {
	Code    string
	Message string
}

func (err RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: %s (%s)", err.Message, err.Code)
}

func IsRejected(err error) bool {
	_, ok := errors.Cause(err).(*RejectedError)
	return ok
}
