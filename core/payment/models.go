package payment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pariksha/lms/core"
)

type Kind string

const (
	KindCourse   Kind = "course"
	KindTest     Kind = "test"
	KindCategory Kind = "category"
)

var Kinds = []Kind{KindCourse, KindTest, KindCategory}

func (k Kind) Valid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type (
	// Record is a row of the payment ledger. Amount is in major currency units.
	Record struct {
		ID            string     `json:"id"`
		UserID        string     `json:"user_id"`
		Kind          Kind       `json:"kind"`
		TargetID      string     `json:"target_id"`
		Amount        float64    `json:"amount"`
		TransactionID string     `json:"transaction_id"`
		Status        Status     `json:"status"`
		Gateway       string     `json:"gateway"`
		CreatedAt     time.Time  `json:"created_at"`
		UpdatedAt     time.Time  `json:"updated_at"`
		CompletedAt   *time.Time `json:"completed_at,omitempty"`
	}

	// StatusView is what an unauthenticated checkout redirect may learn about a payment.
	StatusView struct {
		TransactionID string `json:"transaction_id"`
		Status        Status `json:"status"`
	}

	NewOrder struct {
		UserID   string `json:"user_id" validate:"required,notblank"`
		Kind     Kind   `json:"kind" validate:"required,paymentkind"`
		TargetID string `json:"target_id" validate:"required,notblank"`
	}

	Order struct {
		TransactionID string  `json:"transaction_id"`
		PayURL        string  `json:"pay_url"`
		Amount        float64 `json:"amount"`
	}

	QueryFilter struct {
		UserID   string
		Kind     Kind
		TargetID string
		Status   Status
		Ordering []core.DBOrdering
		Page     core.Page
	}

	Repository interface {
		// CreatePayment stores a new record; ID is assigned by the store.
		CreatePayment(ctx context.Context, rec Record) (Record, error)
		GetPaymentByTransactionID(ctx context.Context, txnID string) (Record, error)

		// TransitionPayment moves a pending record to `to`, only if it is still pending.
		// won is false when another writer already moved it; the current record is returned then.
		TransitionPayment(ctx context.Context, txnID string, to Status, at time.Time) (rec Record, won bool, err error)

		HasSuccessfulPayment(ctx context.Context, userID string, kind Kind, targetID string) (bool, error)

		// QueryPayments applies AND on the set QueryFilter fields.
		// Orderings must already be mapped to storage columns.
		QueryPayments(ctx context.Context, filter QueryFilter) ([]Record, error)

		// QueryStalePayments returns pending records created before `before`, oldest first.
		QueryStalePayments(ctx context.Context, before time.Time, limit int) ([]Record, error)
	}
)

// OrderingFields maps the public ordering names to storage columns.
var OrderingFields = map[string]string{
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"amount":       "amount",
	"completed_at": "completed_at",
}

func (no NewOrder) Validate(validate *validator.Validate) error {
	return validate.Struct(no)
}

func (r Record) View() StatusView {
	return StatusView{TransactionID: r.TransactionID, Status: r.Status}
}
