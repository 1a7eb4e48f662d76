package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

var errDuplicateTxn = errors.New("duplicate transaction id")

type paymentRepository struct {
	db *paymentTable
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.payment}
}

func (repo *paymentRepository) query() []payment.Record {
	recs := make([]payment.Record, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		recs = append(recs, *r)
	}
	return recs
}

func (repo *paymentRepository) CreatePayment(_ context.Context, rec payment.Record) (payment.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rec.TransactionID]; ok {
		return payment.Record{}, errors.Wrap(errDuplicateTxn, rec.TransactionID)
	}
	rec.ID = uuid.NewString()
	repo.db.table[rec.TransactionID] = &rec
	return rec, nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(_ context.Context, txnID string) (payment.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[txnID]; ok {
		return *rec, nil
	}
	return payment.Record{}, core.NewNotFoundError("payment", txnID)
}

func (repo *paymentRepository) TransitionPayment(_ context.Context, txnID string, to payment.Status, at time.Time) (payment.Record, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec, ok := repo.db.table[txnID]
	if !ok {
		return payment.Record{}, false, core.NewNotFoundError("payment", txnID)
	}
	if rec.Status != payment.StatusPending {
		return *rec, false, nil
	}
	rec.Status = to
	rec.UpdatedAt = at
	rec.CompletedAt = &at
	return *rec, true, nil
}

func (repo *paymentRepository) HasSuccessfulPayment(_ context.Context, userID string, kind payment.Kind, targetID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, rec := range repo.db.table {
		if rec.UserID == userID && rec.Kind == kind && rec.TargetID == targetID && rec.Status == payment.StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (repo *paymentRepository) QueryPayments(_ context.Context, filter payment.QueryFilter) ([]payment.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]payment.Record, 0)
	for _, rec := range repo.query() {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.TargetID != "" && rec.TargetID != filter.TargetID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		recs = append(recs, rec)
	}

	ordering := filter.Ordering
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ordering {
			c := comparePayments(recs[i], recs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return recs[i].TransactionID < recs[j].TransactionID
	})
	return paginate(recs, filter.Page), nil
}

func (repo *paymentRepository) QueryStalePayments(_ context.Context, before time.Time, limit int) ([]payment.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]payment.Record, 0)
	for _, rec := range repo.query() {
		if rec.Status == payment.StatusPending && rec.CreatedAt.Before(before) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	return paginate(recs, core.Page{Limit: limit}), nil
}

func comparePayments(a, b payment.Record, field string) int {
	switch field {
	case "amount":
		return compareFloats(a.Amount, b.Amount)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "completed_at":
		var ta, tb time.Time
		if a.CompletedAt != nil {
			ta = *a.CompletedAt
		}
		if b.CompletedAt != nil {
			tb = *b.CompletedAt
		}
		return compareTimes(ta, tb)
	default:
		return compareTimes(a.CreatedAt, b.CreatedAt)
	}
}
