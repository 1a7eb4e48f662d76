package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

const paymentColumns = `id, user_id, kind, target_id, amount, transaction_id, status, gateway, created_at, updated_at, completed_at`

type paymentRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	Kind          string    `db:"kind"`
	TargetID      string    `db:"target_id"`
	Amount        float64   `db:"amount"`
	TransactionID string    `db:"transaction_id"`
	Status        string    `db:"status"`
	Gateway       string    `db:"gateway"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	CompletedAt   null.Time `db:"completed_at"`
}

func (row paymentRow) record() payment.Record {
	return payment.Record{
		ID:            row.ID,
		UserID:        row.UserID,
		Kind:          payment.Kind(row.Kind),
		TargetID:      row.TargetID,
		Amount:        row.Amount,
		TransactionID: row.TransactionID,
		Status:        payment.Status(row.Status),
		Gateway:       row.Gateway,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
		CompletedAt:   utcPtr(row.CompletedAt),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, rec payment.Record) (payment.Record, error) {
	rec.ID = uuid.NewString()
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO payments (`+paymentColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.UserID, rec.Kind, rec.TargetID, rec.Amount, rec.TransactionID, rec.Status, rec.Gateway,
		rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(), null.TimeFromPtr(rec.CompletedAt),
	)
	if err != nil {
		return payment.Record{}, trapUniqueErr(err, "inserting payment")
	}
	return rec, nil
}

func (repo *paymentRepository) GetPaymentByTransactionID(ctx context.Context, txnID string) (payment.Record, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, txnID)
	if err != nil {
		return payment.Record{}, trapNoRowsErr(err, "payment", txnID, "selecting payment")
	}
	return row.record(), nil
}

func (repo *paymentRepository) TransitionPayment(ctx context.Context, txnID string, to payment.Status, at time.Time) (payment.Record, bool, error) {
	var row paymentRow
	err := repo.db.GetContext(ctx, &row,
		`UPDATE payments SET status = $1, updated_at = $2, completed_at = $2
		WHERE transaction_id = $3 AND status = $4
		RETURNING `+paymentColumns,
		to, at.UTC(), txnID, payment.StatusPending,
	)
	if err == nil {
		return row.record(), true, nil
	}
	if err != sql.ErrNoRows {
		return payment.Record{}, false, errors.Wrap(err, "updating payment status")
	}

	// lost the race, or the record is missing
	rec, err := repo.GetPaymentByTransactionID(ctx, txnID)
	if err != nil {
		return payment.Record{}, false, err
	}
	return rec, false, nil
}

func (repo *paymentRepository) HasSuccessfulPayment(ctx context.Context, userID string, kind payment.Kind, targetID string) (bool, error) {
	var found bool
	err := repo.db.GetContext(ctx, &found,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE user_id = $1 AND kind = $2 AND target_id = $3 AND status = $4)`,
		userID, kind, targetID, payment.StatusSuccess,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking successful payment")
	}
	return found, nil
}

func (repo *paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter) ([]payment.Record, error) {
	w := &where{}
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.Kind != "" {
		w.add("kind = ?", filter.Kind)
	}
	if filter.TargetID != "" {
		w.add("target_id = ?", filter.TargetID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	q := `SELECT ` + paymentColumns + ` FROM payments` + w.String() +
		orderBy(filter.Ordering, core.DBOrdering{Field: "created_at"}, "transaction_id ASC") +
		limitOffset(filter.Page)
	return repo.selectRecords(ctx, repo.db.Rebind(q), w.args...)
}

func (repo *paymentRepository) QueryStalePayments(ctx context.Context, before time.Time, limit int) ([]payment.Record, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC` +
		limitOffset(core.Page{Limit: limit})
	return repo.selectRecords(ctx, q, payment.StatusPending, before.UTC())
}

func (repo *paymentRepository) selectRecords(ctx context.Context, q string, args ...interface{}) ([]payment.Record, error) {
	var rows []paymentRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	recs := make([]payment.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}
