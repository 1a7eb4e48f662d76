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
	"github.com/pariksha/lms/core/entitlement"
)

const entitlementColumns = `id, seq, user_id, kind, course_id, test_id, granted_via, category_id, transaction_id,
	is_completed, result_id, is_repair, purchase_date, start_date, end_date, is_expired, completed_at, created_at`

type entitlementRow struct {
	ID            string      `db:"id"`
	Seq           int64       `db:"seq"`
	UserID        string      `db:"user_id"`
	Kind          string      `db:"kind"`
	CourseID      null.String `db:"course_id"`
	TestID        null.String `db:"test_id"`
	GrantedVia    string      `db:"granted_via"`
	CategoryID    null.String `db:"category_id"`
	TransactionID null.String `db:"transaction_id"`
	IsCompleted   bool        `db:"is_completed"`
	ResultID      null.String `db:"result_id"`
	IsRepair      bool        `db:"is_repair"`
	PurchaseDate  time.Time   `db:"purchase_date"`
	StartDate     null.Time   `db:"start_date"`
	EndDate       null.Time   `db:"end_date"`
	IsExpired     bool        `db:"is_expired"`
	CompletedAt   null.Time   `db:"completed_at"`
	CreatedAt     time.Time   `db:"created_at"`
}

func (row entitlementRow) entitlement() entitlement.Entitlement {
	return entitlement.Entitlement{
		ID:            row.ID,
		Seq:           row.Seq,
		UserID:        row.UserID,
		Kind:          entitlement.Kind(row.Kind),
		CourseID:      row.CourseID.String,
		TestID:        row.TestID.String,
		GrantedVia:    entitlement.Source(row.GrantedVia),
		CategoryID:    row.CategoryID.String,
		TransactionID: row.TransactionID.String,
		IsCompleted:   row.IsCompleted,
		ResultID:      row.ResultID.String,
		IsRepair:      row.IsRepair,
		PurchaseDate:  row.PurchaseDate.UTC(),
		StartDate:     utcPtr(row.StartDate),
		EndDate:       utcPtr(row.EndDate),
		IsExpired:     row.IsExpired,
		CompletedAt:   utcPtr(row.CompletedAt),
		CreatedAt:     row.CreatedAt.UTC(),
	}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

type entitlementRepository struct {
	db *sqlx.DB
}

var _ entitlement.Repository = (*entitlementRepository)(nil)

func NewEntitlementRepository(db *sqlx.DB) *entitlementRepository {
	return &entitlementRepository{db: db}
}

func (repo *entitlementRepository) CreateEntitlement(ctx context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error) {
	ent.ID = uuid.NewString()
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = time.Now().UTC()
	}

	err := repo.db.QueryRowxContext(ctx,
		`INSERT INTO entitlements (id, user_id, kind, course_id, test_id, granted_via, category_id, transaction_id,
			is_completed, result_id, is_repair, purchase_date, start_date, end_date, is_expired, completed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING seq`,
		ent.ID, ent.UserID, ent.Kind, nullString(ent.CourseID), nullString(ent.TestID), ent.GrantedVia,
		nullString(ent.CategoryID), nullString(ent.TransactionID), ent.IsCompleted, nullString(ent.ResultID),
		ent.IsRepair, ent.PurchaseDate.UTC(), null.TimeFromPtr(ent.StartDate), null.TimeFromPtr(ent.EndDate),
		ent.IsExpired, null.TimeFromPtr(ent.CompletedAt), ent.CreatedAt,
	).Scan(&ent.Seq)
	if err != nil {
		return entitlement.Entitlement{}, errors.Wrap(err, "inserting entitlement")
	}
	return ent, nil
}

func (repo *entitlementRepository) getOne(ctx context.Context, resource, id, q string, args ...interface{}) (entitlement.Entitlement, error) {
	var row entitlementRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		return entitlement.Entitlement{}, trapNoRowsErr(err, resource, id, "selecting entitlement")
	}
	return row.entitlement(), nil
}

func (repo *entitlementRepository) LatestCourseEntitlement(ctx context.Context, userID, courseID string) (entitlement.Entitlement, error) {
	return repo.getOne(ctx, "course entitlement", courseID,
		`SELECT `+entitlementColumns+` FROM entitlements
		WHERE user_id = $1 AND kind = $2 AND course_id = $3
		ORDER BY purchase_date DESC, seq DESC LIMIT 1`,
		userID, entitlement.KindCourse, courseID,
	)
}

func (repo *entitlementRepository) LatestOpenTestEntitlement(ctx context.Context, userID, testID string) (entitlement.Entitlement, error) {
	return repo.getOne(ctx, "open test entitlement", testID,
		`SELECT `+entitlementColumns+` FROM entitlements
		WHERE user_id = $1 AND kind = $2 AND test_id = $3 AND NOT is_completed
		ORDER BY purchase_date DESC, seq DESC LIMIT 1`,
		userID, entitlement.KindTest, testID,
	)
}

func (repo *entitlementRepository) CompleteEntitlement(ctx context.Context, id, resultID string, at time.Time) (entitlement.Entitlement, error) {
	var row entitlementRow
	err := repo.db.GetContext(ctx, &row,
		`UPDATE entitlements SET is_completed = true, result_id = $2, completed_at = $3
		WHERE id = $1 AND NOT is_completed
		RETURNING `+entitlementColumns,
		id, resultID, at.UTC(),
	)
	if err == nil {
		return row.entitlement(), nil
	}
	if err != sql.ErrNoRows {
		return entitlement.Entitlement{}, errors.Wrap(err, "completing entitlement")
	}

	current, err := repo.getOne(ctx, "entitlement", id, `SELECT `+entitlementColumns+` FROM entitlements WHERE id = $1`, id)
	if err != nil {
		return entitlement.Entitlement{}, err
	}
	return current, core.ErrConflict
}

func (repo *entitlementRepository) QueryUserEntitlements(ctx context.Context, userID string) ([]entitlement.Entitlement, error) {
	var rows []entitlementRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1 ORDER BY purchase_date DESC, seq DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting entitlements")
	}
	ents := make([]entitlement.Entitlement, 0, len(rows))
	for _, row := range rows {
		ents = append(ents, row.entitlement())
	}
	return ents, nil
}

func (repo *entitlementRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE entitlements SET is_expired = true WHERE kind = $1 AND NOT is_expired AND end_date < $2`,
		entitlement.KindCourse, now.UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "expiring entitlements")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "expiring entitlements")
	}
	return n, nil
}
