package entitlement

import (
	"context"
	"time"
)

type Kind string

const (
	KindCourse Kind = "course"
	KindTest   Kind = "test"
)

// Source tells how an entitlement was granted.
type Source string

const (
	SourceIndividual Source = "individual"
	SourceCategory   Source = "category"
	SourceBundle     Source = "bundle"
)

type (
	Entitlement struct {
		ID            string     `json:"id"`
		Seq           int64      `json:"-"`
		UserID        string     `json:"user_id"`
		Kind          Kind       `json:"kind"`
		CourseID      string     `json:"course_id,omitempty"`
		TestID        string     `json:"test_id,omitempty"`
		GrantedVia    Source     `json:"granted_via"`
		CategoryID    string     `json:"category_id,omitempty"`
		TransactionID string     `json:"transaction_id,omitempty"`
		IsCompleted   bool       `json:"is_completed"`
		ResultID      string     `json:"result_id,omitempty"`
		IsRepair      bool       `json:"is_repair,omitempty"`
		PurchaseDate  time.Time  `json:"purchase_date"`
		StartDate     *time.Time `json:"start_date,omitempty"`
		EndDate       *time.Time `json:"end_date,omitempty"`
		IsExpired     bool       `json:"is_expired,omitempty"`
		CompletedAt   *time.Time `json:"completed_at,omitempty"`
		CreatedAt     time.Time  `json:"created_at"`
	}

	Repository interface {
		// CreateEntitlement stores a new grant; ID, Seq and CreatedAt are assigned by the store.
		CreateEntitlement(ctx context.Context, ent Entitlement) (Entitlement, error)

		// LatestCourseEntitlement returns the most recent course grant of a user.
		LatestCourseEntitlement(ctx context.Context, userID, courseID string) (Entitlement, error)

		// LatestOpenTestEntitlement returns the uncompleted test grant with the latest PurchaseDate;
		// ties are broken by insertion order, newest first.
		LatestOpenTestEntitlement(ctx context.Context, userID, testID string) (Entitlement, error)

		// CompleteEntitlement marks an uncompleted entitlement completed and attaches the result.
		// It returns core.ErrConflict when the entitlement was already completed.
		CompleteEntitlement(ctx context.Context, id, resultID string, at time.Time) (Entitlement, error)

		// QueryUserEntitlements returns every grant of a user, newest purchase first.
		QueryUserEntitlements(ctx context.Context, userID string) ([]Entitlement, error)

		// ExpireLapsed flags course entitlements whose EndDate is before `now`.
		ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
	}
)

// NewCourseEntitlement builds a course grant whose window starts at `at` and lasts `months`.
// The end date is fixed here and never recomputed.
func NewCourseEntitlement(userID, courseID, txnID string, months int, at time.Time) Entitlement {
	start := at.UTC()
	end := start.AddDate(0, months, 0)
	return Entitlement{
		UserID:        userID,
		Kind:          KindCourse,
		CourseID:      courseID,
		GrantedVia:    SourceIndividual,
		TransactionID: txnID,
		PurchaseDate:  start,
		StartDate:     &start,
		EndDate:       &end,
	}
}

func NewTestEntitlement(userID, testID, txnID string, via Source, categoryID string, at time.Time) Entitlement {
	return Entitlement{
		UserID:        userID,
		Kind:          KindTest,
		TestID:        testID,
		GrantedVia:    via,
		CategoryID:    categoryID,
		TransactionID: txnID,
		PurchaseDate:  at.UTC(),
	}
}

// Lapsed reports whether a course window ended before `now`.
func (e Entitlement) Lapsed(now time.Time) bool {
	return e.Kind == KindCourse && e.EndDate != nil && e.EndDate.Before(now)
}

// ViewCacheKey is the cache key of a user's entitlements view.
func ViewCacheKey(userID string) string {
	return "entitlements:" + userID
}
