package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/entitlement"
)

type entitlementRepository struct {
	db *entitlementTable
}

var _ entitlement.Repository = (*entitlementRepository)(nil)

func NewEntitlementRepository(db *DB) *entitlementRepository {
	return &entitlementRepository{db: db.entitlement}
}

// latest returns the matching entitlement with the latest PurchaseDate, newest insertion first.
func (repo *entitlementRepository) latest(match func(e *entitlement.Entitlement) bool) *entitlement.Entitlement {
	var found *entitlement.Entitlement
	for _, e := range repo.db.table {
		if !match(e) {
			continue
		}
		if found == nil || !e.PurchaseDate.Before(found.PurchaseDate) {
			found = e
		}
	}
	return found
}

func (repo *entitlementRepository) CreateEntitlement(_ context.Context, ent entitlement.Entitlement) (entitlement.Entitlement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.seq++
	ent.ID = uuid.NewString()
	ent.Seq = repo.db.seq
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = time.Now().UTC()
	}
	repo.db.table = append(repo.db.table, &ent)
	return ent, nil
}

func (repo *entitlementRepository) LatestCourseEntitlement(_ context.Context, userID, courseID string) (entitlement.Entitlement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	e := repo.latest(func(e *entitlement.Entitlement) bool {
		return e.UserID == userID && e.Kind == entitlement.KindCourse && e.CourseID == courseID
	})
	if e == nil {
		return entitlement.Entitlement{}, core.NewNotFoundError("course entitlement", courseID)
	}
	return *e, nil
}

func (repo *entitlementRepository) LatestOpenTestEntitlement(_ context.Context, userID, testID string) (entitlement.Entitlement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	e := repo.latest(func(e *entitlement.Entitlement) bool {
		return e.UserID == userID && e.Kind == entitlement.KindTest && e.TestID == testID && !e.IsCompleted
	})
	if e == nil {
		return entitlement.Entitlement{}, core.NewNotFoundError("open test entitlement", testID)
	}
	return *e, nil
}

func (repo *entitlementRepository) CompleteEntitlement(_ context.Context, id, resultID string, at time.Time) (entitlement.Entitlement, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, e := range repo.db.table {
		if e.ID != id {
			continue
		}
		if e.IsCompleted {
			return *e, core.ErrConflict
		}
		e.IsCompleted = true
		e.ResultID = resultID
		e.CompletedAt = &at
		return *e, nil
	}
	return entitlement.Entitlement{}, core.NewNotFoundError("entitlement", id)
}

func (repo *entitlementRepository) QueryUserEntitlements(_ context.Context, userID string) ([]entitlement.Entitlement, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	ents := make([]entitlement.Entitlement, 0)
	for _, e := range repo.db.table {
		if e.UserID == userID {
			ents = append(ents, *e)
		}
	}
	sort.SliceStable(ents, func(i, j int) bool {
		if !ents[i].PurchaseDate.Equal(ents[j].PurchaseDate) {
			return ents[i].PurchaseDate.After(ents[j].PurchaseDate)
		}
		return ents[i].Seq > ents[j].Seq
	})
	return ents, nil
}

func (repo *entitlementRepository) ExpireLapsed(_ context.Context, now time.Time) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int64
	for _, e := range repo.db.table {
		if !e.IsExpired && e.Lapsed(now) {
			e.IsExpired = true
			n++
		}
	}
	return n, nil
}
