package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/catalog"
)

type catalogRepository struct {
	db *catalogTable
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db.catalog}
}

func (repo *catalogRepository) GetCourse(_ context.Context, id string) (catalog.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return catalog.Course{}, core.NewNotFoundError("course", id)
}

func (repo *catalogRepository) GetTest(_ context.Context, id string) (catalog.MockTest, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if t, ok := repo.db.tests[id]; ok {
		return t, nil
	}
	return catalog.MockTest{}, core.NewNotFoundError("test", id)
}

func (repo *catalogRepository) GetCategory(_ context.Context, id string) (catalog.Category, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if c, ok := repo.db.categories[id]; ok {
		c.TestIDs = append([]string(nil), c.TestIDs...)
		return c, nil
	}
	return catalog.Category{}, core.NewNotFoundError("category", id)
}

func (repo *catalogRepository) ActiveQuestions(_ context.Context, testID string) ([]catalog.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	qs := make([]catalog.Question, 0, len(repo.db.questions[testID]))
	for _, q := range repo.db.questions[testID] {
		if q.IsActive {
			qs = append(qs, q)
		}
	}
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].Position < qs[j].Position })
	return qs, nil
}

// The catalog is read-only for the app; the Save* methods seed it.

func (repo *catalogRepository) SaveCourse(c catalog.Course) catalog.Course {
	repo.db.Lock()
	defer repo.db.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	repo.db.courses[c.ID] = c
	return c
}

func (repo *catalogRepository) SaveTest(t catalog.MockTest) catalog.MockTest {
	repo.db.Lock()
	defer repo.db.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	repo.db.tests[t.ID] = t
	return t
}

// SaveQuestions replaces the questions of a test.
func (repo *catalogRepository) SaveQuestions(testID string, qs ...catalog.Question) []catalog.Question {
	repo.db.Lock()
	defer repo.db.Unlock()
	saved := make([]catalog.Question, 0, len(qs))
	for _, q := range qs {
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.TestID = testID
		saved = append(saved, q)
	}
	repo.db.questions[testID] = saved
	return saved
}

func (repo *catalogRepository) SaveCategory(c catalog.Category) catalog.Category {
	repo.db.Lock()
	defer repo.db.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.TestIDs = append([]string(nil), c.TestIDs...)
	repo.db.categories[c.ID] = c
	return c
}
