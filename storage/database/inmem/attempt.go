package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/attempt"
)

type resultRepository struct {
	db *resultTable
}

var _ attempt.Repository = (*resultRepository)(nil)

func NewResultRepository(db *DB) *resultRepository {
	return &resultRepository{db: db.result}
}

func (repo *resultRepository) CreateResult(_ context.Context, res attempt.Result) (attempt.Result, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	res.ID = uuid.NewString()
	res.Questions = append([]attempt.QuestionResult(nil), res.Questions...)
	repo.db.table[res.ID] = &res
	repo.db.order = append(repo.db.order, res.ID)
	return res, nil
}

func (repo *resultRepository) GetResult(_ context.Context, id string) (attempt.Result, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if res, ok := repo.db.table[id]; ok {
		return *res, nil
	}
	return attempt.Result{}, core.NewNotFoundError("result", id)
}

func (repo *resultRepository) QueryResults(_ context.Context, filter attempt.QueryFilter) ([]attempt.Result, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	results := make([]attempt.Result, 0)
	// newest first
	for i := len(repo.db.order) - 1; i >= 0; i-- {
		res := repo.db.table[repo.db.order[i]]
		if filter.UserID != "" && res.UserID != filter.UserID {
			continue
		}
		if filter.TestID != "" && res.TestID != filter.TestID {
			continue
		}
		results = append(results, res.Summary())
	}
	return paginate(results, filter.Page), nil
}

func (repo *resultRepository) GetResultScores(_ context.Context, ids ...string) (map[string]float64, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	scores := make(map[string]float64, len(ids))
	for _, id := range ids {
		if res, ok := repo.db.table[id]; ok {
			scores[id] = res.Score
		}
	}
	return scores, nil
}
