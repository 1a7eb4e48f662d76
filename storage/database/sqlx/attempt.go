package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/attempt"
)

const resultSummaryColumns = `id, user_id, test_id, test_title, total_questions, correct_count, wrong_count,
	unattempted_count, score, total_time_spent, submitted_at`

type resultRow struct {
	ID               string         `db:"id"`
	UserID           string         `db:"user_id"`
	TestID           string         `db:"test_id"`
	TestTitle        string         `db:"test_title"`
	TotalQuestions   int            `db:"total_questions"`
	CorrectCount     int            `db:"correct_count"`
	WrongCount       int            `db:"wrong_count"`
	UnattemptedCount int            `db:"unattempted_count"`
	Score            float64        `db:"score"`
	TotalTimeSpent   int            `db:"total_time_spent"`
	Questions        types.JSONText `db:"questions"`
	SubmittedAt      time.Time      `db:"submitted_at"`
}

func (row resultRow) result() (attempt.Result, error) {
	res := attempt.Result{
		ID:                    row.ID,
		UserID:                row.UserID,
		TestID:                row.TestID,
		TestTitle:             row.TestTitle,
		TotalQuestions:        row.TotalQuestions,
		CorrectCount:          row.CorrectCount,
		WrongCount:            row.WrongCount,
		UnattemptedCount:      row.UnattemptedCount,
		Score:                 row.Score,
		TotalTimeSpentSeconds: row.TotalTimeSpent,
		SubmittedAt:           row.SubmittedAt.UTC(),
	}
	if len(row.Questions) > 0 {
		if err := row.Questions.Unmarshal(&res.Questions); err != nil {
			return attempt.Result{}, errors.Wrapf(err, "decoding questions of result %s", row.ID)
		}
	}
	return res, nil
}

type resultRepository struct {
	db *sqlx.DB
}

var _ attempt.Repository = (*resultRepository)(nil)

func NewResultRepository(db *sqlx.DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo *resultRepository) CreateResult(ctx context.Context, res attempt.Result) (attempt.Result, error) {
	questions, err := json.Marshal(res.Questions)
	if err != nil {
		return attempt.Result{}, errors.Wrap(err, "encoding questions")
	}

	res.ID = uuid.NewString()
	_, err = repo.db.ExecContext(ctx,
		`INSERT INTO test_results (id, user_id, test_id, test_title, total_questions, correct_count, wrong_count,
			unattempted_count, score, total_time_spent, questions, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		res.ID, res.UserID, res.TestID, res.TestTitle, res.TotalQuestions, res.CorrectCount, res.WrongCount,
		res.UnattemptedCount, res.Score, res.TotalTimeSpentSeconds, types.JSONText(questions), res.SubmittedAt.UTC(),
	)
	if err != nil {
		return attempt.Result{}, errors.Wrap(err, "inserting result")
	}
	return res, nil
}

func (repo *resultRepository) GetResult(ctx context.Context, id string) (attempt.Result, error) {
	var row resultRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+resultSummaryColumns+`, questions FROM test_results WHERE id = $1`, id)
	if err != nil {
		return attempt.Result{}, trapNoRowsErr(err, "result", id, "selecting result")
	}
	return row.result()
}

func (repo *resultRepository) QueryResults(ctx context.Context, filter attempt.QueryFilter) ([]attempt.Result, error) {
	w := &where{}
	if filter.UserID != "" {
		w.add("user_id = ?", filter.UserID)
	}
	if filter.TestID != "" {
		w.add("test_id = ?", filter.TestID)
	}
	q := `SELECT ` + resultSummaryColumns + ` FROM test_results` + w.String() + ` ORDER BY seq DESC` + limitOffset(filter.Page)

	var rows []resultRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting results")
	}
	results := make([]attempt.Result, 0, len(rows))
	for _, row := range rows {
		res, err := row.result()
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (repo *resultRepository) GetResultScores(ctx context.Context, ids ...string) (map[string]float64, error) {
	scores := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return scores, nil
	}

	var rows []struct {
		ID    string  `db:"id"`
		Score float64 `db:"score"`
	}
	err := repo.db.SelectContext(ctx, &rows, `SELECT id, score FROM test_results WHERE id::text = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "selecting scores")
	}
	for _, row := range rows {
		scores[row.ID] = row.Score
	}
	return scores, nil
}
