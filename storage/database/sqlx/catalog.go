package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pariksha/lms/core/catalog"
)

type (
	courseRow struct {
		ID              string      `db:"id"`
		Name            string      `db:"name"`
		ImageURL        null.String `db:"image_url"`
		OriginalPrice   float64     `db:"original_price"`
		DiscountedPrice float64     `db:"discounted_price"`
		DurationMonths  int         `db:"duration_months"`
		IsActive        bool        `db:"is_active"`
	}

	testRow struct {
		ID              string      `db:"id"`
		Title           string      `db:"title"`
		Description     null.String `db:"description"`
		IsPaid          bool        `db:"is_paid"`
		Price           float64     `db:"price"`
		DurationMinutes int         `db:"duration_minutes"`
		IsActive        bool        `db:"is_active"`
	}

	questionRow struct {
		ID            string         `db:"id"`
		TestID        string         `db:"test_id"`
		Text          string         `db:"text"`
		Options       types.JSONText `db:"options"`
		CorrectOption int            `db:"correct_option"`
		Position      int            `db:"position"`
		IsActive      bool           `db:"is_active"`
	}

	categoryRow struct {
		ID       string  `db:"id"`
		Name     string  `db:"name"`
		Price    float64 `db:"price"`
		IsActive bool    `db:"is_active"`
	}
)

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *sqlx.DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) GetCourse(ctx context.Context, id string) (catalog.Course, error) {
	var row courseRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM courses WHERE id = $1`, id)
	if err != nil {
		return catalog.Course{}, trapNoRowsErr(err, "course", id, "selecting course")
	}
	return catalog.Course{
		ID:              row.ID,
		Name:            row.Name,
		ImageURL:        row.ImageURL.String,
		OriginalPrice:   row.OriginalPrice,
		DiscountedPrice: row.DiscountedPrice,
		DurationMonths:  row.DurationMonths,
		IsActive:        row.IsActive,
	}, nil
}

func (repo *catalogRepository) GetTest(ctx context.Context, id string) (catalog.MockTest, error) {
	var row testRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM mock_tests WHERE id = $1`, id)
	if err != nil {
		return catalog.MockTest{}, trapNoRowsErr(err, "mock test", id, "selecting mock test")
	}
	return catalog.MockTest{
		ID:              row.ID,
		Title:           row.Title,
		Description:     row.Description.String,
		IsPaid:          row.IsPaid,
		Price:           row.Price,
		DurationMinutes: row.DurationMinutes,
		IsActive:        row.IsActive,
	}, nil
}

func (repo *catalogRepository) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	var row categoryRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM categories WHERE id = $1`, id)
	if err != nil {
		return catalog.Category{}, trapNoRowsErr(err, "category", id, "selecting category")
	}

	testIDs := make([]string, 0)
	err = repo.db.SelectContext(ctx, &testIDs,
		`SELECT test_id FROM category_tests WHERE category_id = $1 ORDER BY position, test_id`, id)
	if err != nil {
		return catalog.Category{}, errors.Wrap(err, "selecting category tests")
	}
	return catalog.Category{ID: row.ID, Name: row.Name, Price: row.Price, TestIDs: testIDs, IsActive: row.IsActive}, nil
}

func (repo *catalogRepository) ActiveQuestions(ctx context.Context, testID string) ([]catalog.Question, error) {
	var rows []questionRow
	err := repo.db.SelectContext(ctx, &rows,
		`SELECT * FROM mock_test_questions WHERE test_id = $1 AND is_active ORDER BY position, id`, testID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting questions")
	}

	qs := make([]catalog.Question, 0, len(rows))
	for _, row := range rows {
		q := catalog.Question{
			ID:            row.ID,
			TestID:        row.TestID,
			Text:          row.Text,
			CorrectOption: row.CorrectOption,
			Position:      row.Position,
			IsActive:      row.IsActive,
		}
		if err = row.Options.Unmarshal(&q.Options); err != nil {
			return nil, errors.Wrapf(err, "decoding options of question %s", row.ID)
		}
		qs = append(qs, q)
	}
	return qs, nil
}
