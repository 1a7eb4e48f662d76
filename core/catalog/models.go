// Package catalog holds the read models of purchasable things (courses, mock tests, categories)
// and the question bank. The catalog is managed elsewhere; this module only reads it.
package catalog

import "context"

type (
	Course struct {
		ID              string  `json:"id"`
		Name            string  `json:"name"`
		ImageURL        string  `json:"image_url,omitempty"`
		OriginalPrice   float64 `json:"original_price"`
		DiscountedPrice float64 `json:"discounted_price"`
		DurationMonths  int     `json:"duration_months"`
		IsActive        bool    `json:"is_active"`
	}

	MockTest struct {
		ID              string  `json:"id"`
		Title           string  `json:"title"`
		Description     string  `json:"description,omitempty"`
		IsPaid          bool    `json:"is_paid"`
		Price           float64 `json:"price"`
		DurationMinutes int     `json:"duration_minutes"`
		IsActive        bool    `json:"is_active"`
	}

	Option struct {
		Number  int    `json:"number"`
		Answer  string `json:"answer"`
		IsImage bool   `json:"is_image,omitempty"`
	}

	Question struct {
		ID            string   `json:"id"`
		TestID        string   `json:"test_id"`
		Text          string   `json:"text"`
		Options       []Option `json:"options"`
		CorrectOption int      `json:"correct_option"`
		Position      int      `json:"position"`
		IsActive      bool     `json:"is_active"`
	}

	// Category is a priced bundle of mock tests.
	Category struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Price    float64  `json:"price"`
		TestIDs  []string `json:"test_ids"`
		IsActive bool     `json:"is_active"`
	}

	// Repository reads the catalog. Missing records yield a *core.NotFoundError.
	Repository interface {
		GetCourse(ctx context.Context, id string) (Course, error)
		GetTest(ctx context.Context, id string) (MockTest, error)
		GetCategory(ctx context.Context, id string) (Category, error)
		// ActiveQuestions returns the active questions of a test ordered by position.
		ActiveQuestions(ctx context.Context, testID string) ([]Question, error)
	}
)
