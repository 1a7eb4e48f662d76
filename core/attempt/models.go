package attempt

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/catalog"
)

type (
	// NewAttempt is a submission. Answers and QuestionTimes are aligned by position to the
	// test's active questions; a nil answer means the question was not attempted.
	NewAttempt struct {
		UserID                string `json:"user_id" validate:"required,notblank"`
		TestID                string `json:"test_id" validate:"required,notblank"`
		TotalTimeSpentSeconds int    `json:"total_time_spent" validate:"gte=0"`
		Answers               []*int `json:"answers"`
		QuestionTimes         []int  `json:"question_times" validate:"dive,gte=0"`
	}

	QuestionResult struct {
		QuestionID       string           `json:"question_id"`
		QuestionText     string           `json:"question_text"`
		Options          []catalog.Option `json:"options"`
		SelectedOption   *int             `json:"selected_option"`
		CorrectOption    int              `json:"correct_option"`
		TimeSpentSeconds int              `json:"time_spent"`
		IsCorrect        bool             `json:"is_correct"`
		IsAttempted      bool             `json:"is_attempted"`
	}

	// Result is an immutable scored attempt.
	Result struct {
		ID                    string           `json:"id"`
		UserID                string           `json:"user_id"`
		TestID                string           `json:"test_id"`
		TestTitle             string           `json:"test_title"`
		TotalQuestions        int              `json:"total_questions"`
		CorrectCount          int              `json:"correct_count"`
		WrongCount            int              `json:"wrong_count"`
		UnattemptedCount      int              `json:"unattempted_count"`
		Score                 float64          `json:"score"`
		TotalTimeSpentSeconds int              `json:"total_time_spent"`
		Questions             []QuestionResult `json:"questions,omitempty"`
		SubmittedAt           time.Time        `json:"submitted_at"`
	}

	Stats struct {
		TotalTests            int     `json:"total_tests"`
		AverageScore          float64 `json:"average_score"`
		BestScore             float64 `json:"best_score"`
		LowestScore           float64 `json:"lowest_score"`
		TotalCorrect          int     `json:"total_correct"`
		TotalWrong            int     `json:"total_wrong"`
		TotalUnattempted      int     `json:"total_unattempted"`
		Accuracy              float64 `json:"accuracy"`
		TotalTimeSpentSeconds int     `json:"total_time_spent"`
	}

	QueryFilter struct {
		UserID string
		TestID string
		Page   core.Page
	}

	Repository interface {
		// CreateResult stores a new result; ID is assigned by the store.
		CreateResult(ctx context.Context, res Result) (Result, error)
		GetResult(ctx context.Context, id string) (Result, error)
		// QueryResults returns the matching results newest first, without their questions.
		QueryResults(ctx context.Context, filter QueryFilter) ([]Result, error)
		// GetResultScores returns the scores of the given results, keyed by result id.
		GetResultScores(ctx context.Context, ids ...string) (map[string]float64, error)
	}
)

func (na NewAttempt) Validate(validate *validator.Validate) error {
	return validate.Struct(na)
}

// Summary drops the per-question breakdown.
func (res Result) Summary() Result {
	res.Questions = nil
	return res
}
