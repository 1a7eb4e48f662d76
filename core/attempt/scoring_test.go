package attempt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pariksha/lms/core/catalog"
)

func questions(correct ...int) []catalog.Question {
	qs := make([]catalog.Question, 0, len(correct))
	for i, c := range correct {
		qs = append(qs, catalog.Question{ID: string(rune('a' + i)), CorrectOption: c, Position: i + 1})
	}
	return qs
}

func answers(vals ...int) []*int {
	res := make([]*int, 0, len(vals))
	for _, v := range vals {
		if v < 0 {
			res = append(res, nil)
			continue
		}
		v := v
		res = append(res, &v)
	}
	return res
}

func TestScore(t *testing.T) {
	tenQuestions := questions(0, 1, 2, 3, 0, 1, 2, 3, 0, 1)

	tests := []struct {
		name            string
		questions       []catalog.Question
		answers         []*int
		wantCorrect     int
		wantWrong       int
		wantUnattempted int
		wantScore       float64
	}{
		{
			name:        "all correct",
			questions:   tenQuestions,
			answers:     answers(0, 1, 2, 3, 0, 1, 2, 3, 0, 1),
			wantCorrect: 10,
			wantScore:   100,
		},
		{
			name:            "seven correct two wrong one skipped",
			questions:       tenQuestions,
			answers:         answers(0, 1, 2, 3, 0, 1, 2, 0, 1, -1),
			wantCorrect:     7,
			wantWrong:       2,
			wantUnattempted: 1,
			wantScore:       70,
		},
		{
			name:            "fewer answers than questions",
			questions:       questions(0, 1, 2),
			answers:         answers(0),
			wantCorrect:     1,
			wantUnattempted: 2,
			wantScore:       33.33,
		},
		{
			name:        "extra answers are ignored",
			questions:   questions(0, 1, 2),
			answers:     answers(0, 1, 1, 3, 3),
			wantCorrect: 2,
			wantWrong:   1,
			wantScore:   66.67,
		},
		{
			name:            "nothing answered",
			questions:       questions(0, 1),
			wantUnattempted: 2,
			wantScore:       0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(tt.questions, tt.answers, nil)
			assert.Equal(t, len(tt.questions), res.TotalQuestions)
			assert.Equal(t, tt.wantCorrect, res.CorrectCount)
			assert.Equal(t, tt.wantWrong, res.WrongCount)
			assert.Equal(t, tt.wantUnattempted, res.UnattemptedCount)
			assert.Equal(t, tt.wantScore, res.Score)
			assert.Equal(t, res.TotalQuestions, res.CorrectCount+res.WrongCount+res.UnattemptedCount)
			assert.Len(t, res.Questions, len(tt.questions))
		})
	}
}

func TestScore_questionDetail(t *testing.T) {
	res := Score(questions(2, 1), answers(2, -1), []int{30, 12})

	first := res.Questions[0]
	assert.True(t, first.IsAttempted)
	assert.True(t, first.IsCorrect)
	assert.Equal(t, 2, *first.SelectedOption)
	assert.Equal(t, 30, first.TimeSpentSeconds)

	second := res.Questions[1]
	assert.False(t, second.IsAttempted)
	assert.False(t, second.IsCorrect)
	assert.Nil(t, second.SelectedOption)
	assert.Equal(t, 1, second.CorrectOption)
	assert.Equal(t, 12, second.TimeSpentSeconds)
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		want    Stats
	}{
		{name: "no results", want: Stats{}},
		{
			name: "several results",
			results: []Result{
				{Score: 70, CorrectCount: 7, WrongCount: 2, UnattemptedCount: 1, TotalTimeSpentSeconds: 300},
				{Score: 100, CorrectCount: 10, TotalTimeSpentSeconds: 250},
				{Score: 33.33, CorrectCount: 1, WrongCount: 1, UnattemptedCount: 1, TotalTimeSpentSeconds: 50},
			},
			want: Stats{
				TotalTests:            3,
				AverageScore:          67.78,
				BestScore:             100,
				LowestScore:           33.33,
				TotalCorrect:          18,
				TotalWrong:            3,
				TotalUnattempted:      2,
				Accuracy:              85.71,
				TotalTimeSpentSeconds: 600,
			},
		},
		{
			name:    "nothing attempted",
			results: []Result{{Score: 0, UnattemptedCount: 5}},
			want:    Stats{TotalTests: 1, TotalUnattempted: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStats(tt.results))
		})
	}
}
