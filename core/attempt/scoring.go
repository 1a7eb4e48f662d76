package attempt

import (
	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/catalog"
)

// Score grades answers against questions, matched by position.
// questions must not be empty.
func Score(questions []catalog.Question, answers []*int, times []int) Result {
	res := Result{
		TotalQuestions: len(questions),
		Questions:      make([]QuestionResult, 0, len(questions)),
	}

	for i, q := range questions {
		qr := QuestionResult{
			QuestionID:    q.ID,
			QuestionText:  q.Text,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
		}
		if i < len(times) {
			qr.TimeSpentSeconds = times[i]
		}
		if i < len(answers) && answers[i] != nil {
			selected := *answers[i]
			qr.SelectedOption = &selected
			qr.IsAttempted = true
			qr.IsCorrect = selected == q.CorrectOption
		}

		switch {
		case !qr.IsAttempted:
			res.UnattemptedCount++
		case qr.IsCorrect:
			res.CorrectCount++
		default:
			res.WrongCount++
		}
		res.Questions = append(res.Questions, qr)
	}

	res.Score = core.RoundTo(float64(res.CorrectCount)/float64(res.TotalQuestions)*100, 2)
	return res
}

// ComputeStats aggregates results of one user.
func ComputeStats(results []Result) Stats {
	var stats Stats
	if len(results) == 0 {
		return stats
	}

	var sum float64
	stats.TotalTests = len(results)
	stats.LowestScore = results[0].Score
	for _, res := range results {
		sum += res.Score
		if res.Score > stats.BestScore {
			stats.BestScore = res.Score
		}
		if res.Score < stats.LowestScore {
			stats.LowestScore = res.Score
		}
		stats.TotalCorrect += res.CorrectCount
		stats.TotalWrong += res.WrongCount
		stats.TotalUnattempted += res.UnattemptedCount
		stats.TotalTimeSpentSeconds += res.TotalTimeSpentSeconds
	}

	stats.AverageScore = core.RoundTo(sum/float64(len(results)), 2)
	// accuracy only counts attempted questions
	if attempted := stats.TotalCorrect + stats.TotalWrong; attempted > 0 {
		stats.Accuracy = core.RoundTo(float64(stats.TotalCorrect)/float64(attempted)*100, 2)
	}
	return stats
}
