package echoapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/payment"
)

var (
	orderingParam = "ordering"
	offsetParam   = "offset"
	limitParam    = "limit"
	maxPageLimit  = 100
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindPage reads ?offset= and ?limit=. Limits are capped at maxPageLimit.
func bindPage(ctx echo.Context) (core.Page, error) {
	var page core.Page
	var fldErrs []core.FieldError
	for param, dst := range map[string]*int{offsetParam: &page.Offset, limitParam: &page.Limit} {
		raw := ctx.QueryParam(param)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fldErrs = append(fldErrs, core.FieldError{Field: param, Error: "must be a positive integer"})
			continue
		}
		*dst = n
	}
	if len(fldErrs) > 0 {
		return core.Page{}, core.NewValidationError(errors.New("invalid pagination"), fldErrs...)
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	return page, nil
}

// Clients send the same concepts under several spellings. The request types below accept every
// known shape and normalize it into the core types, so nothing past this file deals with them.

type orderRequest struct {
	UserID       string `json:"user_id"`
	UserIDAlt    string `json:"userId"`
	Kind         string `json:"kind"`
	PaymentType  string `json:"paymentType"`
	TargetID     string `json:"target_id"`
	PaymentForID string `json:"paymentForId"`
}

func (r orderRequest) normalize() payment.NewOrder {
	return payment.NewOrder{
		UserID:   core.CleanString(firstOf(r.UserID, r.UserIDAlt)),
		Kind:     payment.Kind(core.CleanString(firstOf(r.Kind, r.PaymentType), true)),
		TargetID: core.CleanString(firstOf(r.TargetID, r.PaymentForID)),
	}
}

type attemptRequest struct {
	UserID            string        `json:"user_id"`
	UserIDAlt         string        `json:"userId"`
	TestID            string        `json:"test_id"`
	TestIDAlt         string        `json:"testId"`
	TotalTimeSpent    *int          `json:"total_time_spent"`
	TotalTimeSpentAlt *int          `json:"totalTimeSpent"`
	Answers           []answerValue `json:"answers"`
	UserAnswers       []answerValue `json:"userAnswers"`
	QuestionTimes     []timeValue   `json:"question_times"`
	QuestionWiseTime  []timeValue   `json:"questionWiseTime"`
	PerQuestionTime   []timeValue   `json:"perQuestionTimeSpent"`
}

func (r attemptRequest) normalize() (attempt.NewAttempt, error) {
	total := r.TotalTimeSpent
	if total == nil {
		total = r.TotalTimeSpentAlt
	}
	if total == nil {
		return attempt.NewAttempt{}, core.NewValidationError(
			errors.New("missing total time spent"),
			core.FieldError{Field: "total_time_spent", Error: "this field is required"},
		)
	}

	answers := r.Answers
	if answers == nil {
		answers = r.UserAnswers
	}
	times := r.QuestionTimes
	if times == nil {
		times = r.QuestionWiseTime
	}
	if times == nil {
		times = r.PerQuestionTime
	}

	na := attempt.NewAttempt{
		UserID:                core.CleanString(firstOf(r.UserID, r.UserIDAlt)),
		TestID:                core.CleanString(firstOf(r.TestID, r.TestIDAlt)),
		TotalTimeSpentSeconds: *total,
		Answers:               make([]*int, 0, len(answers)),
		QuestionTimes:         make([]int, 0, len(times)),
	}
	for _, a := range answers {
		na.Answers = append(na.Answers, a.option)
	}
	for _, t := range times {
		na.QuestionTimes = append(na.QuestionTimes, t.seconds)
	}
	return na, nil
}

// answerValue is a selected option given as a bare number, null, or {"selectedOption": n}.
type answerValue struct {
	option *int
}

func (a *answerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			SelectedOption *json.Number `json:"selectedOption"`
			Selected       *json.Number `json:"selected_option"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return errors.Wrap(err, "decoding answer")
		}
		num := obj.SelectedOption
		if num == nil {
			num = obj.Selected
		}
		if num == nil {
			return nil
		}
		return a.setNumber(*num)
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return errors.Wrap(err, "decoding answer")
	}
	return a.setNumber(num)
}

func (a *answerValue) setNumber(num json.Number) error {
	n, err := intOf(num)
	if err != nil {
		return errors.Wrap(err, "decoding answer")
	}
	a.option = &n
	return nil
}

// timeValue is a per-question time in seconds given as a bare number, null, or {"timeSpent": n}.
type timeValue struct {
	seconds int
}

func (t *timeValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var num *json.Number
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			TimeSpent    *json.Number `json:"timeSpent"`
			TimeSpentAlt *json.Number `json:"time_spent"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return errors.Wrap(err, "decoding question time")
		}
		num = obj.TimeSpent
		if num == nil {
			num = obj.TimeSpentAlt
		}
	} else {
		num = new(json.Number)
		if err := json.Unmarshal(data, num); err != nil {
			return errors.Wrap(err, "decoding question time")
		}
	}
	if num == nil {
		return nil
	}
	n, err := intOf(*num)
	if err != nil {
		return errors.Wrap(err, "decoding question time")
	}
	t.seconds = n
	return nil
}

// intOf accepts integral numbers, including "2.0".
func intOf(num json.Number) (int, error) {
	if n, err := num.Int64(); err == nil {
		return int(n), nil
	}
	f, err := num.Float64()
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, errors.Errorf("%s is not an integer", num)
	}
	return int(f), nil
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
