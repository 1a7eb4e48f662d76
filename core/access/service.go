package access

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/attempt"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
)

// test status texts
const (
	StatusNotAttempted = "Not attempted yet"
	StatusCompleted    = "Completed"
)

type (
	// CourseAccess tells apart "never purchased" (Purchased=false, Expired=false) from
	// "purchased and lapsed" (Purchased=false, Expired=true).
	CourseAccess struct {
		Purchased bool       `json:"purchased"`
		Expired   bool       `json:"expired"`
		StartDate *time.Time `json:"start_date,omitempty"`
		EndDate   *time.Time `json:"end_date,omitempty"`
	}

	CourseView struct {
		EntitlementID string     `json:"entitlement_id"`
		CourseID      string     `json:"course_id"`
		Name          string     `json:"name"`
		ImageURL      string     `json:"image_url,omitempty"`
		TransactionID string     `json:"transaction_id,omitempty"`
		PurchaseDate  time.Time  `json:"purchase_date"`
		StartDate     *time.Time `json:"start_date,omitempty"`
		EndDate       *time.Time `json:"end_date,omitempty"`
		IsExpired     bool       `json:"is_expired"`
		DaysRemaining int        `json:"days_remaining"`
	}

	TestView struct {
		EntitlementID string             `json:"entitlement_id"`
		TestID        string             `json:"test_id"`
		Title         string             `json:"title"`
		GrantedVia    entitlement.Source `json:"granted_via"`
		CategoryID    string             `json:"category_id,omitempty"`
		TransactionID string             `json:"transaction_id,omitempty"`
		PurchaseDate  time.Time          `json:"purchase_date"`
		IsCompleted   bool               `json:"is_completed"`
		ResultID      string             `json:"result_id,omitempty"`
		Score         *float64           `json:"score,omitempty"`
		Status        string             `json:"status"`
	}

	Entitlements struct {
		Courses []CourseView `json:"courses"`
		Tests   []TestView   `json:"tests"`
	}

	Options struct {
		Entitlements entitlement.Repository
		Results      attempt.Repository
		Catalog      catalog.Repository
		Logger       core.Logger

		// optional
		Now      func() time.Time
		Cache    core.Cache
		CacheTTL time.Duration
	}

	Service struct {
		Options
	}
)

func NewService(opts Options) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Entitlements, "Entitlements"),
		vala.IsNotNil(opts.Results, "Results"),
		vala.IsNotNil(opts.Catalog, "Catalog"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).CheckAndPanic()

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{Options: opts}
}

// HasCourseAccess checks the latest course entitlement of the user.
func (svc *Service) HasCourseAccess(ctx context.Context, userID, courseID string) (CourseAccess, error) {
	ent, err := svc.Entitlements.LatestCourseEntitlement(ctx, userID, courseID)
	if err != nil {
		if core.IsNotFound(err) {
			return CourseAccess{}, nil
		}
		return CourseAccess{}, errors.Wrap(err, "finding course entitlement")
	}

	expired := ent.Lapsed(svc.Now())
	return CourseAccess{
		Purchased: !expired,
		Expired:   expired,
		StartDate: ent.StartDate,
		EndDate:   ent.EndDate,
	}, nil
}

// ListEntitlements builds the purchases view of a user: one row per entitlement.
func (svc *Service) ListEntitlements(ctx context.Context, userID string) (Entitlements, error) {
	key := entitlement.ViewCacheKey(userID)
	if svc.Cache != nil {
		var cached Entitlements
		found, err := svc.Cache.Get(ctx, key, &cached)
		if err != nil {
			svc.Logger.Warn("reading entitlements view from cache", err)
		} else if found {
			return cached, nil
		}
	}

	ents, err := svc.Entitlements.QueryUserEntitlements(ctx, userID)
	if err != nil {
		return Entitlements{}, errors.Wrap(err, "querying entitlements")
	}

	resultIDs := make([]string, 0)
	for _, ent := range ents {
		if ent.ResultID != "" {
			resultIDs = append(resultIDs, ent.ResultID)
		}
	}
	scores := map[string]float64{}
	if len(resultIDs) > 0 {
		if scores, err = svc.Results.GetResultScores(ctx, resultIDs...); err != nil {
			return Entitlements{}, errors.Wrap(err, "loading scores")
		}
	}

	now := svc.Now()
	view := Entitlements{Courses: make([]CourseView, 0), Tests: make([]TestView, 0)}
	for _, ent := range ents {
		switch ent.Kind {
		case entitlement.KindCourse:
			view.Courses = append(view.Courses, svc.courseView(ctx, ent, now))
		case entitlement.KindTest:
			view.Tests = append(view.Tests, svc.testView(ctx, ent, scores))
		}
	}

	if svc.Cache != nil {
		if err = svc.Cache.Set(ctx, key, view, svc.CacheTTL); err != nil {
			svc.Logger.Warn("caching entitlements view", err)
		}
	}
	return view, nil
}

func (svc *Service) courseView(ctx context.Context, ent entitlement.Entitlement, now time.Time) CourseView {
	cv := CourseView{
		EntitlementID: ent.ID,
		CourseID:      ent.CourseID,
		TransactionID: ent.TransactionID,
		PurchaseDate:  ent.PurchaseDate,
		StartDate:     ent.StartDate,
		EndDate:       ent.EndDate,
		IsExpired:     ent.Lapsed(now),
	}
	if !cv.IsExpired && ent.EndDate != nil {
		cv.DaysRemaining = int(math.Ceil(ent.EndDate.Sub(now).Hours() / 24))
	}
	if course, err := svc.Catalog.GetCourse(ctx, ent.CourseID); err == nil {
		cv.Name = course.Name
		cv.ImageURL = course.ImageURL
	} else if !core.IsNotFound(err) {
		svc.Logger.Warn("entitlements view: course lookup failed", err)
	}
	return cv
}

func (svc *Service) testView(ctx context.Context, ent entitlement.Entitlement, scores map[string]float64) TestView {
	tv := TestView{
		EntitlementID: ent.ID,
		TestID:        ent.TestID,
		GrantedVia:    ent.GrantedVia,
		CategoryID:    ent.CategoryID,
		TransactionID: ent.TransactionID,
		PurchaseDate:  ent.PurchaseDate,
		IsCompleted:   ent.IsCompleted,
		ResultID:      ent.ResultID,
	}
	if score, ok := scores[ent.ResultID]; ok && ent.ResultID != "" {
		tv.Score = &score
	}
	tv.Status = TestStatus(ent.IsCompleted, tv.Score)

	if test, err := svc.Catalog.GetTest(ctx, ent.TestID); err == nil {
		tv.Title = test.Title
	} else if !core.IsNotFound(err) {
		svc.Logger.Warn("entitlements view: test lookup failed", err)
	}
	return tv
}

// TestStatus is the display status of a test entitlement.
func TestStatus(completed bool, score *float64) string {
	switch {
	case completed && score != nil:
		return "Completed — score " + strconv.FormatFloat(*score, 'f', -1, 64) + "%"
	case completed:
		return StatusCompleted
	}
	return StatusNotAttempted
}
