package attempt

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
)

// maxLinkAttempts bounds the lookup/complete loop when concurrent submissions race for the
// same entitlement.
const maxLinkAttempts = 3

type (
	Options struct {
		Repo         Repository
		Entitlements entitlement.Repository
		Catalog      catalog.Repository
		Logger       core.Logger

		// optional
		Now    func() time.Time
		Cache  core.Cache
		Events core.EventPublisher
	}

	Service struct {
		Options
	}
)

func NewService(opts Options) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Repo, "Repo"),
		vala.IsNotNil(opts.Entitlements, "Entitlements"),
		vala.IsNotNil(opts.Catalog, "Catalog"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).CheckAndPanic()

	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{Options: opts}
}

// Submit scores an attempt and stores it as a new result. For paid tests, the result is then
// linked to the user's latest open entitlement; linking problems never fail the submission.
func (svc *Service) Submit(ctx context.Context, na NewAttempt) (Result, error) {
	test, err := svc.Catalog.GetTest(ctx, na.TestID)
	if err != nil {
		return Result{}, errors.Wrap(err, "finding test")
	}
	questions, err := svc.Catalog.ActiveQuestions(ctx, test.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "loading questions")
	}
	if len(questions) == 0 {
		return Result{}, core.NewNotFoundError("questions of test", test.ID)
	}

	res := Score(questions, na.Answers, na.QuestionTimes)
	res.UserID = na.UserID
	res.TestID = test.ID
	res.TestTitle = test.Title
	res.TotalTimeSpentSeconds = na.TotalTimeSpentSeconds
	res.SubmittedAt = svc.Now()

	res, err = svc.Repo.CreateResult(ctx, res)
	if err != nil {
		return Result{}, errors.Wrap(err, "saving result")
	}
	svc.publish(ctx, core.StreamAttempts, "attempt.submitted", res.UserID, res.Summary())

	if test.IsPaid {
		svc.link(context.WithoutCancel(ctx), res)
	}
	return res, nil
}

// link completes the latest open entitlement of (user, test) with the result.
func (svc *Service) link(ctx context.Context, res Result) {
	logData := map[string]interface{}{"user_id": res.UserID, "test_id": res.TestID, "result_id": res.ID}
	defer svc.invalidate(ctx, res.UserID)

	for i := 0; i < maxLinkAttempts; i++ {
		ent, err := svc.Entitlements.LatestOpenTestEntitlement(ctx, res.UserID, res.TestID)
		if err != nil {
			if core.IsNotFound(err) {
				svc.repairTestEntitlement(ctx, res, logData)
				return
			}
			svc.Logger.Error("linking result: entitlement lookup failed", err, logData)
			return
		}

		ent, err = svc.Entitlements.CompleteEntitlement(ctx, ent.ID, res.ID, svc.Now())
		if err == nil {
			svc.publish(ctx, core.StreamEntitlements, "entitlement.completed", ent.UserID, ent)
			return
		}
		if errors.Cause(err) != core.ErrConflict {
			svc.Logger.Error("linking result: completing entitlement failed", err, logData)
			return
		}
		// another submission completed it first, look again
	}
	svc.Logger.Warn("linking result: gave up after concurrent completions", logData)
}

// repairTestEntitlement records a completed entitlement for a paid test the user has no open
// entitlement for (e.g. its payment callback was lost).
func (svc *Service) repairTestEntitlement(ctx context.Context, res Result, logData map[string]interface{}) {
	svc.Logger.Warn("linking result: no open entitlement, creating a repair entitlement", logData)

	now := svc.Now()
	ent := entitlement.NewTestEntitlement(res.UserID, res.TestID, "", entitlement.SourceIndividual, "", now)
	ent.IsRepair = true
	ent.IsCompleted = true
	ent.ResultID = res.ID
	ent.CompletedAt = &now

	ent, err := svc.Entitlements.CreateEntitlement(ctx, ent)
	if err != nil {
		svc.Logger.Error("linking result: creating repair entitlement failed", err, logData)
		return
	}
	svc.publish(ctx, core.StreamEntitlements, "entitlement.repaired", ent.UserID, ent)
}

func (svc *Service) GetResult(ctx context.Context, id string) (Result, error) {
	return svc.Repo.GetResult(ctx, id)
}

func (svc *Service) ListResults(ctx context.Context, filter QueryFilter) ([]Result, error) {
	return svc.Repo.QueryResults(ctx, filter)
}

func (svc *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	results, err := svc.Repo.QueryResults(ctx, QueryFilter{UserID: userID})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying results")
	}
	return ComputeStats(results), nil
}

func (svc *Service) invalidate(ctx context.Context, userID string) {
	if svc.Cache == nil {
		return
	}
	if err := svc.Cache.Delete(ctx, entitlement.ViewCacheKey(userID)); err != nil {
		svc.Logger.Warn("invalidating entitlements view", err)
	}
}

func (svc *Service) publish(ctx context.Context, stream, typ, key string, data interface{}) {
	if svc.Events == nil {
		return
	}
	evt := core.Event{Stream: stream, Type: typ, Key: key, Data: data, OccurredAt: svc.Now()}
	if err := svc.Events.Publish(ctx, evt); err != nil {
		svc.Logger.Warn("publishing event", errors.Wrap(err, typ))
	}
}
