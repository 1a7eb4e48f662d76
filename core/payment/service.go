package payment

import (
	"context"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/catalog"
	"github.com/pariksha/lms/core/entitlement"
)

var errInvalidAmount = errors.New("invalid amount")

type (
	Options struct {
		Repo         Repository
		Entitlements entitlement.Repository
		Catalog      catalog.Repository
		Gateway      Gateway
		IDs          IDGenerator
		Logger       core.Logger

		// optional
		Now       func() time.Time
		Scheduler StatusCheckScheduler
		Cache     core.Cache
		Events    core.EventPublisher

		GatewayTimeout   time.Duration
		StatusCheckDelay time.Duration
		// PollInterval is the minimum gap between two redirect polls of one transaction.
		PollInterval time.Duration
	}

	// Service reconciles the payment ledger with the gateway and grants entitlements
	// for successful payments.
	Service struct {
		Options

		pollMu sync.Mutex
		polls  map[string]time.Time // last redirect poll per txn, when no cache is set
	}
)

func NewService(opts Options) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Repo, "Repo"),
		vala.IsNotNil(opts.Entitlements, "Entitlements"),
		vala.IsNotNil(opts.Catalog, "Catalog"),
		vala.IsNotNil(opts.Gateway, "Gateway"),
		vala.IsNotNil(opts.IDs, "IDs"),
		vala.IsNotNil(opts.Logger, "Logger"),
	).CheckAndPanic()

	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{Options: opts, polls: make(map[string]time.Time)}
}

func (svc *Service) price(ctx context.Context, kind Kind, targetID string) (float64, error) {
	switch kind {
	case KindCourse:
		course, err := svc.Catalog.GetCourse(ctx, targetID)
		if err != nil {
			return 0, err
		}
		return course.DiscountedPrice, nil
	case KindTest:
		test, err := svc.Catalog.GetTest(ctx, targetID)
		if err != nil {
			return 0, err
		}
		return test.Price, nil
	case KindCategory:
		cat, err := svc.Catalog.GetCategory(ctx, targetID)
		if err != nil {
			return 0, err
		}
		return cat.Price, nil
	}
	return 0, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: paymentKindText})
}

// CreateOrder records a pending payment for the target and opens a gateway checkout.
// The pending record is kept whatever the gateway answers.
func (svc *Service) CreateOrder(ctx context.Context, no NewOrder) (Order, error) {
	amount, err := svc.price(ctx, no.Kind, no.TargetID)
	if err != nil {
		return Order{}, errors.Wrap(err, "resolving price")
	}

	if no.Kind == KindCategory {
		owned, err := svc.Repo.HasSuccessfulPayment(ctx, no.UserID, no.Kind, no.TargetID)
		if err != nil {
			return Order{}, errors.Wrap(err, "checking ownership")
		}
		if owned {
			return Order{}, core.ErrAlreadyOwned
		}
	}

	if amount <= 0 {
		return Order{}, core.NewValidationError(
			errInvalidAmount,
			core.FieldError{Field: "amount", Error: "price must be greater than zero"},
		)
	}

	now := svc.Now()
	rec, err := svc.Repo.CreatePayment(ctx, Record{
		UserID:        no.UserID,
		Kind:          no.Kind,
		TargetID:      no.TargetID,
		Amount:        amount,
		TransactionID: svc.IDs.NewTransactionID(),
		Status:        StatusPending,
		Gateway:       svc.Gateway.Name(),
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Order{}, errors.Wrap(err, "creating payment")
	}
	svc.publish(ctx, "payment.created", rec)

	gctx, cancel := context.WithTimeout(ctx, svc.GatewayTimeout)
	defer cancel()
	payURL, err := svc.Gateway.CreateOrder(gctx, GatewayOrder{
		TransactionID: rec.TransactionID,
		UserID:        rec.UserID,
		AmountMinor:   core.ToMinorUnits(rec.Amount),
	})
	if err != nil {
		if IsRejected(err) {
			return Order{}, errors.Wrap(err, "creating gateway order")
		}
		return Order{}, core.NewTransientError(err, "creating gateway order")
	}

	if svc.Scheduler != nil {
		if err = svc.Scheduler.ScheduleStatusCheck(ctx, rec.TransactionID, svc.StatusCheckDelay); err != nil {
			svc.Logger.Warn("could not schedule status check", errors.Wrap(err, rec.TransactionID))
		}
	}

	return Order{TransactionID: rec.TransactionID, PayURL: payURL, Amount: rec.Amount}, nil
}

// HandleCallback applies a gateway callback. It may be delivered more than once.
// Business anomalies are logged and swallowed; only invalid payloads and storage failures
// are returned.
func (svc *Service) HandleCallback(ctx context.Context, payload CallbackPayload) error {
	// once accepted, a callback runs to completion even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	outcome, err := svc.Gateway.VerifyCallback(ctx, payload)
	if err != nil {
		if errors.Cause(err) == ErrInvalidCallback {
			return core.NewValidationError(err)
		}
		return errors.Wrap(err, "verifying callback")
	}
	_, err = svc.applyOutcome(ctx, outcome, "callback")
	return err
}

// ReconcileStatus polls the gateway for a transaction still pending and applies the answer.
func (svc *Service) ReconcileStatus(ctx context.Context, txnID string) (Record, error) {
	ctx = context.WithoutCancel(ctx)

	rec, err := svc.Repo.GetPaymentByTransactionID(ctx, txnID)
	if err != nil {
		return Record{}, errors.Wrap(err, "finding payment")
	}
	if rec.Status.IsTerminal() {
		return rec, nil
	}

	gctx, cancel := context.WithTimeout(ctx, svc.GatewayTimeout)
	defer cancel()
	outcome, err := svc.Gateway.CheckStatus(gctx, txnID)
	if err != nil {
		if IsRejected(err) {
			return Record{}, errors.Wrap(err, "checking payment status")
		}
		return Record{}, core.NewTransientError(err, "checking payment status")
	}
	outcome.TransactionID = txnID

	updated, err := svc.applyOutcome(ctx, outcome, "status")
	if err != nil {
		return Record{}, err
	}
	return updated, nil
}

// PollStatus is ReconcileStatus for the checkout redirect: the gateway is asked at most
// once per PollInterval for a transaction, otherwise the stored record is returned.
func (svc *Service) PollStatus(ctx context.Context, txnID string) (Record, error) {
	rec, err := svc.Repo.GetPaymentByTransactionID(ctx, txnID)
	if err != nil {
		return Record{}, errors.Wrap(err, "finding payment")
	}
	if rec.Status.IsTerminal() || !svc.pollAllowed(ctx, txnID) {
		return rec, nil
	}
	return svc.ReconcileStatus(ctx, txnID)
}

func pollCacheKey(txnID string) string {
	return "payment:poll:" + txnID
}

func (svc *Service) pollAllowed(ctx context.Context, txnID string) bool {
	if svc.PollInterval <= 0 {
		return true
	}

	if svc.Cache != nil {
		var polled bool
		found, err := svc.Cache.Get(ctx, pollCacheKey(txnID), &polled)
		if err != nil {
			svc.Logger.Warn("reading poll throttle", errors.Wrap(err, txnID))
		}
		if found {
			return false
		}
		if err = svc.Cache.Set(ctx, pollCacheKey(txnID), true, svc.PollInterval); err != nil {
			svc.Logger.Warn("writing poll throttle", errors.Wrap(err, txnID))
		}
		return true
	}

	now := svc.Now()
	svc.pollMu.Lock()
	defer svc.pollMu.Unlock()
	if last, ok := svc.polls[txnID]; ok && now.Sub(last) < svc.PollInterval {
		return false
	}
	for id, last := range svc.polls {
		if now.Sub(last) >= svc.PollInterval {
			delete(svc.polls, id)
		}
	}
	svc.polls[txnID] = now
	return true
}

// ReconcileStale polls the gateway for payments left pending for longer than `age`.
// It returns how many of them reached a terminal state.
func (svc *Service) ReconcileStale(ctx context.Context, age time.Duration, limit int) (int, error) {
	recs, err := svc.Repo.QueryStalePayments(ctx, svc.Now().Add(-age), limit)
	if err != nil {
		return 0, errors.Wrap(err, "querying stale payments")
	}

	var settled int
	for _, rec := range recs {
		updated, err := svc.ReconcileStatus(ctx, rec.TransactionID)
		if err != nil {
			svc.Logger.Warn("reconciling stale payment", errors.Wrap(err, rec.TransactionID))
			continue
		}
		if updated.Status.IsTerminal() {
			settled++
		}
	}
	return settled, nil
}

// applyOutcome moves a pending record to its terminal status. Only the writer that wins the
// conditional transition grants entitlements.
func (svc *Service) applyOutcome(ctx context.Context, outcome Outcome, via string) (Record, error) {
	rec, err := svc.Repo.GetPaymentByTransactionID(ctx, outcome.TransactionID)
	if err != nil {
		if core.IsNotFound(err) {
			svc.Logger.Warn("payment outcome for unknown transaction", map[string]interface{}{
				"transaction_id": outcome.TransactionID, "code": outcome.Code, "via": via,
			})
			return Record{}, nil
		}
		return Record{}, errors.Wrap(err, "finding payment")
	}

	if rec.Status.IsTerminal() {
		svc.Logger.Debug("payment already settled", map[string]interface{}{
			"transaction_id": rec.TransactionID, "status": rec.Status, "via": via,
		})
		return rec, nil
	}

	var to Status
	switch outcome.Status {
	case OutcomeSuccess:
		to = StatusSuccess
	case OutcomeFailed:
		to = StatusFailed
	default:
		svc.Logger.Info("payment still pending at gateway", map[string]interface{}{
			"transaction_id": rec.TransactionID, "code": outcome.Code, "via": via,
		})
		return rec, nil
	}

	updated, won, err := svc.Repo.TransitionPayment(ctx, rec.TransactionID, to, svc.Now())
	if err != nil {
		return Record{}, errors.Wrap(err, "updating payment status")
	}
	if !won {
		svc.Logger.Debug("payment settled concurrently", map[string]interface{}{
			"transaction_id": rec.TransactionID, "status": updated.Status, "via": via,
		})
		return updated, nil
	}

	svc.publish(ctx, "payment."+string(updated.Status), updated)
	if updated.Status == StatusSuccess {
		svc.grant(ctx, updated)
		svc.invalidate(ctx, updated.UserID)
	}
	return updated, nil
}

// grant creates the entitlements bought by a successful payment. It never fails:
// inconsistencies are logged, and a category grant keeps whatever rows were written.
func (svc *Service) grant(ctx context.Context, rec Record) {
	now := svc.Now()
	logData := map[string]interface{}{
		"transaction_id": rec.TransactionID, "user_id": rec.UserID, "kind": rec.Kind, "target_id": rec.TargetID,
	}

	switch rec.Kind {
	case KindCourse:
		course, err := svc.Catalog.GetCourse(ctx, rec.TargetID)
		if err != nil {
			svc.Logger.Error("granting course: course lookup failed", err, logData)
			return
		}
		ent := entitlement.NewCourseEntitlement(rec.UserID, course.ID, rec.TransactionID, course.DurationMonths, now)
		svc.createEntitlement(ctx, ent, logData)

	case KindTest:
		ent := entitlement.NewTestEntitlement(rec.UserID, rec.TargetID, rec.TransactionID, entitlement.SourceIndividual, "", now)
		svc.createEntitlement(ctx, ent, logData)

	case KindCategory:
		// membership is read now; later edits of the category do not touch these grants
		cat, err := svc.Catalog.GetCategory(ctx, rec.TargetID)
		if err != nil {
			svc.Logger.Error("granting category: category lookup failed", err, logData)
			return
		}
		if len(cat.TestIDs) == 0 {
			svc.Logger.Warn("granting category: category has no tests", logData)
			return
		}
		for _, testID := range cat.TestIDs {
			ent := entitlement.NewTestEntitlement(rec.UserID, testID, rec.TransactionID, entitlement.SourceCategory, cat.ID, now)
			svc.createEntitlement(ctx, ent, logData)
		}

	default:
		svc.Logger.Error("granting: unknown payment kind", logData)
	}
}

func (svc *Service) createEntitlement(ctx context.Context, ent entitlement.Entitlement, logData map[string]interface{}) {
	ent, err := svc.Entitlements.CreateEntitlement(ctx, ent)
	if err != nil {
		svc.Logger.Error("granting: creating entitlement failed", err, logData)
		return
	}
	if svc.Events != nil {
		svc.send(ctx, core.Event{
			Stream: core.StreamEntitlements,
			Type:   "entitlement.granted",
			Key:    ent.UserID,
			Data:   ent,
		})
	}
}

// History returns the payments matching the filter.
func (svc *Service) History(ctx context.Context, filter QueryFilter) ([]Record, error) {
	filter.Ordering = core.FilterOrderings(filter.Ordering, OrderingFields)
	return svc.Repo.QueryPayments(ctx, filter)
}

func (svc *Service) invalidate(ctx context.Context, userID string) {
	if svc.Cache == nil {
		return
	}
	if err := svc.Cache.Delete(ctx, entitlement.ViewCacheKey(userID)); err != nil {
		svc.Logger.Warn("invalidating entitlements view", err)
	}
}

func (svc *Service) publish(ctx context.Context, typ string, rec Record) {
	if svc.Events == nil {
		return
	}
	svc.send(ctx, core.Event{Stream: core.StreamPayments, Type: typ, Key: rec.TransactionID, Data: rec})
}

func (svc *Service) send(ctx context.Context, evt core.Event) {
	evt.OccurredAt = svc.Now()
	if err := svc.Events.Publish(ctx, evt); err != nil {
		svc.Logger.Warn("publishing event", errors.Wrap(err, evt.Type))
	}
}
