package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/entitlement"
	"github.com/pariksha/lms/core/payment"
	"github.com/pariksha/lms/testutil"
)

type env struct {
	store     *testutil.Store
	gateway   *testutil.Gateway
	scheduler *testutil.Scheduler
	cache     *testutil.Cache
	events    *testutil.Events
	logger    *testutil.Logger
	svc       *payment.Service
}

func setup(t *testing.T, now ...time.Time) *env {
	e := &env{
		store:     testutil.NewStore(),
		gateway:   testutil.NewGateway(),
		scheduler: &testutil.Scheduler{},
		cache:     testutil.NewCache(),
		events:    &testutil.Events{},
		logger:    &testutil.Logger{},
	}
	opts := payment.Options{
		Repo:             e.store.Payments,
		Entitlements:     e.store.Entitlements,
		Catalog:          e.store.Catalog,
		Gateway:          e.gateway,
		IDs:              &testutil.IDs{},
		Logger:           e.logger,
		Scheduler:        e.scheduler,
		Cache:            e.cache,
		Events:           e.events,
		StatusCheckDelay: 15 * time.Minute,
	}
	if len(now) > 0 {
		opts.Now = func() time.Time { return now[0] }
	}
	e.svc = payment.NewService(opts)
	return e
}

func (e *env) entitlements(t *testing.T, userID string) []entitlement.Entitlement {
	ents, err := e.store.Entitlements.QueryUserEntitlements(context.Background(), userID)
	require.NoError(t, err)
	return ents
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	course := testutil.CreateCourse(t, e.store, "Physics", 499.5, 3)
	test := testutil.CreateTest(t, e.store, "Mock 1", 49, 0, 1)
	free := testutil.CreateTest(t, e.store, "Free mock", 0, 0)
	cat := testutil.CreateCategory(t, e.store, "Bundle", 199, test)
	owned := testutil.CreateCategory(t, e.store, "Owned bundle", 99, test)
	testutil.CreatePendingPayment(t, e.store, "OLD1", "u1", payment.KindCategory, owned.ID, 99)
	_, _, err := e.store.Payments.TransitionPayment(ctx, "OLD1", payment.StatusSuccess, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name       string
		order      payment.NewOrder
		wantAmount float64
		wantErr    func(error) bool
	}{
		{name: "course", order: payment.NewOrder{UserID: "u1", Kind: payment.KindCourse, TargetID: course.ID}, wantAmount: 499.5},
		{name: "test", order: payment.NewOrder{UserID: "u1", Kind: payment.KindTest, TargetID: test.ID}, wantAmount: 49},
		{name: "category", order: payment.NewOrder{UserID: "u1", Kind: payment.KindCategory, TargetID: cat.ID}, wantAmount: 199},
		{
			name:    "missing course",
			order:   payment.NewOrder{UserID: "u1", Kind: payment.KindCourse, TargetID: "nope"},
			wantErr: core.IsNotFound,
		},
		{
			name:    "missing category",
			order:   payment.NewOrder{UserID: "u1", Kind: payment.KindCategory, TargetID: "nope"},
			wantErr: core.IsNotFound,
		},
		{
			name:  "free test",
			order: payment.NewOrder{UserID: "u1", Kind: payment.KindTest, TargetID: free.ID},
			wantErr: func(err error) bool {
				_, ok := errors.Cause(err).(*core.ValidationError)
				return ok
			},
		},
		{
			name:    "category already owned",
			order:   payment.NewOrder{UserID: "u1", Kind: payment.KindCategory, TargetID: owned.ID},
			wantErr: func(err error) bool { return errors.Cause(err) == core.ErrAlreadyOwned },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nOrders := len(e.gateway.Orders)

			order, err := e.svc.CreateOrder(ctx, tt.order)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
				assert.Len(t, e.gateway.Orders, nOrders)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAmount, order.Amount)
			assert.Equal(t, "https://pay.test/checkout/"+order.TransactionID, order.PayURL)

			rec, err := e.store.Payments.GetPaymentByTransactionID(ctx, order.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, payment.StatusPending, rec.Status)
			assert.Equal(t, tt.order.Kind, rec.Kind)
			assert.Equal(t, tt.wantAmount, rec.Amount)

			require.Len(t, e.gateway.Orders, nOrders+1)
			assert.Equal(t, core.ToMinorUnits(tt.wantAmount), e.gateway.Orders[nOrders].AmountMinor)
			assert.Equal(t, 15*time.Minute, e.scheduler.Checks[order.TransactionID])
		})
	}
}

func TestService_CreateOrder_gatewayFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		gatewayErr    error
		wantTransient bool
	}{
		{name: "timeout", gatewayErr: context.DeadlineExceeded, wantTransient: true},
		{name: "rejected", gatewayErr: &payment.RejectedError{Code: "BAD_REQUEST", Message: "invalid amount"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t)
			test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
			e.gateway.OrderErr = tt.gatewayErr

			_, err := e.svc.CreateOrder(ctx, payment.NewOrder{UserID: "u1", Kind: payment.KindTest, TargetID: test.ID})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, core.IsTransient(err))
			assert.Equal(t, !tt.wantTransient, payment.IsRejected(err))

			// the pending record stays
			recs, err := e.store.Payments.QueryPayments(ctx, payment.QueryFilter{UserID: "u1"})
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, payment.StatusPending, recs[0].Status)
			assert.Empty(t, e.scheduler.Checks)
		})
	}
}

func TestService_HandleCallback(t *testing.T) {
	ctx := context.Background()
	grantedAt := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	type want struct {
		status payment.Status
		ents   int
	}
	tests := []struct {
		name   string
		setup  func(t *testing.T, e *env) payment.Record
		status payment.OutcomeStatus
		want   want
		check  func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement)
	}{
		{
			name: "course success",
			setup: func(t *testing.T, e *env) payment.Record {
				c := testutil.CreateCourse(t, e.store, "Chemistry", 999, 3)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindCourse, c.ID, 999)
			},
			status: payment.OutcomeSuccess,
			want:   want{status: payment.StatusSuccess, ents: 1},
			check: func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement) {
				assert.Equal(t, entitlement.KindCourse, ents[0].Kind)
				assert.Equal(t, grantedAt, *ents[0].StartDate)
				assert.Equal(t, time.Date(2024, 4, 15, 12, 0, 0, 0, time.UTC), *ents[0].EndDate)
				assert.Equal(t, rec.TransactionID, ents[0].TransactionID)
			},
		},
		{
			name: "test success",
			setup: func(t *testing.T, e *env) payment.Record {
				test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)
			},
			status: payment.OutcomeSuccess,
			want:   want{status: payment.StatusSuccess, ents: 1},
			check: func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement) {
				assert.Equal(t, entitlement.KindTest, ents[0].Kind)
				assert.Equal(t, rec.TargetID, ents[0].TestID)
				assert.Equal(t, entitlement.SourceIndividual, ents[0].GrantedVia)
				assert.False(t, ents[0].IsCompleted)
			},
		},
		{
			name: "category with 5 tests",
			setup: func(t *testing.T, e *env) payment.Record {
				cat := testutil.CreateCategory(t, e.store, "Bundle", 299,
					testutil.CreateTest(t, e.store, "M1", 49, 0),
					testutil.CreateTest(t, e.store, "M2", 49, 0),
					testutil.CreateTest(t, e.store, "M3", 49, 0),
					testutil.CreateTest(t, e.store, "M4", 49, 0),
					testutil.CreateTest(t, e.store, "M5", 49, 0),
				)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindCategory, cat.ID, 299)
			},
			status: payment.OutcomeSuccess,
			want:   want{status: payment.StatusSuccess, ents: 5},
			check: func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement) {
				testIDs := map[string]bool{}
				for _, ent := range ents {
					assert.Equal(t, rec.TransactionID, ent.TransactionID)
					assert.Equal(t, rec.TargetID, ent.CategoryID)
					assert.Equal(t, entitlement.SourceCategory, ent.GrantedVia)
					testIDs[ent.TestID] = true
				}
				assert.Len(t, testIDs, 5)
			},
		},
		{
			name: "empty category",
			setup: func(t *testing.T, e *env) payment.Record {
				cat := testutil.CreateCategory(t, e.store, "Empty", 99)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindCategory, cat.ID, 99)
			},
			status: payment.OutcomeSuccess,
			want:   want{status: payment.StatusSuccess, ents: 0},
			check: func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement) {
				assert.True(t, e.logger.Has("warn", "category has no tests"))
			},
		},
		{
			name: "course deleted since order",
			setup: func(t *testing.T, e *env) payment.Record {
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindCourse, "gone", 999)
			},
			status: payment.OutcomeSuccess,
			want:   want{status: payment.StatusSuccess, ents: 0},
			check: func(t *testing.T, e *env, rec payment.Record, ents []entitlement.Entitlement) {
				assert.True(t, e.logger.Has("error", "course lookup failed"))
			},
		},
		{
			name: "failure",
			setup: func(t *testing.T, e *env) payment.Record {
				test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)
			},
			status: payment.OutcomeFailed,
			want:   want{status: payment.StatusFailed, ents: 0},
		},
		{
			name: "still pending",
			setup: func(t *testing.T, e *env) payment.Record {
				test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
				return testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)
			},
			status: payment.OutcomePending,
			want:   want{status: payment.StatusPending, ents: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, grantedAt)
			rec := tt.setup(t, e)

			// delivered twice: the second delivery must be a no-op
			for i := 0; i < 2; i++ {
				require.NoError(t, e.svc.HandleCallback(ctx, testutil.Callback(rec.TransactionID, tt.status)))
			}

			got, err := e.store.Payments.GetPaymentByTransactionID(ctx, rec.TransactionID)
			require.NoError(t, err)
			assert.Equal(t, tt.want.status, got.Status)

			ents := e.entitlements(t, "u1")
			require.Len(t, ents, tt.want.ents)
			if tt.check != nil {
				tt.check(t, e, got, ents)
			}
		})
	}
}

func TestService_HandleCallback_invalid(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	err := e.svc.HandleCallback(ctx, payment.CallbackPayload{Body: []byte(`{}`), Signature: "forged"})
	require.Error(t, err)
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)

	err = e.svc.HandleCallback(ctx, payment.CallbackPayload{Body: []byte(`not json`), Signature: "valid"})
	require.Error(t, err)
	_, ok = errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok)

	// unknown transactions are acknowledged
	require.NoError(t, e.svc.HandleCallback(ctx, testutil.Callback("unknown", payment.OutcomeSuccess)))
	assert.True(t, e.logger.Has("warn", "unknown transaction"))
}

func TestService_HandleCallback_concurrentDeliveries(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	cat := testutil.CreateCategory(t, e.store, "Bundle", 299,
		testutil.CreateTest(t, e.store, "M1", 49, 0),
		testutil.CreateTest(t, e.store, "M2", 49, 0),
		testutil.CreateTest(t, e.store, "M3", 49, 0),
	)
	rec := testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindCategory, cat.ID, 299)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.svc.HandleCallback(ctx, testutil.Callback(rec.TransactionID, payment.OutcomeSuccess)))
		}()
	}
	wg.Wait()

	assert.Len(t, e.entitlements(t, "u1"), 3)

	var succeeded int
	for _, typ := range e.events.Types() {
		if typ == "payment.success" {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestService_HandleCallback_canceledRequest(t *testing.T) {
	e := setup(t)
	test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
	rec := testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.svc.HandleCallback(ctx, testutil.Callback(rec.TransactionID, payment.OutcomeSuccess)))
	assert.Len(t, e.entitlements(t, "u1"), 1)
}

func TestService_ReconcileStatus(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
	paid := testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)
	waiting := testutil.CreatePendingPayment(t, e.store, "T2", "u1", payment.KindTest, test.ID, 49)
	e.gateway.Statuses[paid.TransactionID] = payment.OutcomeSuccess

	rec, err := e.svc.ReconcileStatus(ctx, paid.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, rec.Status)

	rec, err = e.svc.ReconcileStatus(ctx, waiting.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, rec.Status)

	// a late callback after the poll settled it grants nothing more
	require.NoError(t, e.svc.HandleCallback(ctx, testutil.Callback(paid.TransactionID, payment.OutcomeSuccess)))
	assert.Len(t, e.entitlements(t, "u1"), 1)

	_, err = e.svc.ReconcileStatus(ctx, "unknown")
	assert.True(t, core.IsNotFound(err))

	e.gateway.StatusErr = context.DeadlineExceeded
	_, err = e.svc.ReconcileStatus(ctx, waiting.TransactionID)
	assert.True(t, core.IsTransient(err))
}

func TestService_ReconcileStale(t *testing.T) {
	ctx := context.Background()
	e := setup(t, time.Now().UTC().Add(time.Hour))
	test := testutil.CreateTest(t, e.store, "Mock", 49, 0)
	testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, test.ID, 49)
	testutil.CreatePendingPayment(t, e.store, "T2", "u1", payment.KindTest, test.ID, 49)
	testutil.CreatePendingPayment(t, e.store, "T3", "u1", payment.KindTest, test.ID, 49)
	e.gateway.Statuses["T1"] = payment.OutcomeSuccess
	e.gateway.Statuses["T2"] = payment.OutcomeFailed

	settled, err := e.svc.ReconcileStale(ctx, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)
	assert.Len(t, e.entitlements(t, "u1"), 1)
}

func TestService_History(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	testutil.CreatePendingPayment(t, e.store, "T1", "u1", payment.KindTest, "t1", 49)
	testutil.CreatePendingPayment(t, e.store, "T2", "u1", payment.KindCourse, "c1", 999)
	testutil.CreatePendingPayment(t, e.store, "T3", "u2", payment.KindTest, "t1", 49)

	recs, err := e.svc.History(ctx, payment.QueryFilter{
		UserID:   "u1",
		Ordering: []core.DBOrdering{{Field: "amount"}, {Field: "password"}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "T2", recs[0].TransactionID)
	assert.Equal(t, "T1", recs[1].TransactionID)
}

func TestService_PollStatus(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	tests := []struct {
		name  string
		cache bool
	}{
		{name: "throttled through the cache", cache: true},
		{name: "throttled in process"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewStore()
			gateway := testutil.NewGateway()
			clock := now
			opts := payment.Options{
				Repo:         store.Payments,
				Entitlements: store.Entitlements,
				Catalog:      store.Catalog,
				Gateway:      gateway,
				IDs:          &testutil.IDs{},
				Logger:       &testutil.Logger{},
				Now:          func() time.Time { return clock },
				PollInterval: time.Minute,
			}
			if tt.cache {
				opts.Cache = testutil.NewCache()
			}
			svc := payment.NewService(opts)
			test := testutil.CreateTest(t, store, "Mock", 49, 0)
			testutil.CreatePendingPayment(t, store, "T1", "u1", payment.KindTest, test.ID, 49)

			rec, err := svc.PollStatus(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, payment.StatusPending, rec.Status)
			assert.Equal(t, 1, gateway.Checks)

			// answered from the ledger until the interval elapses
			gateway.Statuses["T1"] = payment.OutcomeSuccess
			rec, err = svc.PollStatus(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, payment.StatusPending, rec.Status)
			assert.Equal(t, 1, gateway.Checks)

			_, err = svc.PollStatus(ctx, "T404")
			assert.True(t, core.IsNotFound(err))
			assert.Equal(t, 1, gateway.Checks)

			if tt.cache {
				// the cache entry expires on its own; drop it to simulate that
				require.NoError(t, opts.Cache.Delete(ctx, "payment:poll:T1"))
			} else {
				clock = clock.Add(time.Minute)
			}
			rec, err = svc.PollStatus(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, payment.StatusSuccess, rec.Status)
			assert.Equal(t, 2, gateway.Checks)

			// settled payments never reach the gateway again
			_, err = svc.PollStatus(ctx, "T1")
			require.NoError(t, err)
			assert.Equal(t, 2, gateway.Checks)
		})
	}
}

func TestRecord_View(t *testing.T) {
	rec := payment.Record{ID: "p1", UserID: "u1", Amount: 49, TransactionID: "T1", Status: payment.StatusSuccess}
	assert.Equal(t, payment.StatusView{TransactionID: "T1", Status: payment.StatusSuccess}, rec.View())
}
