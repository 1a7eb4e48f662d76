package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

type (
	Reconciler interface {
		ReconcileStatus(ctx context.Context, txnID string) (payment.Record, error)
		ReconcileStale(ctx context.Context, age time.Duration, limit int) (int, error)
	}

	Expirer interface {
		ExpireLapsed(ctx context.Context, now time.Time) (int64, error)
	}

	Handlers struct {
		Payments     Reconciler
		Entitlements Expirer
		Logger       core.Logger
		StaleAfter   time.Duration
		Now          func() time.Time
	}

	// Worker processes tasks and registers the periodic ones.
	Worker struct {
		server    *asynq.Server
		scheduler *asynq.Scheduler
		mux       *asynq.ServeMux
		logger    core.Logger
	}
)

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// Register binds the task types to their handlers.
func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeStatusCheck, h.HandleStatusCheck)
	mux.HandleFunc(TypeReconcileStale, h.HandleReconcileStale)
	mux.HandleFunc(TypeExpireLapsed, h.HandleExpireLapsed)
}

// HandleStatusCheck polls the gateway for one pending transaction. Gateway outages are retried.
func (h *Handlers) HandleStatusCheck(ctx context.Context, task *asynq.Task) error {
	var payload StatusCheckPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return errors.Wrap(asynq.SkipRetry, "decoding status check payload: "+err.Error())
	}

	rec, err := h.Payments.ReconcileStatus(ctx, payload.TransactionID)
	switch {
	case err == nil:
	case core.IsNotFound(err), payment.IsRejected(err):
		h.Logger.Warn("status check dropped", errors.Wrap(err, payload.TransactionID))
		return errors.Wrap(asynq.SkipRetry, err.Error())
	default:
		return err
	}

	if !rec.Status.IsTerminal() {
		// the sweep picks it up later
		h.Logger.Info("payment still pending after status check", map[string]interface{}{"transaction_id": rec.TransactionID})
	}
	return nil
}

func (h *Handlers) HandleReconcileStale(ctx context.Context, _ *asynq.Task) error {
	settled, err := h.Payments.ReconcileStale(ctx, h.StaleAfter, staleBatchSize)
	if err != nil {
		return err
	}
	h.Logger.Info("stale payments reconciled", map[string]interface{}{"settled": settled})
	return nil
}

func (h *Handlers) HandleExpireLapsed(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Entitlements.ExpireLapsed(ctx, h.now())
	if err != nil {
		return err
	}
	h.Logger.Info("lapsed course entitlements expired", map[string]interface{}{"count": n})
	return nil
}

func NewWorker(conf *core.Config, handlers *Handlers) *Worker {
	vala.BeginValidation().Validate(
		vala.IsNotNil(handlers.Payments, "Payments"),
		vala.IsNotNil(handlers.Entitlements, "Entitlements"),
		vala.IsNotNil(handlers.Logger, "Logger"),
	).CheckAndPanic()

	redisOpt := RedisOpt(conf.Redis)
	logger := &asynqLogger{logger: handlers.Logger}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: conf.Jobs.Concurrency,
		Queues: map[string]int{
			QueueCritical: 6,
			QueueDefault:  3,
			QueueLow:      1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			handlers.Logger.Error("job failed", err, map[string]interface{}{"type": task.Type()})
		}),
		Logger: logger,
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: logger, Location: time.UTC})

	mux := asynq.NewServeMux()
	handlers.Register(mux)
	return &Worker{server: server, scheduler: scheduler, mux: mux, logger: handlers.Logger}
}

// Schedule registers the periodic tasks.
func (w *Worker) Schedule(conf core.JobsConfig) error {
	if _, err := w.scheduler.Register(conf.ExpireSchedule, asynq.NewTask(TypeExpireLapsed, nil), asynq.Queue(QueueLow)); err != nil {
		return errors.Wrap(err, "scheduling expiry")
	}
	if _, err := w.scheduler.Register("@every "+conf.StaleAfter.String(), asynq.NewTask(TypeReconcileStale, nil), asynq.Queue(QueueDefault)); err != nil {
		return errors.Wrap(err, "scheduling stale sweep")
	}
	return nil
}

// Start runs the server and the scheduler in the background.
func (w *Worker) Start() error {
	w.logger.Info("starting job worker")
	if err := w.server.Start(w.mux); err != nil {
		return errors.Wrap(err, "starting job server")
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return errors.Wrap(err, "starting job scheduler")
	}
	return nil
}

func (w *Worker) Shutdown() {
	w.logger.Info("stopping job worker")
	w.scheduler.Shutdown()
	w.server.Shutdown()
}
