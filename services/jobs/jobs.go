// Package jobs runs the background work of the payment flow on asynq: delayed status checks of
// pending orders, the stale-order sweep and the daily course expiry.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

const (
	TypeStatusCheck     = "payment:status_check"
	TypeReconcileStale  = "payment:reconcile_stale"
	TypeExpireLapsed    = "entitlement:expire"
	QueueCritical       = "critical"
	QueueDefault        = "default"
	QueueLow            = "low"
	staleBatchSize      = 100
	statusCheckMaxRetry = 5
)

type StatusCheckPayload struct {
	TransactionID string `json:"transaction_id"`
}

// Client enqueues tasks. It implements payment.StatusCheckScheduler.
type Client struct {
	client *asynq.Client
}

var _ payment.StatusCheckScheduler = (*Client)(nil)

func RedisOpt(conf core.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: conf.Addr, Password: conf.Password, DB: conf.DB}
}

func NewClient(conf core.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(conf))}
}

// NewStatusCheckTask builds the delayed poll of a pending transaction.
// The task id makes repeated scheduling of one transaction a no-op.
func NewStatusCheckTask(txnID string, delay time.Duration) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(StatusCheckPayload{TransactionID: txnID})
	if err != nil {
		return nil, nil, errors.Wrap(err, "encoding status check payload")
	}
	opts := []asynq.Option{
		asynq.Queue(QueueCritical),
		asynq.TaskID("status:" + txnID),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(statusCheckMaxRetry),
		asynq.Timeout(30 * time.Second),
	}
	return asynq.NewTask(TypeStatusCheck, payload), opts, nil
}

func (c *Client) ScheduleStatusCheck(ctx context.Context, txnID string, delay time.Duration) error {
	task, opts, err := NewStatusCheckTask(txnID, delay)
	if err != nil {
		return err
	}
	if _, err = c.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return errors.Wrap(err, "enqueuing status check")
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// asynqLogger adapts core.Logger to asynq.Logger.
type asynqLogger struct {
	logger core.Logger
}

var _ asynq.Logger = (*asynqLogger)(nil)

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal(fmt.Sprint(args...)) }
