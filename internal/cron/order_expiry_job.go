package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
	"github.com/andikaprasetya/kantin-backend/pkg/metrics"
)

const defaultExpiryWindow = time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type pendingOrderReader interface {
	FindPendingGatewayBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// orderCanceller is the single cancellation path owned by the orders service.
type orderCanceller interface {
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string) (bool, error)
}

// OrderExpiryJobParams configure the stale-order sweeper.
type OrderExpiryJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	PendingReader pendingOrderReader
	Canceller     orderCanceller
	Metrics       *metrics.CronJobMetrics
	ExpiryWindow  time.Duration
}

// NewOrderExpiryJob builds the job that cancels gateway orders whose payment
// never arrived.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.PendingReader == nil {
		return nil, fmt.Errorf("pending orders reader required")
	}
	if params.Canceller == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	window := params.ExpiryWindow
	if window <= 0 {
		window = defaultExpiryWindow
	}
	return &orderExpiryJob{
		logg:          params.Logger,
		db:            params.DB,
		pendingReader: params.PendingReader,
		canceller:     params.Canceller,
		metrics:       params.Metrics,
		window:        window,
		now:           time.Now,
	}, nil
}

type orderExpiryJob struct {
	logg          *logger.Logger
	db            txRunner
	pendingReader pendingOrderReader
	canceller     orderCanceller
	metrics       *metrics.CronJobMetrics
	window        time.Duration
	now           func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	stale, err := j.pendingReader.FindPendingGatewayBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs []error
	expired := 0
	for _, order := range stale {
		cancelled, err := j.expireOrder(ctx, order.ID)
		if err != nil {
			// One bad order must not block the rest of the sweep.
			errCtx := j.logg.WithField(ctx, "order_id", order.ID.String())
			j.logg.Error(errCtx, "failed to expire order", err)
			errs = append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if cancelled {
			expired++
		}
	}

	j.metrics.AddExpiredOrders(j.Name(), expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{"candidates": len(stale), "expired": expired})
	j.logg.Info(logCtx, "order expiry sweep complete")
	return multierr.Combine(errs...)
}

// expireOrder cancels one stale order and fails its open payment transactions
// in the same transaction, so a late gateway settlement finds nothing to pay.
// The guarded cancel makes overlap with a concurrent callback a no-op.
func (j *orderExpiryJob) expireOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	note := fmt.Sprintf("payment expired after %s", j.window)
	cancelled := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.canceller.Cancel(ctx, tx, orderID, note)
		if err != nil {
			return err
		}
		if !ok {
			// Already paid or cancelled since the candidate query ran.
			return nil
		}
		cancelled = true
		return failPendingTransactions(ctx, tx, orderID)
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

func failPendingTransactions(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return tx.WithContext(ctx).Exec(`
		UPDATE payment_transactions
		SET status = ?,
			failure_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ? AND status = ?
	`, enums.PaymentStatusFailed, "expired", orderID, enums.PaymentStatusPending).Error
}
