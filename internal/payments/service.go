package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
)

const referencePrefix = "PAY-"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderCanceller is the single cancellation path owned by the orders service.
type orderCanceller interface {
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string) (bool, error)
}

// Service reconciles gateway payments with order state.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	HandleCallback(ctx context.Context, cb *Callback) error
	ManualUpdate(ctx context.Context, input ManualUpdateInput) error
}

type service struct {
	repo      Repository
	tx        txRunner
	gateway   Gateway
	canceller orderCanceller
}

// NewService builds the payment reconciliation service.
func NewService(repo Repository, tx txRunner, gateway Gateway, canceller orderCanceller) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if canceller == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		gateway:   gateway,
		canceller: canceller,
	}, nil
}

func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.OrderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	orders, err := s.repo.FindOrdersByIDs(ctx, input.OrderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	if len(orders) != len(input.OrderIDs) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	var totalCents int64
	for _, order := range orders {
		if order.CustomerID != input.CustomerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
		if order.PaymentMethod != enums.PaymentMethodGateway {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is not payable via gateway")
		}
		if order.Status != enums.OrderStatusPending {
			return nil, pkgerrors.WithDetails(
				pkgerrors.New(pkgerrors.CodeConflict, "order is not payable"),
				map[string]any{"order_id": order.ID, "status": order.Status},
			)
		}
		totalCents += order.TotalCents
	}

	paid, err := s.repo.CountPaidByOrders(ctx, input.OrderIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check paid transactions")
	}
	if paid > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already paid")
	}

	referenceCode := referencePrefix + uuid.NewString()
	grossAmount := decimal.NewFromInt(totalCents).Div(decimal.NewFromInt(100))

	// The snapshotted order lines become gateway line items so the payment
	// page shows what is being paid for.
	var items []GatewayItem
	for _, order := range orders {
		for _, line := range order.Items {
			items = append(items, GatewayItem{
				ID:         line.MenuItemID.String(),
				Name:       line.Name,
				PriceCents: line.UnitPriceCents,
				Qty:        line.Qty,
			})
		}
	}

	// The gateway call stays outside any DB transaction so a slow provider
	// never holds row locks.
	result, err := s.gateway.CreateTransaction(ctx, GatewayRequest{
		ReferenceCode: referenceCode,
		GrossAmount:   grossAmount,
		CustomerID:    input.CustomerID,
		Items:         items,
	})
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		txns := make([]models.PaymentTransaction, 0, len(orders))
		for _, order := range orders {
			txns = append(txns, models.PaymentTransaction{
				OrderID:       order.ID,
				ReferenceCode: referenceCode,
				CustomerID:    input.CustomerID,
				AmountCents:   order.TotalCents,
				Method:        enums.PaymentMethodGateway,
				Status:        enums.PaymentStatusPending,
			})
		}
		if err := repo.CreateTransactions(ctx, txns); err != nil {
			if db.IsUniqueViolation(err, "idx_payment_order_reference") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment already initiated for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transactions")
		}
		if err := repo.SetOrdersPaymentGroup(ctx, input.OrderIDs, referenceCode); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tag orders with payment group")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &InitiateResult{
		ReferenceCode: referenceCode,
		Token:         result.Token,
		RedirectURL:   result.RedirectURL,
		GrossAmount:   grossAmount,
	}, nil
}

func (s *service) HandleCallback(ctx context.Context, cb *Callback) error {
	if cb == nil || cb.ReferenceCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference code required")
	}

	txns, err := s.repo.FindByReference(ctx, cb.ReferenceCode)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transactions")
	}
	if len(txns) == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "unknown payment reference")
	}

	switch {
	case cb.Paid:
		return s.applyPaid(ctx, txns)
	case cb.Failed:
		return s.applyFailed(ctx, txns, cb.RawStatus, true)
	default:
		// Still pending upstream. Nothing to reconcile.
		return nil
	}
}

func (s *service) ManualUpdate(ctx context.Context, input ManualUpdateInput) error {
	if input.CustomerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.OrderIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one order id required")
	}

	orders, err := s.repo.FindOrdersByIDs(ctx, input.OrderIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load orders")
	}
	if len(orders) != len(input.OrderIDs) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	for _, order := range orders {
		if order.CustomerID != input.CustomerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
	}

	txns, err := s.repo.FindByOrders(ctx, input.OrderIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment transactions")
	}
	if len(txns) == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no payment transactions for orders")
	}

	switch input.Outcome {
	case ManualOutcomeSuccess:
		return s.applyPaid(ctx, txns)
	case ManualOutcomeError:
		// The order stays pending; the expiry sweeper reaps it if no retry
		// succeeds.
		return s.applyFailed(ctx, txns, string(ManualOutcomeError), false)
	case ManualOutcomePending:
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "outcome must be success, pending, or error")
	}
}

// applyPaid flips pending transactions to paid and moves their orders into
// processing. Status guards make replays no-ops.
func (s *service) applyPaid(ctx context.Context, txns []models.PaymentTransaction) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, txn := range txns {
			flipped, err := repo.MarkPaidGuarded(ctx, txn.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transaction paid")
			}
			if !flipped {
				continue
			}
			if _, err := repo.UpdateOrderStatusGuarded(ctx, txn.OrderID, enums.OrderStatusPending, enums.OrderStatusProcessing); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advance order to processing")
			}
		}
		return nil
	})
}

// applyFailed flips pending transactions to failed. When cancelOrders is set
// the affected orders are cancelled through the shared cancellation path,
// restoring reserved stock at most once.
func (s *service) applyFailed(ctx context.Context, txns []models.PaymentTransaction, reason string, cancelOrders bool) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, txn := range txns {
			flipped, err := repo.MarkFailedGuarded(ctx, txn.ID, reason)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark transaction failed")
			}
			if !flipped || !cancelOrders {
				continue
			}
			if _, err := s.canceller.Cancel(ctx, tx, txn.OrderID, "payment "+reason); err != nil {
				return err
			}
		}
		return nil
	})
}
