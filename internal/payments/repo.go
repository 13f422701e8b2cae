package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

// Repository is the persistence surface for payment reconciliation.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	SetOrdersPaymentGroup(ctx context.Context, ids []uuid.UUID, referenceCode string) error

	CreateTransactions(ctx context.Context, txns []models.PaymentTransaction) error
	FindByReference(ctx context.Context, referenceCode string) ([]models.PaymentTransaction, error)
	FindByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]models.PaymentTransaction, error)
	CountPaidByOrders(ctx context.Context, orderIDs []uuid.UUID) (int64, error)

	// MarkPaidGuarded flips a pending transaction to paid, stamping paid_at.
	// Returns false when the transaction was not pending.
	MarkPaidGuarded(ctx context.Context, id uuid.UUID) (bool, error)
	// MarkFailedGuarded flips a pending transaction to failed with a reason.
	MarkFailedGuarded(ctx context.Context, id uuid.UUID, reason string) (bool, error)

	// UpdateOrderStatusGuarded flips an order's status only from the expected
	// source state. Payment-driven flips bypass the manual transition rules.
	UpdateOrderStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrdersByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id IN ?", ids).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) SetOrdersPaymentGroup(ctx context.Context, ids []uuid.UUID, referenceCode string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET payment_group_code = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id IN ?
	`, referenceCode, ids).Error
}

func (r *repository) CreateTransactions(ctx context.Context, txns []models.PaymentTransaction) error {
	if len(txns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&txns).Error
}

func (r *repository) FindByReference(ctx context.Context, referenceCode string) ([]models.PaymentTransaction, error) {
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("reference_code = ?", referenceCode).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) FindByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]models.PaymentTransaction, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id IN ?", orderIDs).
		Order("created_at ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) CountPaidByOrders(ctx context.Context, orderIDs []uuid.UUID) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("order_id IN ? AND status = ?", orderIDs, enums.PaymentStatusPaid).
		Count(&count).Error
	return count, err
}

func (r *repository) MarkPaidGuarded(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE payment_transactions
		SET status = ?,
			paid_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, enums.PaymentStatusPaid, id, enums.PaymentStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkFailedGuarded(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE payment_transactions
		SET status = ?,
			failure_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, enums.PaymentStatusFailed, reason, id, enums.PaymentStatusPending)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpdateOrderStatusGuarded(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, to, orderID, from)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
