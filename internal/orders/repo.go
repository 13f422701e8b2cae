package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

// Repository is the persistence surface for orders and their line items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	FindMenuItems(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error)

	// UpdateStatusGuarded flips the status only when the row is still in
	// fromStatus. Returns false when the guard did not match.
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error)

	// CancelGuarded cancels the order only when it is still pending or
	// processing, stamping cancelled_at and appending the audit note.
	// Returns false when the order was already terminal.
	CancelGuarded(ctx context.Context, id uuid.UUID, note string) (bool, error)

	// FailPendingPayments fails any still-pending payment transactions for the
	// order so a late gateway settlement cannot apply against it.
	FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) error

	// FindPendingGatewayBefore returns gateway orders still pending that were
	// created before the cutoff. Cash orders never expire.
	FindPendingGatewayBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)

	ListByCustomer(ctx context.Context, customerID uuid.UUID, status *enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error)
	ListByShop(ctx context.Context, shopID uuid.UUID, status *enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindMenuItems(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.MenuItem
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, to, id, from)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CancelGuarded(ctx context.Context, id uuid.UUID, note string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE orders
		SET status = ?,
			cancelled_at = CURRENT_TIMESTAMP,
			notes = CASE
				WHEN notes IS NULL OR notes = '' THEN ?
				ELSE notes || '; ' || ?
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status IN ?
	`, enums.OrderStatusCancelled, note, note, id,
		[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FailPendingPayments(ctx context.Context, orderID uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE payment_transactions
		SET status = ?,
			failure_reason = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ? AND status = ?
	`, enums.PaymentStatusFailed, reason, orderID, enums.PaymentStatusPending).Error
}

func (r *repository) FindPendingGatewayBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_method = ? AND created_at < ?",
			enums.OrderStatusPending, enums.PaymentMethodGateway, cutoff).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, status *enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("customer_id = ?", customerID)
	return r.list(query, status, cursor, limit)
}

func (r *repository) ListByShop(ctx context.Context, shopID uuid.UUID, status *enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Where("shop_id = ?", shopID)
	return r.list(query, status, cursor, limit)
}

func (r *repository) list(query *gorm.DB, status *enums.OrderStatus, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Order
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
