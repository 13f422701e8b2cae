package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
)

// ReserveRequest asks for qty units of a single menu item.
type ReserveRequest struct {
	MenuItemID uuid.UUID
	Qty        int
}

// Ledger guards every stock mutation. Reservations decrement atomically and
// fail the surrounding transaction when any line cannot be satisfied.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []ReserveRequest) error
	Restore(ctx context.Context, tx *gorm.DB, menuItemID uuid.UUID, qty int) error
}

type ledger struct{}

// NewLedger exposes the default stock ledger implementation.
func NewLedger() Ledger {
	return ledger{}
}

func (ledger) Reserve(ctx context.Context, tx *gorm.DB, requests []ReserveRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock reservation")
	}
	for _, req := range requests {
		if req.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
		}
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE menu_items
			SET stock = stock - ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND is_available = ? AND stock >= ?
		`, req.Qty, req.MenuItemID, true, req.Qty)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
		}
		if res.RowsAffected == 0 {
			return diagnoseReservation(ctx, tx, req)
		}
	}
	return nil
}

// diagnoseReservation re-reads the row to tell the caller which guard failed.
func diagnoseReservation(ctx context.Context, tx *gorm.DB, req ReserveRequest) error {
	var item models.MenuItem
	err := tx.WithContext(ctx).Where("id = ?", req.MenuItemID).First(&item).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu item")
	}
	if !item.IsAvailable {
		return pkgerrors.WithDetails(
			pkgerrors.New(pkgerrors.CodeConflict, "menu item unavailable"),
			map[string]any{"menu_item_id": req.MenuItemID},
		)
	}
	return pkgerrors.WithDetails(
		pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock"),
		map[string]any{
			"menu_item_id": req.MenuItemID,
			"requested":    req.Qty,
			"available":    item.Stock,
		},
	)
}

func (ledger) Restore(ctx context.Context, tx *gorm.DB, menuItemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE menu_items
		SET stock = stock + ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, menuItemID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
	}
	return nil
}
