package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/internal/inventory"
	"github.com/andikaprasetya/kantin-backend/internal/shops"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the order lifecycle operations.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) error

	// Cancel is the single cancellation path shared by manual transitions,
	// payment callbacks, and the expiry sweeper. It must run inside the
	// caller's transaction. Returns false when the order was already
	// terminal, in which case no stock is restored.
	Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string) (bool, error)

	GetForCustomer(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, input ListInput) ([]models.Order, string, error)
	ListForShop(ctx context.Context, shopID uuid.UUID, input ListInput) ([]models.Order, string, error)
}

// Transitions a tenant or admin may request. Cancellation is handled apart
// because it restores stock.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusCompleted, enums.OrderStatusCancelled},
	enums.OrderStatusCompleted:  {enums.OrderStatusReceived},
}

type service struct {
	repo  Repository
	tx    txRunner
	stock inventory.Ledger
	shops shops.Repository
	clock func() time.Time
}

// NewService builds the order service with its required dependencies.
func NewService(repo Repository, tx txRunner, stock inventory.Ledger, shopRepo shops.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if stock == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if shopRepo == nil {
		return nil, fmt.Errorf("shops repository required")
	}
	return &service{
		repo:  repo,
		tx:    tx,
		stock: stock,
		shops: shopRepo,
		clock: time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}
	for _, line := range input.Lines {
		if line.MenuItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
		}
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		shop, err := s.shops.WithTx(tx).FindByID(ctx, input.ShopID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
		}
		if !shop.IsOpenNow(s.clock()) {
			return pkgerrors.New(pkgerrors.CodeConflict, "shop is closed")
		}

		ids := make([]uuid.UUID, 0, len(input.Lines))
		for _, line := range input.Lines {
			ids = append(ids, line.MenuItemID)
		}
		menuItems, err := repo.FindMenuItems(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
		}
		byID := make(map[uuid.UUID]models.MenuItem, len(menuItems))
		for _, item := range menuItems {
			byID[item.ID] = item
		}

		requests := make([]inventory.ReserveRequest, 0, len(input.Lines))
		items := make([]models.OrderItem, 0, len(input.Lines))
		var total int64
		for _, line := range input.Lines {
			menuItem, ok := byID[line.MenuItemID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
			}
			if menuItem.ShopID != input.ShopID {
				return pkgerrors.New(pkgerrors.CodeValidation, "menu item does not belong to shop")
			}
			subtotal := menuItem.PriceCents * int64(line.Qty)
			total += subtotal
			items = append(items, models.OrderItem{
				MenuItemID:     menuItem.ID,
				Name:           menuItem.Name,
				UnitPriceCents: menuItem.PriceCents,
				Qty:            line.Qty,
				SubtotalCents:  subtotal,
			})
			requests = append(requests, inventory.ReserveRequest{
				MenuItemID: line.MenuItemID,
				Qty:        line.Qty,
			})
		}

		if err := s.stock.Reserve(ctx, tx, requests); err != nil {
			return err
		}

		order = &models.Order{
			CustomerID:    input.CustomerID,
			ShopID:        input.ShopID,
			Status:        enums.OrderStatusPending,
			PaymentMethod: input.PaymentMethod,
			TotalCents:    total,
			Notes:         input.Notes,
			Items:         items,
		}
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) error {
	if input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() || input.Target == enums.OrderStatusPending {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.ActorUserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorRole != enums.ActorRoleTenant && input.ActorRole != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only tenants or admins may transition orders")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if input.ActorRole == enums.ActorRoleTenant {
			if input.ActorShopID == nil || *input.ActorShopID != order.ShopID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to shop")
			}
		}

		if !edgeAllowed(order.Status, input.Target) {
			return pkgerrors.WithDetails(
				pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed in current state"),
				map[string]any{"from": order.Status, "to": input.Target},
			)
		}

		if input.Target == enums.OrderStatusCancelled {
			cancelled, err := s.Cancel(ctx, tx, order.ID, "cancelled by "+string(input.ActorRole))
			if err != nil {
				return err
			}
			if cancelled {
				// A late gateway settlement must not apply against a
				// cancelled order.
				if err := repo.FailPendingPayments(ctx, order.ID, "cancelled"); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail pending payments")
				}
			}
			return nil
		}

		updated, err := repo.UpdateStatusGuarded(ctx, order.ID, order.Status, input.Target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		return nil
	})
}

func edgeAllowed(from, to enums.OrderStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *service) Cancel(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, note string) (bool, error) {
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for cancellation")
	}
	repo := s.repo.WithTx(tx)

	cancelled, err := repo.CancelGuarded(ctx, orderID, note)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}
	if !cancelled {
		// Already terminal. Restoring here would double-count stock.
		return false, nil
	}

	items, err := repo.FindItems(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	for _, item := range items {
		if err := s.stock.Restore(ctx, tx, item.MenuItemID, item.Qty); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *service) GetForCustomer(ctx context.Context, customerID, orderID uuid.UUID) (*models.Order, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	}
	return order, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, input ListInput) ([]models.Order, string, error) {
	if customerID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, limit, err := parsePage(input.Page)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.ListByCustomer(ctx, customerID, input.Status, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return trimPage(rows, limit)
}

func (s *service) ListForShop(ctx context.Context, shopID uuid.UUID, input ListInput) ([]models.Order, string, error) {
	if shopID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing")
	}
	cursor, limit, err := parsePage(input.Page)
	if err != nil {
		return nil, "", err
	}

	rows, err := s.repo.ListByShop(ctx, shopID, input.Status, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return trimPage(rows, limit)
}

func parsePage(page pagination.Params) (*pagination.Cursor, int, error) {
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	return cursor, pagination.NormalizeLimit(page.Limit), nil
}

func trimPage(rows []models.Order, limit int) ([]models.Order, string, error) {
	if len(rows) <= limit {
		return rows, "", nil
	}
	rows = rows[:limit]
	last := rows[len(rows)-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return rows, next, nil
}
