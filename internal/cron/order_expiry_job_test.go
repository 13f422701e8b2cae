package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/internal/inventory"
	"github.com/andikaprasetya/kantin-backend/internal/orders"
	"github.com/andikaprasetya/kantin-backend/internal/shops"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type jobFixture struct {
	db     *gorm.DB
	orders orders.Service
	job    Job
}

func newJobFixture(t *testing.T, window time.Duration) *jobFixture {
	t.Helper()
	dsn := "file:cron_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Shop{}, &models.MenuItem{}, &models.Order{},
		&models.OrderItem{}, &models.PaymentTransaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	orderSvc, err := orders.NewService(
		orders.NewRepository(db),
		testTxRunner{db: db},
		inventory.NewLedger(),
		shops.NewRepository(db),
	)
	if err != nil {
		t.Fatalf("build orders service: %v", err)
	}

	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:            testTxRunner{db: db},
		PendingReader: orders.NewRepository(db),
		Canceller:     orderSvc,
		ExpiryWindow:  window,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	return &jobFixture{db: db, orders: orderSvc, job: job}
}

// seedOrder creates a pending order whose stock was already reserved, the
// state a checkout leaves behind while the customer pays.
func (f *jobFixture) seedOrder(t *testing.T, method enums.PaymentMethod, createdAt time.Time) (uuid.UUID, uuid.UUID) {
	t.Helper()

	shop := models.Shop{
		OwnerID:      uuid.New(),
		Name:         "kantin pak budi",
		ManualStatus: enums.ShopStatusOpen,
	}
	if err := f.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	item := models.MenuItem{
		ShopID:      shop.ID,
		Name:        "nasi goreng",
		PriceCents:  1500000,
		Stock:       7,
		IsAvailable: true,
	}
	if err := f.db.Create(&item).Error; err != nil {
		t.Fatalf("seed menu item: %v", err)
	}

	order := models.Order{
		CustomerID:    uuid.New(),
		ShopID:        shop.ID,
		Status:        enums.OrderStatusPending,
		PaymentMethod: method,
		TotalCents:    4500000,
		CreatedAt:     createdAt,
		Items: []models.OrderItem{{
			MenuItemID:     item.ID,
			Name:           item.Name,
			UnitPriceCents: item.PriceCents,
			Qty:            3,
			SubtotalCents:  4500000,
		}},
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	if method == enums.PaymentMethodGateway {
		txn := models.PaymentTransaction{
			OrderID:       order.ID,
			CustomerID:    order.CustomerID,
			AmountCents:   order.TotalCents,
			Method:        method,
			Status:        enums.PaymentStatusPending,
			ReferenceCode: "PAY-" + uuid.NewString(),
		}
		if err := f.db.Create(&txn).Error; err != nil {
			t.Fatalf("seed payment transaction: %v", err)
		}
	}
	return order.ID, item.ID
}

func (f *jobFixture) loadOrder(t *testing.T, id uuid.UUID) models.Order {
	t.Helper()
	var order models.Order
	if err := f.db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func (f *jobFixture) loadStock(t *testing.T, itemID uuid.UUID) int {
	t.Helper()
	var item models.MenuItem
	if err := f.db.First(&item, "id = ?", itemID).Error; err != nil {
		t.Fatalf("load menu item: %v", err)
	}
	return item.Stock
}

func TestSweepExpiresStaleGatewayOrder(t *testing.T) {
	t.Parallel()

	f := newJobFixture(t, time.Hour)
	ctx := context.Background()
	orderID, itemID := f.seedOrder(t, enums.PaymentMethodGateway, time.Now().UTC().Add(-2*time.Hour))

	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("run sweep: %v", err)
	}

	order := f.loadOrder(t, orderID)
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", order.Status)
	}
	if order.CancelledAt == nil {
		t.Fatal("expected cancelled_at to be stamped")
	}
	if order.Notes == nil || !strings.Contains(*order.Notes, "payment expired after 1h0m0s") {
		t.Fatalf("expected expiry audit note, got %v", order.Notes)
	}
	if stock := f.loadStock(t, itemID); stock != 10 {
		t.Fatalf("expected reserved stock restored to 10, got %d", stock)
	}

	var txn models.PaymentTransaction
	if err := f.db.First(&txn, "order_id = ?", orderID).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed transaction, got %s", txn.Status)
	}
	if txn.FailureReason == nil || *txn.FailureReason != "expired" {
		t.Fatalf("expected failure reason expired, got %v", txn.FailureReason)
	}

	// A second sweep finds nothing to do.
	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("rerun sweep: %v", err)
	}
	if stock := f.loadStock(t, itemID); stock != 10 {
		t.Fatalf("rerun must not restore stock again, got %d", stock)
	}
	reloaded := f.loadOrder(t, orderID)
	if *reloaded.Notes != *order.Notes {
		t.Fatalf("rerun must not append another note, got %q", *reloaded.Notes)
	}
}

func TestSweepLeavesFreshAndCashOrders(t *testing.T) {
	t.Parallel()

	f := newJobFixture(t, time.Hour)
	ctx := context.Background()
	freshID, freshItem := f.seedOrder(t, enums.PaymentMethodGateway, time.Now().UTC())
	cashID, cashItem := f.seedOrder(t, enums.PaymentMethodCash, time.Now().UTC().Add(-3*time.Hour))

	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("run sweep: %v", err)
	}

	if status := f.loadOrder(t, freshID).Status; status != enums.OrderStatusPending {
		t.Fatalf("fresh gateway order must stay pending, got %s", status)
	}
	if status := f.loadOrder(t, cashID).Status; status != enums.OrderStatusPending {
		t.Fatalf("cash order must never expire, got %s", status)
	}
	if stock := f.loadStock(t, freshItem); stock != 7 {
		t.Fatalf("fresh order stock must stay reserved, got %d", stock)
	}
	if stock := f.loadStock(t, cashItem); stock != 7 {
		t.Fatalf("cash order stock must stay reserved, got %d", stock)
	}
}

func TestSweepAfterCallbackCancelIsNoOp(t *testing.T) {
	t.Parallel()

	f := newJobFixture(t, time.Hour)
	ctx := context.Background()
	orderID, itemID := f.seedOrder(t, enums.PaymentMethodGateway, time.Now().UTC().Add(-2*time.Hour))

	// A failure callback already cancelled the order and restored its stock.
	err := testTxRunner{db: f.db}.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := f.orders.Cancel(ctx, tx, orderID, "payment deny")
		return err
	})
	if err != nil {
		t.Fatalf("cancel via callback path: %v", err)
	}
	if stock := f.loadStock(t, itemID); stock != 10 {
		t.Fatalf("expected stock restored by callback, got %d", stock)
	}

	if err := f.job.Run(ctx); err != nil {
		t.Fatalf("run sweep: %v", err)
	}

	if stock := f.loadStock(t, itemID); stock != 10 {
		t.Fatalf("sweep must not restore stock twice, got %d", stock)
	}
	order := f.loadOrder(t, orderID)
	if order.Notes == nil || *order.Notes != "payment deny" {
		t.Fatalf("sweep must not touch an already cancelled order, got %v", order.Notes)
	}
}

type stubCanceller struct {
	failID uuid.UUID
	calls  []uuid.UUID
}

func (s *stubCanceller) Cancel(_ context.Context, _ *gorm.DB, orderID uuid.UUID, _ string) (bool, error) {
	s.calls = append(s.calls, orderID)
	if orderID == s.failID {
		return false, errors.New("boom")
	}
	return true, nil
}

func TestSweepContinuesPastFailingOrder(t *testing.T) {
	t.Parallel()

	f := newJobFixture(t, time.Hour)
	ctx := context.Background()
	firstID, _ := f.seedOrder(t, enums.PaymentMethodGateway, time.Now().UTC().Add(-3*time.Hour))
	secondID, _ := f.seedOrder(t, enums.PaymentMethodGateway, time.Now().UTC().Add(-2*time.Hour))

	canceller := &stubCanceller{failID: firstID}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "cron-test"}),
		DB:            testTxRunner{db: f.db},
		PendingReader: orders.NewRepository(f.db),
		Canceller:     canceller,
		ExpiryWindow:  time.Hour,
	})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}

	if err := job.Run(ctx); err == nil {
		t.Fatal("expected the failing order to surface an error")
	}
	if len(canceller.calls) != 2 {
		t.Fatalf("expected both orders attempted, got %d", len(canceller.calls))
	}
	if canceller.calls[0] != firstID || canceller.calls[1] != secondID {
		t.Fatalf("unexpected attempt order: %v", canceller.calls)
	}
}
