package payments

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/internal/inventory"
	"github.com/andikaprasetya/kantin-backend/internal/orders"
	"github.com/andikaprasetya/kantin-backend/internal/shops"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubGateway struct {
	result  *GatewayResult
	err     error
	calls   int
	lastReq GatewayRequest
}

func (g *stubGateway) CreateTransaction(ctx context.Context, req GatewayRequest) (*GatewayResult, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *stubGateway) ParseCallback(body io.Reader) (*Callback, error) {
	return nil, nil
}

type fixture struct {
	db       *gorm.DB
	gateway  *stubGateway
	service  Service
	orderSvc orders.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Shop{}, &models.MenuItem{},
		&models.Order{}, &models.OrderItem{},
		&models.PaymentTransaction{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	runner := testTxRunner{db: db}
	orderSvc, err := orders.NewService(
		orders.NewRepository(db),
		runner,
		inventory.NewLedger(),
		shops.NewRepository(db),
	)
	if err != nil {
		t.Fatalf("build orders service: %v", err)
	}

	gateway := &stubGateway{result: &GatewayResult{
		Token:       "snap-token",
		RedirectURL: "https://example.test/pay",
	}}
	svc, err := NewService(NewRepository(db), runner, gateway, orderSvc)
	if err != nil {
		t.Fatalf("build payments service: %v", err)
	}
	return &fixture{db: db, gateway: gateway, service: svc, orderSvc: orderSvc}
}

func (f *fixture) seedShopAndItem(t *testing.T, stock int) (uuid.UUID, uuid.UUID) {
	t.Helper()
	shop := models.Shop{
		OwnerID:      uuid.New(),
		Name:         "kantin pojok",
		ManualStatus: enums.ShopStatusOpen,
	}
	if err := f.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	item := models.MenuItem{
		ShopID:      shop.ID,
		Name:        "ayam geprek",
		PriceCents:  2000000,
		Stock:       stock,
		IsAvailable: true,
	}
	if err := f.db.Create(&item).Error; err != nil {
		t.Fatalf("seed menu item: %v", err)
	}
	return shop.ID, item.ID
}

func (f *fixture) createGatewayOrder(t *testing.T, shopID, customerID, itemID uuid.UUID, qty int) *models.Order {
	t.Helper()
	order, err := f.orderSvc.Create(context.Background(), orders.CreateInput{
		CustomerID:    customerID,
		ShopID:        shopID,
		PaymentMethod: enums.PaymentMethodGateway,
		Lines:         []orders.OrderLineInput{{MenuItemID: itemID, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func (f *fixture) orderStatus(t *testing.T, id uuid.UUID) enums.OrderStatus {
	t.Helper()
	var order models.Order
	if err := f.db.First(&order, "id = ?", id).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order.Status
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var item models.MenuItem
	if err := f.db.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("load menu item: %v", err)
	}
	return item.Stock
}

func TestInitiate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	orderA := f.createGatewayOrder(t, shopID, customerID, itemID, 1)
	orderB := f.createGatewayOrder(t, shopID, customerID, itemID, 2)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{orderA.ID, orderB.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if result.Token != "snap-token" {
		t.Fatalf("unexpected token %q", result.Token)
	}

	wantGross := decimal.NewFromInt(orderA.TotalCents + orderB.TotalCents).Div(decimal.NewFromInt(100))
	if !result.GrossAmount.Equal(wantGross) {
		t.Fatalf("expected gross %s, got %s", wantGross, result.GrossAmount)
	}

	var txns []models.PaymentTransaction
	if err := f.db.Where("reference_code = ?", result.ReferenceCode).Find(&txns).Error; err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txns))
	}
	for _, txn := range txns {
		if txn.Status != enums.PaymentStatusPending {
			t.Fatalf("expected pending transaction, got %s", txn.Status)
		}
	}

	var order models.Order
	if err := f.db.First(&order, "id = ?", orderA.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.PaymentGroupCode == nil || *order.PaymentGroupCode != result.ReferenceCode {
		t.Fatalf("expected payment group code on order, got %v", order.PaymentGroupCode)
	}
}

func TestInitiate_ForwardsLineItemsToGateway(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	orderA := f.createGatewayOrder(t, shopID, customerID, itemID, 1)
	orderB := f.createGatewayOrder(t, shopID, customerID, itemID, 2)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{orderA.ID, orderB.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	req := f.gateway.lastReq
	if req.ReferenceCode != result.ReferenceCode {
		t.Fatalf("gateway saw reference %q, result has %q", req.ReferenceCode, result.ReferenceCode)
	}
	if req.CustomerID != customerID {
		t.Fatalf("gateway saw customer %s, want %s", req.CustomerID, customerID)
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected one line item per order, got %d", len(req.Items))
	}
	var totalQty int
	for _, item := range req.Items {
		if item.ID != itemID.String() {
			t.Fatalf("line item id %q does not match menu item %s", item.ID, itemID)
		}
		if item.Name != "ayam geprek" {
			t.Fatalf("unexpected line item name %q", item.Name)
		}
		if item.PriceCents != 2000000 {
			t.Fatalf("unexpected line item price %d", item.PriceCents)
		}
		totalQty += item.Qty
	}
	if totalQty != 3 {
		t.Fatalf("expected line items covering 3 units, got %d", totalQty)
	}
}

func TestInitiate_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 1)

	// Foreign customer.
	_, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: uuid.New(),
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	// Unknown order.
	_, err = f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{uuid.New()},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	// Already paid.
	paidTxn := models.PaymentTransaction{
		OrderID:       order.ID,
		ReferenceCode: "PAY-earlier",
		CustomerID:    customerID,
		AmountCents:   order.TotalCents,
		Method:        enums.PaymentMethodGateway,
		Status:        enums.PaymentStatusPaid,
	}
	if err := f.db.Create(&paidTxn).Error; err != nil {
		t.Fatalf("seed paid transaction: %v", err)
	}
	_, err = f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if typed.Error() != "order already paid" {
		t.Fatalf("unexpected message %q", typed.Error())
	}
}

func TestInitiate_GatewayFailurePersistsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 1)

	f.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "payment gateway rejected transaction")

	_, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}

	var count int64
	if err := f.db.Model(&models.PaymentTransaction{}).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected nothing persisted, got %d transactions", count)
	}
}

func TestHandleCallback_Paid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 2)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	cb := &Callback{ReferenceCode: result.ReferenceCode, RawStatus: "settlement", Paid: true}
	if err := f.service.HandleCallback(ctx, cb); err != nil {
		t.Fatalf("callback: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got)
	}
	var txn models.PaymentTransaction
	if err := f.db.First(&txn, "reference_code = ?", result.ReferenceCode).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Status != enums.PaymentStatusPaid || txn.PaidAt == nil {
		t.Fatalf("expected paid with timestamp, got %s / %v", txn.Status, txn.PaidAt)
	}

	// Replay is a no-op.
	if err := f.service.HandleCallback(ctx, cb); err != nil {
		t.Fatalf("replay callback: %v", err)
	}
	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusProcessing {
		t.Fatalf("replay must not change order, got %s", got)
	}
}

func TestHandleCallback_FailedCancelsAndRestoresOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 3)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if got := f.stock(t, itemID); got != 7 {
		t.Fatalf("expected stock 7 after reservation, got %d", got)
	}

	cb := &Callback{ReferenceCode: result.ReferenceCode, RawStatus: "expire", Failed: true}
	if err := f.service.HandleCallback(ctx, cb); err != nil {
		t.Fatalf("callback: %v", err)
	}

	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if got := f.stock(t, itemID); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}

	// Replay must not restore stock again.
	if err := f.service.HandleCallback(ctx, cb); err != nil {
		t.Fatalf("replay callback: %v", err)
	}
	if got := f.stock(t, itemID); got != 10 {
		t.Fatalf("stock must not be restored twice, got %d", got)
	}
}

func TestHandleCallback_PendingAndUnknown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 1)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// Pending leaves everything untouched.
	if err := f.service.HandleCallback(ctx, &Callback{ReferenceCode: result.ReferenceCode, RawStatus: "pending"}); err != nil {
		t.Fatalf("pending callback: %v", err)
	}
	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", got)
	}

	// Unknown reference is surfaced as not found.
	err = f.service.HandleCallback(ctx, &Callback{ReferenceCode: "PAY-unknown", RawStatus: "settlement", Paid: true})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManualUpdate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 1)

	if _, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	}); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// Pending reports nothing.
	if err := f.service.ManualUpdate(ctx, ManualUpdateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
		Outcome:    ManualOutcomePending,
	}); err != nil {
		t.Fatalf("manual pending: %v", err)
	}
	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", got)
	}

	// Success advances the order.
	if err := f.service.ManualUpdate(ctx, ManualUpdateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
		Outcome:    ManualOutcomeSuccess,
	}); err != nil {
		t.Fatalf("manual success: %v", err)
	}
	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", got)
	}
}

func TestManualUpdate_ErrorLeavesOrderForSweeper(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID, itemID := f.seedShopAndItem(t, 10)
	customerID := uuid.New()
	order := f.createGatewayOrder(t, shopID, customerID, itemID, 2)

	result, err := f.service.Initiate(ctx, InitiateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if err := f.service.ManualUpdate(ctx, ManualUpdateInput{
		CustomerID: customerID,
		OrderIDs:   []uuid.UUID{order.ID},
		Outcome:    ManualOutcomeError,
	}); err != nil {
		t.Fatalf("manual error: %v", err)
	}

	var txn models.PaymentTransaction
	if err := f.db.First(&txn, "reference_code = ?", result.ReferenceCode).Error; err != nil {
		t.Fatalf("load transaction: %v", err)
	}
	if txn.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed transaction, got %s", txn.Status)
	}
	// The order stays pending so the sweeper can reap it.
	if got := f.orderStatus(t, order.ID); got != enums.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", got)
	}
	if got := f.stock(t, itemID); got != 8 {
		t.Fatalf("stock must stay reserved, got %d", got)
	}
}
