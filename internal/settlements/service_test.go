package settlements

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/internal/shops"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
)

const testMinWithdrawal = int64(1000000) // Rp 10.000

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db      *gorm.DB
	service Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:settlements_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Shop{}, &models.Order{}, &models.Settlement{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc, err := NewService(NewRepository(db), testTxRunner{db: db}, shops.NewRepository(db), testMinWithdrawal)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &fixture{db: db, service: svc}
}

func (f *fixture) seedShop(t *testing.T) uuid.UUID {
	t.Helper()
	shop := models.Shop{
		OwnerID:           uuid.New(),
		Name:              "kantin bu tini",
		ManualStatus:      enums.ShopStatusOpen,
		BankName:          "BCA",
		BankAccountNumber: "1234567890",
		BankAccountHolder: "Tini Haryanti",
	}
	if err := f.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	return shop.ID
}

func (f *fixture) seedOrder(t *testing.T, shopID uuid.UUID, status enums.OrderStatus, totalCents int64) {
	t.Helper()
	order := models.Order{
		CustomerID:    uuid.New(),
		ShopID:        shopID,
		Status:        status,
		PaymentMethod: enums.PaymentMethodCash,
		TotalCents:    totalCents,
	}
	if err := f.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func TestAvailableBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)

	f.seedOrder(t, shopID, enums.OrderStatusCompleted, 3000000)
	f.seedOrder(t, shopID, enums.OrderStatusReceived, 2000000)
	// Not settleable yet.
	f.seedOrder(t, shopID, enums.OrderStatusPending, 9000000)
	f.seedOrder(t, shopID, enums.OrderStatusCancelled, 9000000)

	balance, err := f.service.AvailableBalance(ctx, shopID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.EarnedCents != 5000000 {
		t.Fatalf("expected earned 5000000, got %d", balance.EarnedCents)
	}
	if balance.AvailableCents != 5000000 {
		t.Fatalf("expected available 5000000, got %d", balance.AvailableCents)
	}
}

func TestRequestWithdrawalHoldsBalance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)
	f.seedOrder(t, shopID, enums.OrderStatusCompleted, 5000000)

	settlement, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: 3000000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if settlement.Status != enums.SettlementStatusPending {
		t.Fatalf("expected pending settlement, got %s", settlement.Status)
	}
	if settlement.BankName != "BCA" || settlement.BankAccountHolder != "Tini Haryanti" {
		t.Fatalf("expected bank snapshot, got %+v", settlement)
	}

	balance, err := f.service.AvailableBalance(ctx, shopID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.AvailableCents != 2000000 {
		t.Fatalf("expected available 2000000 after hold, got %d", balance.AvailableCents)
	}

	pending, err := f.service.PendingWithdrawals(ctx, shopID)
	if err != nil {
		t.Fatalf("pending withdrawals: %v", err)
	}
	if pending != 3000000 {
		t.Fatalf("expected pending 3000000, got %d", pending)
	}
}

func TestRequestWithdrawalRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)
	f.seedOrder(t, shopID, enums.OrderStatusCompleted, 5000000)

	// Below minimum.
	_, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: testMinWithdrawal - 1,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Over balance.
	_, err = f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: 6000000,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if typed.Error() != "insufficient balance" {
		t.Fatalf("unexpected message %q", typed.Error())
	}

	// Unknown shop.
	_, err = f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      uuid.New(),
		AmountCents: 2000000,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFullWithdrawalThenRetryFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)
	f.seedOrder(t, shopID, enums.OrderStatusReceived, 5000000)

	if _, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: 5000000,
	}); err != nil {
		t.Fatalf("first withdrawal: %v", err)
	}

	// The full balance is now held; any further request must fail.
	_, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: testMinWithdrawal,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestFailedSettlementReleasesHold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)
	f.seedOrder(t, shopID, enums.OrderStatusCompleted, 5000000)

	settlement, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: 5000000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if err := f.service.Advance(ctx, AdvanceInput{
		SettlementID: settlement.ID,
		Target:       enums.SettlementStatusFailed,
		ActorRole:    enums.ActorRoleAdmin,
	}); err != nil {
		t.Fatalf("advance to failed: %v", err)
	}

	balance, err := f.service.AvailableBalance(ctx, shopID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.AvailableCents != 5000000 {
		t.Fatalf("failed settlement must release hold, got %d", balance.AvailableCents)
	}
}

func TestAdvanceEdges(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	shopID := f.seedShop(t)
	f.seedOrder(t, shopID, enums.OrderStatusCompleted, 5000000)

	settlement, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shopID,
		AmountCents: 2000000,
	})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	admin := func(target enums.SettlementStatus) error {
		return f.service.Advance(ctx, AdvanceInput{
			SettlementID: settlement.ID,
			Target:       target,
			ActorRole:    enums.ActorRoleAdmin,
		})
	}

	// pending -> completed skips processing.
	err = admin(enums.SettlementStatusCompleted)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	if err := admin(enums.SettlementStatusProcessing); err != nil {
		t.Fatalf("advance to processing: %v", err)
	}
	if err := admin(enums.SettlementStatusCompleted); err != nil {
		t.Fatalf("advance to completed: %v", err)
	}

	var reloaded models.Settlement
	if err := f.db.First(&reloaded, "id = ?", settlement.ID).Error; err != nil {
		t.Fatalf("load settlement: %v", err)
	}
	if reloaded.ProcessedAt == nil {
		t.Fatal("expected processed_at to be stamped")
	}

	// Completed is terminal.
	err = admin(enums.SettlementStatusFailed)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected terminal state conflict, got %v", err)
	}

	// Non-admin actors are rejected.
	err = f.service.Advance(ctx, AdvanceInput{
		SettlementID: settlement.ID,
		Target:       enums.SettlementStatusProcessing,
		ActorRole:    enums.ActorRoleTenant,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRequestWithdrawalRequiresBankProfile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	shop := models.Shop{
		OwnerID:      uuid.New(),
		Name:         "kantin tanpa bank",
		ManualStatus: enums.ShopStatusOpen,
	}
	if err := f.db.Create(&shop).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	f.seedOrder(t, shop.ID, enums.OrderStatusCompleted, 5000000)

	_, err := f.service.RequestWithdrawal(ctx, WithdrawalInput{
		ShopID:      shop.ID,
		AmountCents: 2000000,
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed.Error() != "shop has no bank profile" {
		t.Fatalf("unexpected message %q", typed.Error())
	}
}
