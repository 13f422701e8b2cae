package settlements

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/internal/shops"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Balance is a point-in-time view of a shop's withdrawable money. It is
// recomputed on every call and never stored.
type Balance struct {
	EarnedCents    int64
	HeldCents      int64
	AvailableCents int64
}

// Available returns the withdrawable amount as a 2-dp decimal.
func (b Balance) Available() decimal.Decimal {
	return decimal.NewFromInt(b.AvailableCents).Div(decimal.NewFromInt(100))
}

// WithdrawalInput is a tenant's request to pay out part of their balance.
type WithdrawalInput struct {
	ShopID      uuid.UUID
	AmountCents int64
	Notes       *string
}

// AdvanceInput moves a settlement along its lifecycle. Admin only.
type AdvanceInput struct {
	SettlementID uuid.UUID
	Target       enums.SettlementStatus
	ActorRole    enums.ActorRole
}

// Settlement lifecycle edges. Failed settlements release their hold on the
// balance, so a shop can retry after a failure.
var allowedAdvances = map[enums.SettlementStatus][]enums.SettlementStatus{
	enums.SettlementStatusPending:    {enums.SettlementStatusProcessing, enums.SettlementStatusFailed},
	enums.SettlementStatusProcessing: {enums.SettlementStatusCompleted, enums.SettlementStatusFailed},
}

// Service is the settlement ledger.
type Service interface {
	AvailableBalance(ctx context.Context, shopID uuid.UUID) (*Balance, error)
	RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Settlement, error)
	Advance(ctx context.Context, input AdvanceInput) error
	PendingWithdrawals(ctx context.Context, shopID uuid.UUID) (int64, error)
	ListForShop(ctx context.Context, shopID uuid.UUID, page pagination.Params) ([]models.Settlement, string, error)
}

type service struct {
	repo               Repository
	tx                 txRunner
	shops              shops.Repository
	minWithdrawalCents int64
}

// NewService builds the settlement service.
func NewService(repo Repository, tx txRunner, shopRepo shops.Repository, minWithdrawalCents int64) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settlements repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if shopRepo == nil {
		return nil, fmt.Errorf("shops repository required")
	}
	if minWithdrawalCents < 0 {
		return nil, fmt.Errorf("minimum withdrawal must not be negative")
	}
	return &service{
		repo:               repo,
		tx:                 tx,
		shops:              shopRepo,
		minWithdrawalCents: minWithdrawalCents,
	}, nil
}

func (s *service) AvailableBalance(ctx context.Context, shopID uuid.UUID) (*Balance, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	return s.computeBalance(ctx, s.repo, shopID)
}

func (s *service) computeBalance(ctx context.Context, repo Repository, shopID uuid.UUID) (*Balance, error) {
	earned, err := repo.SumSettledOrders(ctx, shopID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum settled orders")
	}
	held, err := repo.SumSettlements(ctx, shopID, []enums.SettlementStatus{
		enums.SettlementStatusPending,
		enums.SettlementStatusProcessing,
		enums.SettlementStatusCompleted,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum settlements")
	}

	available := earned - held
	if available < 0 {
		available = 0
	}
	return &Balance{
		EarnedCents:    earned,
		HeldCents:      held,
		AvailableCents: available,
	}, nil
}

func (s *service) RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Settlement, error) {
	if input.ShopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.AmountCents < s.minWithdrawalCents {
		return nil, pkgerrors.WithDetails(
			pkgerrors.New(pkgerrors.CodeValidation, "amount below minimum withdrawal"),
			map[string]any{"minimum_cents": s.minWithdrawalCents},
		)
	}

	var settlement *models.Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		shopRepo := s.shops.WithTx(tx)

		// Locks the shop row for the rest of the transaction so two
		// concurrent withdrawals cannot both pass the balance check.
		if err := shopRepo.Touch(ctx, input.ShopID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock shop")
		}

		shop, err := shopRepo.FindByID(ctx, input.ShopID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
		}
		if shop.BankName == "" || shop.BankAccountNumber == "" || shop.BankAccountHolder == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "shop has no bank profile")
		}

		balance, err := s.computeBalance(ctx, repo, input.ShopID)
		if err != nil {
			return err
		}
		if input.AmountCents > balance.AvailableCents {
			return pkgerrors.WithDetails(
				pkgerrors.New(pkgerrors.CodeConflict, "insufficient balance"),
				map[string]any{
					"available_cents": balance.AvailableCents,
					"requested_cents": input.AmountCents,
				},
			)
		}

		settlement = &models.Settlement{
			ShopID:            input.ShopID,
			AmountCents:       input.AmountCents,
			Status:            enums.SettlementStatusPending,
			BankName:          shop.BankName,
			BankAccountNumber: shop.BankAccountNumber,
			BankAccountHolder: shop.BankAccountHolder,
			Notes:             input.Notes,
		}
		if err := repo.Create(ctx, settlement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create settlement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

func (s *service) Advance(ctx context.Context, input AdvanceInput) error {
	if input.SettlementID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement id required")
	}
	if !input.Target.IsValid() || input.Target == enums.SettlementStatusPending {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.ActorRole != enums.ActorRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may advance settlements")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		settlement, err := repo.FindByID(ctx, input.SettlementID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "settlement not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement")
		}

		if !advanceAllowed(settlement.Status, input.Target) {
			return pkgerrors.WithDetails(
				pkgerrors.New(pkgerrors.CodeStateConflict, "advance not allowed in current state"),
				map[string]any{"from": settlement.Status, "to": input.Target},
			)
		}

		stampProcessed := input.Target == enums.SettlementStatusCompleted
		updated, err := repo.UpdateStatusGuarded(ctx, settlement.ID, settlement.Status, input.Target, stampProcessed)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement status")
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settlement changed concurrently")
		}
		return nil
	})
}

func advanceAllowed(from, to enums.SettlementStatus) bool {
	for _, allowed := range allowedAdvances[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *service) PendingWithdrawals(ctx context.Context, shopID uuid.UUID) (int64, error) {
	if shopID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	total, err := s.repo.SumSettlements(ctx, shopID, []enums.SettlementStatus{
		enums.SettlementStatusPending,
		enums.SettlementStatusProcessing,
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum pending withdrawals")
	}
	return total, nil
}

func (s *service) ListForShop(ctx context.Context, shopID uuid.UUID, page pagination.Params) ([]models.Settlement, string, error) {
	if shopID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "shop id required")
	}
	cursor, err := pagination.ParseCursor(page.Cursor)
	if err != nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(page.Limit)

	rows, err := s.repo.ListByShop(ctx, shopID, cursor, limit+1)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list settlements")
	}
	if len(rows) <= limit {
		return rows, "", nil
	}
	rows = rows[:limit]
	last := rows[len(rows)-1]
	next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	return rows, next, nil
}
