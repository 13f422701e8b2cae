package settlements

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

// Repository is the persistence surface for the settlement ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	// SumSettledOrders totals completed and received order amounts for a shop.
	SumSettledOrders(ctx context.Context, shopID uuid.UUID) (int64, error)
	// SumSettlements totals settlement amounts in the given statuses.
	SumSettlements(ctx context.Context, shopID uuid.UUID, statuses []enums.SettlementStatus) (int64, error)

	Create(ctx context.Context, settlement *models.Settlement) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error)
	ListByShop(ctx context.Context, shopID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Settlement, error)

	// UpdateStatusGuarded flips the status only from the expected source
	// state. stampProcessed also sets processed_at.
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, stampProcessed bool) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlements repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) SumSettledOrders(ctx context.Context, shopID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total_cents), 0)").
		Where("shop_id = ? AND status IN ?", shopID,
			[]enums.OrderStatus{enums.OrderStatusCompleted, enums.OrderStatusReceived}).
		Scan(&total).Error
	return total, err
}

func (r *repository) SumSettlements(ctx context.Context, shopID uuid.UUID, statuses []enums.SettlementStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Settlement{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("shop_id = ? AND status IN ?", shopID, statuses).
		Scan(&total).Error
	return total, err
}

func (r *repository) Create(ctx context.Context, settlement *models.Settlement) error {
	return r.db.WithContext(ctx).Create(settlement).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Settlement, error) {
	var settlement models.Settlement
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&settlement).Error
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (r *repository) ListByShop(ctx context.Context, shopID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Settlement, error) {
	query := r.db.WithContext(ctx).Where("shop_id = ?", shopID)
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}
	var rows []models.Settlement
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, stampProcessed bool) (bool, error) {
	sql := `
		UPDATE settlements
		SET status = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	if stampProcessed {
		sql = `
		UPDATE settlements
		SET status = ?,
			processed_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	}
	res := r.db.WithContext(ctx).Exec(sql, to, id, from)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
