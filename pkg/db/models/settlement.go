package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

// Settlement is a tenant withdrawal request against accumulated revenue.
// Bank fields are snapshotted at request time and stay fixed even if the
// shop's live bank profile changes later.
type Settlement struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ShopID            uuid.UUID              `gorm:"column:shop_id;type:uuid;not null"`
	AmountCents       int64                  `gorm:"column:amount_cents;not null"`
	Status            enums.SettlementStatus `gorm:"column:status;type:settlement_status;not null;default:'pending'"`
	BankName          string                 `gorm:"column:bank_name;not null"`
	BankAccountNumber string                 `gorm:"column:bank_account_number;not null"`
	BankAccountHolder string                 `gorm:"column:bank_account_holder;not null"`
	Notes             *string                `gorm:"column:notes"`
	ProcessedAt       *time.Time             `gorm:"column:processed_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
