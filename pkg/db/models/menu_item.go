package models

import (
	"time"

	"github.com/google/uuid"
)

// MenuItem is a sellable item on a shop's menu. Stock is only ever mutated
// through the inventory ledger's guarded updates.
type MenuItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID      uuid.UUID `gorm:"column:shop_id;type:uuid;not null"`
	Name        string    `gorm:"column:name;not null"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
	Stock       int       `gorm:"column:stock;not null;default:0"`
	IsAvailable bool      `gorm:"column:is_available;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
