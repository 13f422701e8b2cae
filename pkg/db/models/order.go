package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

// Order is a single-shop order placed by a customer. TotalCents is fixed at
// creation time from the reserved line subtotals and never recomputed.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	ShopID           uuid.UUID           `gorm:"column:shop_id;type:uuid;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'cash'"`
	TotalCents       int64               `gorm:"column:total_cents;not null"`
	PaymentGroupCode *string             `gorm:"column:payment_group_code"`
	Notes            *string             `gorm:"column:notes"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
