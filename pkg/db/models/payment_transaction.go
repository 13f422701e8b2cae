package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

// PaymentTransaction is the canonical record of one order's payment outcome.
// Transactions created from the same checkout share a ReferenceCode, which is
// also the identifier the gateway echoes back in callbacks.
type PaymentTransaction struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_payment_order_reference"`
	CustomerID    uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'gateway'"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	ReferenceCode string              `gorm:"column:reference_code;not null;uniqueIndex:idx_payment_order_reference"`
	PaidAt        *time.Time          `gorm:"column:paid_at"`
	FailureReason *string             `gorm:"column:failure_reason"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
