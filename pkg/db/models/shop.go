package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

// Shop is a tenant's stall. OpenTime/CloseTime use "HH:MM" 24-hour clock;
// a close time earlier than the open time means the window crosses midnight.
type Shop struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID        `gorm:"column:owner_id;type:uuid;not null"`
	Name              string           `gorm:"column:name;not null"`
	OpenTime          string           `gorm:"column:open_time;not null;default:'08:00'"`
	CloseTime         string           `gorm:"column:close_time;not null;default:'17:00'"`
	ManualStatus      enums.ShopStatus `gorm:"column:manual_status;type:shop_status;not null;default:'auto'"`
	BankName          string           `gorm:"column:bank_name;not null;default:''"`
	BankAccountNumber string           `gorm:"column:bank_account_number;not null;default:''"`
	BankAccountHolder string           `gorm:"column:bank_account_holder;not null;default:''"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// IsOpenNow computes whether the shop accepts orders at the given instant.
// A manual override wins; otherwise the operating-hours window applies, with
// overnight wrap when the close time is earlier than the open time.
func (s Shop) IsOpenNow(now time.Time) bool {
	switch s.ManualStatus {
	case enums.ShopStatusOpen:
		return true
	case enums.ShopStatusClosed:
		return false
	}

	openAt, okOpen := parseClock(s.OpenTime)
	closeAt, okClose := parseClock(s.CloseTime)
	if !okOpen || !okClose {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if openAt == closeAt {
		return false
	}
	if closeAt > openAt {
		return minute >= openAt && minute < closeAt
	}
	// Overnight window, e.g. 22:00-06:00.
	return minute >= openAt || minute < closeAt
}

func parseClock(value string) (int, bool) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
