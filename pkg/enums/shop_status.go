package enums

import "fmt"

// ShopStatus is the manual open/closed override for a shop. The "auto" value
// defers to the shop's operating hours.
type ShopStatus string

const (
	ShopStatusAuto   ShopStatus = "auto"
	ShopStatusOpen   ShopStatus = "open"
	ShopStatusClosed ShopStatus = "closed"
)

var validShopStatuses = []ShopStatus{
	ShopStatusAuto,
	ShopStatusOpen,
	ShopStatusClosed,
}

// String implements fmt.Stringer.
func (s ShopStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShopStatus.
func (s ShopStatus) IsValid() bool {
	for _, candidate := range validShopStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseShopStatus converts raw input into a ShopStatus.
func ParseShopStatus(value string) (ShopStatus, error) {
	for _, candidate := range validShopStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shop status %q", value)
}
