package orders

import (
	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

// OrderLineInput is one requested menu item.
type OrderLineInput struct {
	MenuItemID uuid.UUID
	Qty        int
}

// CreateInput captures everything needed to place an order.
type CreateInput struct {
	CustomerID    uuid.UUID
	ShopID        uuid.UUID
	PaymentMethod enums.PaymentMethod
	Notes         *string
	Lines         []OrderLineInput
}

// TransitionInput carries a manual status change request.
type TransitionInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   enums.ActorRole
	ActorShopID *uuid.UUID
}

// ListInput filters and paginates order listings.
type ListInput struct {
	Status *enums.OrderStatus
	Page   pagination.Params
}
