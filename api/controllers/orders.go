package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/andikaprasetya/kantin-backend/api/responses"
	"github.com/andikaprasetya/kantin-backend/api/validators"
	internalorders "github.com/andikaprasetya/kantin-backend/internal/orders"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

type createOrderItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Qty        int    `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	ShopID        string                   `json:"shop_id" validate:"required,uuid"`
	PaymentMethod string                   `json:"payment_method" validate:"required,oneof=cash transfer ewallet gateway other"`
	Notes         *string                  `json:"notes,omitempty" validate:"omitempty,max=500"`
	Items         []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderItemResponse struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  string `json:"unit_price"`
	Qty        int    `json:"qty"`
	Subtotal   string `json:"subtotal"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	ShopID           string              `json:"shop_id"`
	Status           string              `json:"status"`
	PaymentMethod    string              `json:"payment_method"`
	Total            string              `json:"total"`
	TotalCents       int64               `json:"total_cents"`
	PaymentGroupCode *string             `json:"payment_group_code,omitempty"`
	Notes            *string             `json:"notes,omitempty"`
	CancelledAt      *time.Time          `json:"cancelled_at,omitempty"`
	Items            []orderItemResponse `json:"items"`
	CreatedAt        time.Time           `json:"created_at"`
}

func newOrderResponse(order models.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			MenuItemID: item.MenuItemID.String(),
			Name:       item.Name,
			UnitPrice:  centsToAmount(item.UnitPriceCents),
			Qty:        item.Qty,
			Subtotal:   centsToAmount(item.SubtotalCents),
		})
	}
	return orderResponse{
		ID:               order.ID.String(),
		ShopID:           order.ShopID.String(),
		Status:           string(order.Status),
		PaymentMethod:    string(order.PaymentMethod),
		Total:            centsToAmount(order.TotalCents),
		TotalCents:       order.TotalCents,
		PaymentGroupCode: order.PaymentGroupCode,
		Notes:            order.Notes,
		CancelledAt:      order.CancelledAt,
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
}

func newOrderListResponse(orders []models.Order) []orderResponse {
	list := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		list = append(list, newOrderResponse(order))
	}
	return list
}

func centsToAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// CreateOrder places a new order for the authenticated customer.
func CreateOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shopID, err := uuid.Parse(req.ShopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shop id"))
			return
		}

		lines := make([]internalorders.OrderLineInput, 0, len(req.Items))
		for _, item := range req.Items {
			menuItemID, err := uuid.Parse(item.MenuItemID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid menu item id"))
				return
			}
			lines = append(lines, internalorders.OrderLineInput{MenuItemID: menuItemID, Qty: item.Qty})
		}

		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			CustomerID:    customerID,
			ShopID:        shopID,
			PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
			Notes:         req.Notes,
			Lines:         lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(*order))
	}
}

// ListOrders pages through the authenticated customer's orders.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := parseOrderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, next, err := svc.ListForCustomer(r.Context(), customerID, *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, newOrderListResponse(orders), next)
	}
}

// OrderDetail returns one order after checking customer ownership.
func OrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetForCustomer(r.Context(), customerID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(*order))
	}
}

// TenantOrders pages through the tenant shop's incoming orders.
func TenantOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		shopID, err := requireShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := parseOrderListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, next, err := svc.ListForShop(r.Context(), shopID, *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, newOrderListResponse(orders), next)
	}
}

type orderTransitionRequest struct {
	Target string `json:"target" validate:"required,oneof=processing completed received cancelled"`
}

// OrderTransition moves an order along its lifecycle on behalf of shop staff
// or an admin. Ownership checks live in the orders service: tenants are bound
// to their own shop while admins may act on any order.
func OrderTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shopID, err := actorShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req orderTransitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:     orderID,
			Target:      enums.OrderStatus(req.Target),
			ActorUserID: userID,
			ActorRole:   actorRole(r),
			ActorShopID: shopID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": req.Target})
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}

func parseOrderListInput(r *http.Request) (*internalorders.ListInput, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return nil, err
	}

	input := internalorders.ListInput{
		Page: pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		},
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := enums.OrderStatus(raw)
		if !status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status").WithDetails(map[string]any{"status": raw})
		}
		input.Status = &status
	}
	return &input, nil
}
