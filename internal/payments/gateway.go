package payments

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/midtrans"
)

// GatewayItem is a line item forwarded to the payment page.
type GatewayItem struct {
	ID         string
	Name       string
	PriceCents int64
	Qty        int
}

// GatewayRequest carries everything the provider needs to create a charge.
type GatewayRequest struct {
	ReferenceCode string
	GrossAmount   decimal.Decimal
	CustomerID    uuid.UUID
	Items         []GatewayItem
}

// GatewayResult is what the frontend needs to open the payment page.
type GatewayResult struct {
	Token       string
	RedirectURL string
}

// Callback is a gateway-agnostic view of a payment notification.
type Callback struct {
	ReferenceCode string
	RawStatus     string
	Paid          bool
	Failed        bool
}

// Gateway abstracts the payment provider so the reconciliation service never
// sees provider-specific types.
type Gateway interface {
	CreateTransaction(ctx context.Context, req GatewayRequest) (*GatewayResult, error)
	ParseCallback(body io.Reader) (*Callback, error)
}

type midtransGateway struct {
	client *midtrans.Client
	expiry time.Duration
}

// NewMidtransGateway adapts the Midtrans Snap client to the Gateway surface.
// When expiry is positive the payment page is bounded to that window so the
// gateway stops accepting payments around the same time the sweeper reaps the
// order.
func NewMidtransGateway(client *midtrans.Client, expiry time.Duration) Gateway {
	return &midtransGateway{client: client, expiry: expiry}
}

func (g *midtransGateway) CreateTransaction(ctx context.Context, req GatewayRequest) (*GatewayResult, error) {
	snapReq := midtrans.SnapRequest{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:     req.ReferenceCode,
			GrossAmount: req.GrossAmount,
		},
	}
	cents := decimal.NewFromInt(100)
	for _, item := range req.Items {
		snapReq.ItemDetails = append(snapReq.ItemDetails, midtrans.ItemDetail{
			ID:       item.ID,
			Name:     item.Name,
			Price:    decimal.NewFromInt(item.PriceCents).Div(cents),
			Quantity: item.Qty,
		})
	}
	if req.CustomerID != uuid.Nil {
		// No customer profile is stored here; the account id still ties the
		// charge to a customer on the gateway dashboard.
		snapReq.CustomerDetails = &midtrans.CustomerDetails{FirstName: req.CustomerID.String()}
	}
	if g.expiry > 0 {
		snapReq.Expiry = &midtrans.SnapExpiry{Unit: "minute", Duration: int(g.expiry.Minutes())}
	}

	resp, err := g.client.CreateTransaction(ctx, snapReq)
	if err != nil {
		if upstream, ok := err.(*midtrans.UpstreamError); ok {
			return nil, pkgerrors.WithDetails(
				pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway rejected transaction"),
				map[string]any{
					"http_status": upstream.HTTPStatus,
					"upstream":    upstream.Body,
				},
			)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment gateway unreachable")
	}
	return &GatewayResult{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (g *midtransGateway) ParseCallback(body io.Reader) (*Callback, error) {
	n, err := midtrans.ParseNotification(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification payload")
	}
	if !n.VerifySignature(g.client.ServerKey()) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid notification signature")
	}
	return &Callback{
		ReferenceCode: n.OrderID,
		RawStatus:     n.TransactionStatus,
		Paid:          n.IsPaid(),
		Failed:        n.IsFailed(),
	}, nil
}
