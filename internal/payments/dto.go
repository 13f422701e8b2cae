package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitiateInput starts a gateway payment covering one or more orders.
type InitiateInput struct {
	CustomerID uuid.UUID
	OrderIDs   []uuid.UUID
}

// InitiateResult is returned to the customer so the frontend can open the
// payment page.
type InitiateResult struct {
	ReferenceCode string
	Token         string
	RedirectURL   string
	GrossAmount   decimal.Decimal
}

// ManualOutcome is the status the redirect page reports when the customer
// lands back on the app before the webhook arrives.
type ManualOutcome string

const (
	ManualOutcomeSuccess ManualOutcome = "success"
	ManualOutcomePending ManualOutcome = "pending"
	ManualOutcomeError   ManualOutcome = "error"
)

// ManualUpdateInput is the redirect-page fallback request.
type ManualUpdateInput struct {
	CustomerID uuid.UUID
	OrderIDs   []uuid.UUID
	Outcome    ManualOutcome
}
