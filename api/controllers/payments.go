package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/api/responses"
	"github.com/andikaprasetya/kantin-backend/api/validators"
	"github.com/andikaprasetya/kantin-backend/internal/payments"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
)

type initiatePaymentRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,dive,uuid"`
}

type initiatePaymentResponse struct {
	ReferenceCode string `json:"reference_code"`
	Token         string `json:"token"`
	RedirectURL   string `json:"redirect_url"`
	GrossAmount   string `json:"gross_amount"`
}

// InitiatePayment opens a gateway payment covering one or more pending orders.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req initiatePaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderIDs, err := parseUUIDs(req.OrderIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Initiate(r.Context(), payments.InitiateInput{
			CustomerID: customerID,
			OrderIDs:   orderIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, initiatePaymentResponse{
			ReferenceCode: result.ReferenceCode,
			Token:         result.Token,
			RedirectURL:   result.RedirectURL,
			GrossAmount:   result.GrossAmount.StringFixed(2),
		})
	}
}

type paymentStatusRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,dive,uuid"`
	Outcome  string   `json:"outcome" validate:"required,oneof=success pending error"`
}

// PaymentStatusUpdate is the redirect-page fallback for when the gateway
// webhook has not arrived yet.
func PaymentStatusUpdate(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		customerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req paymentStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderIDs, err := parseUUIDs(req.OrderIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.ManualUpdate(r.Context(), payments.ManualUpdateInput{
			CustomerID: customerID,
			OrderIDs:   orderIDs,
			Outcome:    payments.ManualOutcome(req.Outcome),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": req.Outcome})
	}
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
