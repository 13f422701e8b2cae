package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/andikaprasetya/kantin-backend/api/responses"
	"github.com/andikaprasetya/kantin-backend/api/validators"
	"github.com/andikaprasetya/kantin-backend/internal/settlements"
	"github.com/andikaprasetya/kantin-backend/pkg/db/models"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
	"github.com/andikaprasetya/kantin-backend/pkg/pagination"
)

type balanceResponse struct {
	Earned    string `json:"earned"`
	Held      string `json:"held"`
	Available string `json:"available"`
}

type settlementResponse struct {
	ID                string     `json:"id"`
	Amount            string     `json:"amount"`
	AmountCents       int64      `json:"amount_cents"`
	Status            string     `json:"status"`
	BankName          string     `json:"bank_name"`
	BankAccountNumber string     `json:"bank_account_number"`
	BankAccountHolder string     `json:"bank_account_holder"`
	Notes             *string    `json:"notes,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func newSettlementResponse(settlement models.Settlement) settlementResponse {
	return settlementResponse{
		ID:                settlement.ID.String(),
		Amount:            centsToAmount(settlement.AmountCents),
		AmountCents:       settlement.AmountCents,
		Status:            string(settlement.Status),
		BankName:          settlement.BankName,
		BankAccountNumber: settlement.BankAccountNumber,
		BankAccountHolder: settlement.BankAccountHolder,
		Notes:             settlement.Notes,
		ProcessedAt:       settlement.ProcessedAt,
		CreatedAt:         settlement.CreatedAt,
	}
}

// TenantBalance reports the shop's withdrawable balance.
func TenantBalance(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		shopID, err := requireShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.AvailableBalance(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{
			Earned:    centsToAmount(balance.EarnedCents),
			Held:      centsToAmount(balance.HeldCents),
			Available: centsToAmount(balance.AvailableCents),
		})
	}
}

// TenantSettlements pages through the shop's withdrawal history.
func TenantSettlements(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		shopID, err := requireShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.ListForShop(r.Context(), shopID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list := make([]settlementResponse, 0, len(rows))
		for _, row := range rows {
			list = append(list, newSettlementResponse(row))
		}
		responses.WriteList(w, list, next)
	}
}

// TenantPendingWithdrawals reports the total amount locked in open
// withdrawals.
func TenantPendingWithdrawals(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		shopID, err := requireShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pendingCents, err := svc.PendingWithdrawals(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"pending":       centsToAmount(pendingCents),
			"pending_cents": pendingCents,
		})
	}
}

type withdrawalRequest struct {
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	Notes       *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// TenantWithdraw opens a withdrawal against the shop's available balance.
func TenantWithdraw(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		shopID, err := requireShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req withdrawalRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		settlement, err := svc.RequestWithdrawal(r.Context(), settlements.WithdrawalInput{
			ShopID:      shopID,
			AmountCents: req.AmountCents,
			Notes:       req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newSettlementResponse(*settlement))
	}
}

type settlementTransitionRequest struct {
	Target string `json:"target" validate:"required,oneof=processing completed failed"`
}

// AdminSettlementTransition advances a withdrawal through its lifecycle.
func AdminSettlementTransition(svc settlements.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlements service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "settlementId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "settlement id is required"))
			return
		}
		settlementID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid settlement id"))
			return
		}

		var req settlementTransitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err = svc.Advance(r.Context(), settlements.AdvanceInput{
			SettlementID: settlementID,
			Target:       enums.SettlementStatus(req.Target),
			ActorRole:    actorRole(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": req.Target})
	}
}
