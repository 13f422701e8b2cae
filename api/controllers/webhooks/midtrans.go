package webhooks

import (
	"net/http"
	"time"

	"github.com/andikaprasetya/kantin-backend/api/responses"
	"github.com/andikaprasetya/kantin-backend/internal/payments"
	pkgerrors "github.com/andikaprasetya/kantin-backend/pkg/errors"
	"github.com/andikaprasetya/kantin-backend/pkg/logger"
	pkgredis "github.com/andikaprasetya/kantin-backend/pkg/redis"
)

const notificationTTL = 24 * time.Hour

// MidtransNotification receives payment status notifications from the
// gateway. Signature verification happens during parsing; a Redis marker
// absorbs duplicate deliveries before they reach the service.
func MidtransNotification(svc payments.Service, gateway payments.Gateway, store pkgredis.IdempotencyStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || gateway == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		cb, err := gateway.ParseCallback(r.Body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var replayKey string
		if store != nil {
			replayKey = store.IdempotencyKey("midtrans", cb.ReferenceCode+":"+cb.RawStatus)
			fresh, err := store.SetNX(r.Context(), replayKey, "1", notificationTTL)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check notification replay"))
				return
			}
			if !fresh {
				if logg != nil {
					ctx := logg.WithFields(r.Context(), map[string]any{
						"reference_code": cb.ReferenceCode,
						"raw_status":     cb.RawStatus,
					})
					logg.Info(ctx, "duplicate gateway notification ignored")
				}
				responses.WriteSuccess(w, map[string]string{"status": "ok"})
				return
			}
		}

		if err := svc.HandleCallback(r.Context(), cb); err != nil {
			// Release the marker so the gateway retry is processed instead of
			// being absorbed as a duplicate of a delivery that never applied.
			if store != nil && replayKey != "" {
				if delErr := store.Del(r.Context(), replayKey); delErr != nil && logg != nil {
					logg.Warn(logg.WithFields(r.Context(), map[string]any{
						"reference_code": cb.ReferenceCode,
						"error":          delErr.Error(),
					}), "failed to release notification replay marker")
				}
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}
