package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/andikaprasetya/kantin-backend/pkg/auth"
	"github.com/andikaprasetya/kantin-backend/pkg/config"
	"github.com/andikaprasetya/kantin-backend/pkg/enums"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "test-secret-please-rotate",
	Issuer:            "kantin-test",
	ExpirationMinutes: 60,
}

func mintTestToken(t *testing.T, role enums.ActorRole, shopID *uuid.UUID) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := pkgauth.MintAccessToken(testJWTConfig, time.Now(), pkgauth.AccessTokenPayload{
		UserID: userID,
		ShopID: shopID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID
}

func authProbe(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *http.Request) {
	t.Helper()

	var captured *http.Request
	handler := Auth(testJWTConfig, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestAuthRejectsMissingToken(t *testing.T) {
	t.Parallel()

	rec, captured := authProbe(t, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if captured != nil {
		t.Fatal("handler must not run without credentials")
	}
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	t.Parallel()

	rec, captured := authProbe(t, "Bearer not.a.jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if captured != nil {
		t.Fatal("handler must not run with an invalid token")
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	otherCfg := testJWTConfig
	otherCfg.Secret = "someone-elses-secret"
	token, err := pkgauth.MintAccessToken(otherCfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.ActorRoleCustomer,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	rec, _ := authProbe(t, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthSeedsCustomerContext(t *testing.T) {
	t.Parallel()

	token, userID := mintTestToken(t, enums.ActorRoleCustomer, nil)
	rec, captured := authProbe(t, "Bearer "+token)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if captured == nil {
		t.Fatal("handler did not run")
	}
	if got := UserIDFromContext(captured.Context()); got != userID.String() {
		t.Fatalf("expected user id %s, got %q", userID, got)
	}
	if got := RoleFromContext(captured.Context()); got != string(enums.ActorRoleCustomer) {
		t.Fatalf("unexpected role %q", got)
	}
	if got := ShopIDFromContext(captured.Context()); got != "" {
		t.Fatalf("customer token must not carry a shop id, got %q", got)
	}
}

func TestAuthSeedsTenantShopContext(t *testing.T) {
	t.Parallel()

	shopID := uuid.New()
	token, _ := mintTestToken(t, enums.ActorRoleTenant, &shopID)
	rec, captured := authProbe(t, "Bearer "+token)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := ShopIDFromContext(captured.Context()); got != shopID.String() {
		t.Fatalf("expected shop id %s, got %q", shopID, got)
	}
}
