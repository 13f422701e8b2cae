package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeIdempotencyStore struct {
	records map[string]string
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{records: map[string]string{}}
}

func (s *fakeIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return s.records[key], nil
}

func (s *fakeIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = value.(string)
	return true, nil
}

func (s *fakeIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.records, key)
	}
	return nil
}

func (s *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "kantin:test:idempotency:" + scope + ":" + id
}

func idempotencyHarness(store *fakeIdempotencyStore, calls *atomic.Int32) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"order-1"}}`))
	})
	return Idempotency(store, nil)(inner)
}

func postOrder(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	req = req.WithContext(WithUserID(req.Context(), "user-1"))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyRequiresKeyOnGuardedRoute(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := idempotencyHarness(newFakeIdempotencyStore(), &calls)

	rec := postOrder(handler, "", `{"shop_id":"s"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatal("handler must not run without a key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := idempotencyHarness(newFakeIdempotencyStore(), &calls)

	first := postOrder(handler, "key-1", `{"shop_id":"s"}`)
	if first.Code != http.StatusCreated {
		t.Fatalf("first call: expected 201, got %d", first.Code)
	}

	second := postOrder(handler, "key-1", `{"shop_id":"s"}`)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay: expected 201, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", second.Body.String(), first.Body.String())
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := idempotencyHarness(newFakeIdempotencyStore(), &calls)

	if rec := postOrder(handler, "key-1", `{"shop_id":"s"}`); rec.Code != http.StatusCreated {
		t.Fatalf("first call: expected 201, got %d", rec.Code)
	}

	rec := postOrder(handler, "key-1", `{"shop_id":"other"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on reused key, got %d", rec.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler should not rerun, ran %d times", calls.Load())
	}
}

func TestIdempotencySkipsUnguardedRoutes(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	handler := idempotencyHarness(newFakeIdempotencyStore(), &calls)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if calls.Load() != 1 {
		t.Fatal("handler should run without a key on unguarded routes")
	}
}
