package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civlily/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got == "" {
		t.Fatal("expected Referrer-Policy to be set")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("unexpected CORS origin %q", got)
	}
}

func TestOptionsPreflightShortCircuits(t *testing.T) {
	handler := newTestHandler(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "DELETE") {
		t.Fatal("expected DELETE in allowed methods")
	}
}

func TestMutationsRequireCSRFToken(t *testing.T) {
	handler := newTestHandler(t)
	token := loginAs(t, handler, "ADMIN001", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, "", domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, "garbage-token", domain.SaleCreateRequest{
		Items: []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with bogus CSRF token, got %d", rec.Code)
	}
}

func TestCSRFTokenHourBucketWindow(t *testing.T) {
	api := &API{csrfSecret: []byte("csrf-test-secret")}

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatal("token for the current bucket must validate")
	}

	prevBucket := time.Now().UTC().Truncate(time.Hour).Unix() - 3600
	if !api.validateCSRFToken(api.csrfTokenForHour(prevBucket)) {
		t.Fatal("token issued in the previous hour must still validate")
	}

	staleBucket := prevBucket - 3600
	if api.validateCSRFToken(api.csrfTokenForHour(staleBucket)) {
		t.Fatal("token older than two buckets must be rejected")
	}
	if api.validateCSRFToken("") {
		t.Fatal("empty token must be rejected")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	handler := newTestHandler(t)
	body, _ := json.Marshal(domain.LoginRequest{Login: "nobody", Password: "wrong-pass"})

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the sixth attempt, got %d", last)
	}

	// A different client keeps its own budget.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.9:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a fresh client, got %d", rec.Code)
	}
}

func TestAttemptLimiterWindowExpiry(t *testing.T) {
	limiter := newAttemptLimiter(2, 50*time.Millisecond)

	if !limiter.Allow("k") || !limiter.Allow("k") {
		t.Fatal("first two attempts must pass")
	}
	if limiter.Allow("k") {
		t.Fatal("third attempt within the window must fail")
	}

	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("k") {
		t.Fatal("attempt after the window must pass again")
	}
}

func TestOversizedJSONBodyRejected(t *testing.T) {
	handler := newTestHandler(t)
	csrf := csrfToken(t, handler)
	token := loginAs(t, handler, "ADMIN001", "admin123")

	huge := `{"branch_id":"b-main","items":[],"payment_method":"` + strings.Repeat("x", 2<<20) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(huge))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestMethodNotAllowedOnLogin(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/auth/login", "", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, errDetailLeak{})

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "internal server error" {
		t.Fatalf("5xx bodies must not leak details, got %q", resp.Error)
	}
}

type errDetailLeak struct{}

func (errDetailLeak) Error() string { return "pq: column users.secret does not exist" }
