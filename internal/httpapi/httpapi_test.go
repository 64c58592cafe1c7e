package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aynpos/backend/internal/cache"
	"aynpos/backend/internal/domain"
	"aynpos/backend/internal/ledger/memory"
	"aynpos/backend/internal/service"
)

// newTestAPI builds a full API with an in-memory ledger, real AuthManager
// and real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopReportCache{}, nil, nil, 10)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)

	return New(svc, auth, nil, nil, nil, "*")
}

func loginAs(t *testing.T, api *API, handler http.Handler, username string, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s failed: %d (%s)", username, rec.Code, rec.Body.String())
	}
	var body domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if body.Token == "" {
		t.Fatalf("expected a token for %s", username)
	}
	return body.Token
}

func doJSON(t *testing.T, api *API, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", api.generateCSRFToken())
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrongpassword"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestLoginRateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{"username": "admin", "password": "badpass"})
	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", last)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRefundRouteRejectsCashier(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/refunds", token, map[string]any{
		"saleId": "sale-whatever",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier refund, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestMutatingRequestRequiresCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, handler, "admin", "admin123")

	payload, _ := json.Marshal(map[string]any{"openingCashCents": 1000})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/open", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}
}

func TestCheckoutFlowEndToEnd(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, handler, "cashier", "cashier123")

	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/open", token, map[string]any{
		"openingCashCents": 10000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{
		"paymentMethod":     "cash",
		"cashReceivedCents": 1000,
		"taxExempt":         true,
		"items":             []map[string]any{{"productId": "prod-water", "qty": 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var sale domain.Sale
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.TotalCents != 300 || sale.ChangeCents != 700 {
		t.Fatalf("unexpected sale totals: %+v", sale)
	}

	rec = doJSON(t, api, handler, http.MethodGet, "/api/v1/sales/"+sale.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/close", token, map[string]any{
		"countedCashCents": 10300,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close shift: expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var shift domain.CashShift
	if err := json.NewDecoder(rec.Body).Decode(&shift); err != nil {
		t.Fatalf("decode shift: %v", err)
	}
	if shift.DifferenceCents != 0 {
		t.Fatalf("expected balanced drawer, got difference %d", shift.DifferenceCents)
	}
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, handler, "admin", "admin123")

	// Closing with no open shift maps ErrNoOpenShift to 409.
	rec := doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/close", token, map[string]any{
		"countedCashCents": 0,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 with no open shift, got %d (%s)", rec.Code, rec.Body.String())
	}

	// Unknown sale maps ErrNotFound to 404.
	rec = doJSON(t, api, handler, http.MethodGet, "/api/v1/sales/sale-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing sale, got %d", rec.Code)
	}

	// Unknown fields in the body map to 400.
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/open", token, map[string]any{
		"openingCashCents": 100,
		"surprise":         true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d (%s)", rec.Code, rec.Body.String())
	}

	// An overdrawn bank transfer maps ErrInsufficientCash to 422.
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/open", token, map[string]any{
		"openingCashCents": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open shift: expected 201, got %d", rec.Code)
	}
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/shifts/bank-transfer", token, map[string]any{
		"amountCents": 100000,
		"reference":   "TRX-OVER",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdrawn transfer, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestUserManagementAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	cashierToken := loginAs(t, api, handler, "cashier", "cashier123")
	rec := doJSON(t, api, handler, http.MethodGet, "/api/v1/users", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	adminToken := loginAs(t, api, handler, "admin", "admin123")
	rec = doJSON(t, api, handler, http.MethodPost, "/api/v1/users", adminToken, map[string]any{
		"username": "barista",
		"password": "grindfinely",
		"role":     "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}

	loginAs(t, api, handler, "barista", "grindfinely")
}

func TestDailyReportQuery(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, handler, "admin", "admin123")

	day := time.Now().UTC().Format("2006-01-02")
	rec := doJSON(t, api, handler, http.MethodGet, fmt.Sprintf("/api/v1/reports/daily?date=%s", day), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, handler, http.MethodGet, "/api/v1/reports/daily?date=not-a-date", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad date, got %d", rec.Code)
	}
}
