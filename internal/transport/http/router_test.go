package httptransport

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"zkattend/internal/jwttoken"
)

type pingHandler struct{}

func (pingHandler) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func newTestRouter() (http.Handler, *jwttoken.Service) {
	logger := slog.New(slog.DiscardHandler)
	jwtService := jwttoken.NewService("test-signing-key", "zkattend", "zkattend")
	return NewRouter(logger, jwtService, pingHandler{}), jwtService
}

func TestHealthzOutsideAuthBoundary(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for healthz, got %d", rec.Code)
	}
}

func TestMetricsOutsideAuthBoundary(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics, got %d", rec.Code)
	}
}

func TestFeatureRoutesRequireBearerToken(t *testing.T) {
	router, jwtService := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	badReq := httptest.NewRequest(http.MethodGet, "/ping", nil)
	badReq.Header.Set("Authorization", "Bearer not-a-token")
	badRec := httptest.NewRecorder()
	router.ServeHTTP(badRec, badReq)
	if badRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", badRec.Code)
	}

	token, err := jwtService.GenerateAccessToken("bob", "station-1", time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	okReq := httptest.NewRequest(http.MethodGet, "/ping", nil)
	okReq.Header.Set("Authorization", "Bearer "+token)
	okRec := httptest.NewRecorder()
	router.ServeHTTP(okRec, okReq)
	if okRec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with valid token, got %d", okRec.Code)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected inbound request id echoed, got %q", got)
	}
}
