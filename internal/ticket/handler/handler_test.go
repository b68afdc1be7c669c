package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"zkattend/internal/audit"
	"zkattend/internal/commitment"
	"zkattend/internal/platform/middleware"
	"zkattend/internal/ticket/models"
	"zkattend/internal/ticket/service"
	"zkattend/internal/ticket/store"
)

// asUser injects the authenticated subject the way RequireAuth would.
func asUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.ContextKeySubjectID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type flatNoise struct{}

func (flatNoise) AddNoise(value, _ float64) (float64, error) { return value, nil }

func newTicketRouter(t *testing.T, userID string) http.Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	ledger := commitment.NewLedger(logger)
	nullifiers := commitment.NewInMemoryNullifierStore()

	svc, err := service.New(
		store.NewInMemory(),
		store.NewInMemoryRecords(),
		nil,
		ledger,
		nullifiers,
		commitment.NewProver(ledger, nullifiers, logger),
		flatNoise{},
		nil,
		audit.NewPublisher(audit.NewInMemoryStore()),
		logger,
	)
	if err != nil {
		t.Fatalf("build ticket service: %v", err)
	}

	r := chi.NewRouter()
	r.Use(asUser(userID))
	New(svc, logger).Register(r)
	return r
}

func mintVia(t *testing.T, router http.Handler) *models.Ticket {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"event_id": "evt1", "type": "free", "price": 0})
	req := httptest.NewRequest(http.MethodPost, "/tickets/mint", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 minting ticket, got %d: %s", rec.Code, rec.Body.String())
	}
	var ticket models.Ticket
	if err := json.NewDecoder(rec.Body).Decode(&ticket); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	return &ticket
}

func TestMintRequiresAuth(t *testing.T) {
	router := newTicketRouter(t, "")
	body, _ := json.Marshal(map[string]any{"event_id": "evt1", "type": "free"})
	req := httptest.NewRequest(http.MethodPost, "/tickets/mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without subject, got %d", rec.Code)
	}
}

func TestMintRejectsUnknownType(t *testing.T) {
	router := newTicketRouter(t, "bob")
	body, _ := json.Marshal(map[string]any{"event_id": "evt1", "type": "scalped"})
	req := httptest.NewRequest(http.MethodPost, "/tickets/mint", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestMintAndHasTicket(t *testing.T) {
	router := newTicketRouter(t, "bob")
	mintVia(t, router)

	req := httptest.NewRequest(http.MethodGet, "/tickets/has?event_id=evt1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for has check, got %d", rec.Code)
	}
	var resp map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode has response: %v", err)
	}
	if !resp["has_ticket"] {
		t.Fatalf("expected has_ticket true after mint")
	}
}

func TestVerifyAttendanceEndToEnd(t *testing.T) {
	router := newTicketRouter(t, "bob")
	mintVia(t, router)

	proofBody, _ := json.Marshal(map[string]any{"event_id": "evt1", "mode": "anonymous"})
	proofReq := httptest.NewRequest(http.MethodPost, "/tickets/proofs", bytes.NewReader(proofBody))
	proofRec := httptest.NewRecorder()
	router.ServeHTTP(proofRec, proofReq)
	if proofRec.Code != http.StatusCreated {
		t.Fatalf("expected 201 generating proof, got %d: %s", proofRec.Code, proofRec.Body.String())
	}
	var proof models.Proof
	if err := json.NewDecoder(proofRec.Body).Decode(&proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}

	verify := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]any{"event_id": "evt1", "proof": proof})
		req := httptest.NewRequest(http.MethodPost, "/tickets/verify", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := verify()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying proof, got %d", rec.Code)
	}
	var result models.VerifyResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode verify result: %v", err)
	}
	if !result.Verified || !result.Admitted {
		t.Fatalf("expected admission, got %+v", result)
	}

	// Same proof again is a replay.
	rec = verify()
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode replay result: %v", err)
	}
	if result.Verified || result.Reason != models.ReasonNullifierReused {
		t.Fatalf("expected NullifierReused on replay, got %+v", result)
	}
}

func TestVerifyAttendanceRequiresEventID(t *testing.T) {
	router := newTicketRouter(t, "station")
	body, _ := json.Marshal(map[string]any{"proof": nil})
	req := httptest.NewRequest(http.MethodPost, "/tickets/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without event_id, got %d", rec.Code)
	}
}

func TestTicketInfoAndStats(t *testing.T) {
	router := newTicketRouter(t, "bob")
	ticket := mintVia(t, router)

	infoReq := httptest.NewRequest(http.MethodGet, "/tickets/"+ticket.TicketID, nil)
	infoRec := httptest.NewRecorder()
	router.ServeHTTP(infoRec, infoReq)
	if infoRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for ticket info, got %d", infoRec.Code)
	}
	var info models.Info
	if err := json.NewDecoder(infoRec.Body).Decode(&info); err != nil {
		t.Fatalf("decode ticket info: %v", err)
	}
	if info.TicketID != ticket.TicketID || info.Used {
		t.Fatalf("unexpected ticket info %+v", info)
	}

	statsReq := httptest.NewRequest(http.MethodGet, "/tickets/stats?event_id=evt1", nil)
	statsRec := httptest.NewRecorder()
	router.ServeHTTP(statsRec, statsReq)
	if statsRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for event stats, got %d", statsRec.Code)
	}
	var stats models.EventStats
	if err := json.NewDecoder(statsRec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode event stats: %v", err)
	}
	if stats.TotalTicketsDP != 1 {
		t.Fatalf("expected noiseless total 1, got %g", stats.TotalTicketsDP)
	}

	missingReq := httptest.NewRequest(http.MethodGet, "/tickets/ticket_missing", nil)
	missingRec := httptest.NewRecorder()
	router.ServeHTTP(missingRec, missingReq)
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown ticket, got %d", missingRec.Code)
	}
}
