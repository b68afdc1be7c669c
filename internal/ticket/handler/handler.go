// Package handler wires ticket endpoints to the ticket service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkattend/internal/platform/middleware"
	"zkattend/internal/ticket/models"
	dErrors "zkattend/pkg/domain-errors"
	"zkattend/pkg/platform/httputil"
)

// Service defines the interface for ticket operations.
type Service interface {
	Mint(ctx context.Context, eventID, userID string, typ models.Type, price float64) (*models.Ticket, error)
	HasTicket(ctx context.Context, eventID, userID string) (bool, error)
	GenerateProof(ctx context.Context, eventID, userID string, mode models.DisclosureMode, age, minAge int) (*models.Proof, error)
	VerifyAttendance(ctx context.Context, eventID string, proof *models.Proof, requiredMode models.DisclosureMode) (models.VerifyResult, error)
	EventStats(ctx context.Context, eventID string) (*models.EventStats, error)
	TicketInfo(ctx context.Context, ticketID string) (*models.Info, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ticket endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/tickets/mint", h.HandleMint)
	r.Get("/tickets/has", h.HandleHasTicket)
	r.Post("/tickets/proofs", h.HandleGenerateProof)
	r.Post("/tickets/verify", h.HandleVerifyAttendance)
	r.Get("/tickets/stats", h.HandleEventStats)
	r.Get("/tickets/{ticketID}", h.HandleTicketInfo)
}

type mintRequest struct {
	EventID string  `json:"event_id"`
	Type    string  `json:"type"`
	Price   float64 `json:"price"`
}

// HandleMint handles POST /tickets/mint.
func (h *Handler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.Decode[mintRequest](w, r, h.logger)
	if !ok {
		return
	}
	typ, err := models.ParseType(req.Type)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ticket, err := h.service.Mint(ctx, req.EventID, userID, typ, req.Price)
	if err != nil {
		h.logger.ErrorContext(ctx, "ticket mint failed",
			"request_id", middleware.GetRequestID(ctx),
			"event_id", req.EventID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ticket)
}

// HandleHasTicket handles GET /tickets/has?event_id=E.
func (h *Handler) HandleHasTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event_id is required"))
		return
	}

	has, err := h.service.HasTicket(ctx, eventID, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"has_ticket": has})
}

type generateProofRequest struct {
	EventID string `json:"event_id"`
	Mode    string `json:"mode"`
	Age     int    `json:"age"`
	MinAge  int    `json:"min_age"`
}

// HandleGenerateProof handles POST /tickets/proofs.
func (h *Handler) HandleGenerateProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.Decode[generateProofRequest](w, r, h.logger)
	if !ok {
		return
	}
	mode, err := models.ParseMode(req.Mode)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	proof, err := h.service.GenerateProof(ctx, req.EventID, userID, mode, req.Age, req.MinAge)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proof)
}

type verifyRequest struct {
	EventID      string        `json:"event_id"`
	RequiredMode string        `json:"required_mode"`
	Proof        *models.Proof `json:"proof"`
}

// HandleVerifyAttendance handles POST /tickets/verify. Verifier stations
// call this; the proof body is untrusted and rejections come back as
// structured results.
func (h *Handler) HandleVerifyAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[verifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.EventID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event_id is required"))
		return
	}

	requiredMode := models.DisclosureMode(req.RequiredMode)
	if req.RequiredMode != "" && !requiredMode.Valid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown required_mode"))
		return
	}

	result, err := h.service.VerifyAttendance(ctx, req.EventID, req.Proof, requiredMode)
	if err != nil {
		h.logger.ErrorContext(ctx, "attendance verification failed",
			"request_id", middleware.GetRequestID(ctx),
			"station_id", middleware.GetStationID(ctx),
			"event_id", req.EventID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleEventStats handles GET /tickets/stats?event_id=E.
func (h *Handler) HandleEventStats(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("event_id")
	if eventID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "event_id is required"))
		return
	}

	stats, err := h.service.EventStats(r.Context(), eventID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleTicketInfo handles GET /tickets/{ticketID}. The view never includes
// the owner.
func (h *Handler) HandleTicketInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.TicketInfo(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}
