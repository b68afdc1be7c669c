// Package handler wires reputation endpoints to the reputation service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"zkattend/internal/platform/middleware"
	"zkattend/internal/reputation/models"
	dErrors "zkattend/pkg/domain-errors"
	"zkattend/pkg/platform/httputil"
)

// Service defines the interface for reputation operations.
type Service interface {
	RecordAttendance(ctx context.Context, userID, eventID, eventType string) (*models.RecordResult, error)
	PredictTrajectory(ctx context.Context, userID string, steps int) ([]models.TrajectoryStep, error)
	GenerateProof(ctx context.Context, userID, statement string) (*models.Proof, error)
	VerifyProof(ctx context.Context, proof *models.Proof) models.ProofResult
	Stats(ctx context.Context) (*models.Stats, error)
	PrivatizedMatrix(ctx context.Context) map[string][]float64
	Export(ctx context.Context, userID string) (*models.Export, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts reputation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/reputation/attendance", h.HandleRecordAttendance)
	r.Get("/reputation/trajectory", h.HandleTrajectory)
	r.Post("/reputation/proofs", h.HandleGenerateProof)
	r.Post("/reputation/proofs/verify", h.HandleVerifyProof)
	r.Get("/reputation/stats", h.HandleStats)
	r.Get("/reputation/matrix", h.HandleMatrix)
	r.Get("/reputation/export", h.HandleExport)
}

type recordAttendanceRequest struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
}

// HandleRecordAttendance handles POST /reputation/attendance.
func (h *Handler) HandleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.Decode[recordAttendanceRequest](w, r, h.logger)
	if !ok {
		return
	}

	result, err := h.service.RecordAttendance(ctx, userID, req.EventID, req.EventType)
	if err != nil {
		h.logger.ErrorContext(ctx, "record attendance failed",
			"request_id", middleware.GetRequestID(ctx),
			"event_id", req.EventID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleTrajectory handles GET /reputation/trajectory?steps=N.
func (h *Handler) HandleTrajectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	steps := 5
	if raw := r.URL.Query().Get("steps"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "steps must be an integer"))
			return
		}
		steps = parsed
	}

	trajectory, err := h.service.PredictTrajectory(ctx, userID, steps)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"trajectory": trajectory})
}

type generateProofRequest struct {
	Statement string `json:"statement"`
}

// HandleGenerateProof handles POST /reputation/proofs.
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

	proof, err := h.service.GenerateProof(ctx, userID, req.Statement)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, proof)
}

// HandleVerifyProof handles POST /reputation/proofs/verify. The body is an
// untrusted proof bundle; rejections are results, never errors.
func (h *Handler) HandleVerifyProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proof, ok := httputil.Decode[models.Proof](w, r, h.logger)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.service.VerifyProof(ctx, &proof))
}

// HandleStats handles GET /reputation/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleMatrix handles GET /reputation/matrix.
func (h *Handler) HandleMatrix(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"transition_matrix": h.service.PrivatizedMatrix(r.Context()),
	})
}

// HandleExport handles GET /reputation/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetSubjectID(ctx)
	if userID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	export, err := h.service.Export(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}
