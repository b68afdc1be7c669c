// Package handler exposes the privacy layer's aggregate metrics and batch
// proof verification.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zkattend/internal/commitment"
	"zkattend/pkg/platform/httputil"
)

// Prover defines the interface for privacy-layer reads.
type Prover interface {
	PrivacyMetrics(ctx context.Context) (commitment.Metrics, error)
	BatchVerify(ctx context.Context, proofs []*commitment.StatementProof) (map[string]commitment.VerifyResult, error)
}

type Handler struct {
	prover Prover
	logger *slog.Logger
}

func New(prover Prover, logger *slog.Logger) *Handler {
	return &Handler{prover: prover, logger: logger}
}

// Register mounts privacy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/privacy/stats", h.HandleStats)
	r.Post("/privacy/proofs/batch-verify", h.HandleBatchVerify)
}

// HandleStats handles GET /privacy/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.prover.PrivacyMetrics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

type batchVerifyRequest struct {
	Proofs []*commitment.StatementProof `json:"proofs"`
}

// HandleBatchVerify handles POST /privacy/proofs/batch-verify.
func (h *Handler) HandleBatchVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[batchVerifyRequest](w, r, h.logger)
	if !ok {
		return
	}
	results, err := h.prover.BatchVerify(r.Context(), req.Proofs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"results": results})
}
