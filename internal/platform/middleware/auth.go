package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator validates bearer tokens presented by verifier stations and
// exporters.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims carries the identity the middleware places in context.
type JWTClaims struct {
	SubjectID string
	StationID string
}

type contextKeySubjectID struct{}
type contextKeyStationID struct{}

var (
	ContextKeySubjectID = contextKeySubjectID{}
	ContextKeyStationID = contextKeyStationID{}
)

// GetSubjectID retrieves the authenticated subject from the context.
func GetSubjectID(ctx context.Context) string {
	v, ok := ctx.Value(ContextKeySubjectID).(string)
	if !ok {
		return ""
	}
	return v
}

// GetStationID retrieves the verifier station from the context.
func GetStationID(ctx context.Context) string {
	v, ok := ctx.Value(ContextKeyStationID).(string)
	if !ok {
		return ""
	}
	return v
}

// RequireAuth rejects requests without a valid bearer token and stores the
// claims in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				unauthorized(w, r, logger, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubjectID, claims.SubjectID)
			ctx = context.WithValue(ctx, ContextKeyStationID, claims.StationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response", "error", err)
	}
}
