package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/halcyonsec/certgate/internal/domain"
	"github.com/halcyonsec/certgate/internal/repository"
	"github.com/halcyonsec/certgate/internal/service"
	"github.com/halcyonsec/certgate/pkg/auth"
	"github.com/halcyonsec/certgate/pkg/config"
	"github.com/halcyonsec/certgate/pkg/events"
	"github.com/halcyonsec/certgate/pkg/logger"
)

type claimsKey struct{}

type Handlers struct {
	verifyService   service.VerificationService
	seminarRepo     repository.SeminarRepository
	certificateRepo repository.CertificateRepository
	challengeRepo   repository.ChallengeRepository
	rateLimitRepo   repository.RateLimitRepository
	publisher       events.Publisher
	config          *config.Config
}

func New(
	verifyService service.VerificationService,
	seminarRepo repository.SeminarRepository,
	certificateRepo repository.CertificateRepository,
	challengeRepo repository.ChallengeRepository,
	rateLimitRepo repository.RateLimitRepository,
	publisher events.Publisher,
	config *config.Config,
) *Handlers {
	return &Handlers{
		verifyService:   verifyService,
		seminarRepo:     seminarRepo,
		certificateRepo: certificateRepo,
		challengeRepo:   challengeRepo,
		rateLimitRepo:   rateLimitRepo,
		publisher:       publisher,
		config:          config,
	}
}

// RequireJWT guards the admin maintenance surface.
func (h *Handlers) RequireJWT(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Missing or invalid authorization header", "UNAUTHORIZED")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", "INVALID_TOKEN")
				return
			}

			if requiredRole != "" && claims.Role != requiredRole && claims.Role != "admin" {
				writeError(w, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessRateLimit throttles challenge requests per client IP.
func (h *Handlers) AccessRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			key := "access_request:" + clientIP

			allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, h.config.Verify.RequestsPerIP, h.config.Verify.RateLimitWindow)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				// Allow request on error (fail open)
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeServiceError maps the verification error taxonomy onto HTTP.
// Wrong-code and missing/expired/consumed cases share one response so a
// caller cannot tell a registered email from an unregistered one.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSeminarNotFound):
		writeError(w, http.StatusNotFound, "Seminar not found", "SEMINAR_NOT_FOUND")
	case errors.Is(err, domain.ErrCertificatesNotEnabled):
		writeError(w, http.StatusConflict, "Certificates are not yet available for this seminar", "CERTIFICATES_NOT_ENABLED")
	case errors.Is(err, domain.ErrInvalidCode), errors.Is(err, domain.ErrCodeExpired):
		writeError(w, http.StatusUnauthorized, "Incorrect or expired verification code", "VERIFICATION_FAILED")
	case errors.Is(err, domain.ErrDispatchFailed):
		writeError(w, http.StatusBadGateway, "Failed to send verification code. Please try again.", "DISPATCH_FAILED")
	case errors.Is(err, domain.ErrLookupFailed):
		writeError(w, http.StatusServiceUnavailable, "Temporary error, please try again", "LOOKUP_FAILED")
	case errors.Is(err, domain.ErrCertificateNotFound):
		writeError(w, http.StatusNotFound, "Certificate not found", "NOT_FOUND")
	case strings.Contains(err.Error(), "validation failed"):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", "INTERNAL_ERROR")
	}
}

// Helper functions
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	response := map[string]string{
		"error": message,
		"code":  code,
	}
	writeJSON(w, statusCode, response)
}
