package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/halcyonsec/certgate/internal/domain"
)

// RequestChallenge handles certificate access code requests
func (h *Handlers) RequestChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	// Per-key throttle on top of the IP throttle: a single address cannot
	// hammer one (seminar, email) pair through rotating proxies.
	req.Normalize()
	if req.SeminarID != "" && req.Email != "" {
		key := "access_key:" + req.SeminarID + ":" + req.Email
		if allowed, err := h.rateLimitRepo.CheckRateLimit(r.Context(), key, h.config.Verify.RequestsPerKey, h.config.Verify.RateLimitWindow); err == nil && !allowed {
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", "RATE_LIMIT_EXCEEDED")
			return
		}
	}

	if err := h.verifyService.RequestChallenge(r.Context(), &req); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Verification code sent to your email",
	})
}

// VerifyChallenge handles code verification and returns the caller's
// eligibility state.
func (h *Handlers) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req domain.AccessVerify
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}

	result, err := h.verifyService.VerifyChallenge(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// VerifyMagicLink handles one-click verification from the emailed link
func (h *Handlers) VerifyMagicLink(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Missing magic token", "INVALID_INPUT")
		return
	}

	result, err := h.verifyService.VerifyMagicLink(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
