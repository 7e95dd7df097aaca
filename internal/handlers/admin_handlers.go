package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonsec/certgate/pkg/logger"
)

// CleanupChallenges purges challenge rows expired long enough to be
// unrecoverable. Challenges are otherwise reclaimed on reissue, so this
// only matters for keys that never come back.
func (h *Handlers) CleanupChallenges(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.challengeRepo.DeleteExpired(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "Challenge cleanup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Cleanup failed", "INTERNAL_ERROR")
		return
	}

	logger.InfoContext(r.Context(), "Challenge cleanup completed", "deleted", deleted)

	writeJSON(w, http.StatusOK, map[string]int64{
		"deleted": deleted,
	})
}

// ChallengeStats reports issued/consumed challenge totals for a seminar
func (h *Handlers) ChallengeStats(w http.ResponseWriter, r *http.Request) {
	seminarID := chi.URLParam(r, "seminarID")
	if seminarID == "" {
		writeError(w, http.StatusBadRequest, "Missing seminar id", "INVALID_INPUT")
		return
	}

	if _, err := h.seminarRepo.GetByID(r.Context(), seminarID); err != nil {
		writeServiceError(w, err)
		return
	}

	issued, consumed, err := h.challengeRepo.CountBySeminar(r.Context(), seminarID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load stats", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"issued":   issued,
		"consumed": consumed,
	})
}
