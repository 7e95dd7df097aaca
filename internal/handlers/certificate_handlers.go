package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonsec/certgate/pkg/events"
	"github.com/halcyonsec/certgate/pkg/logger"
)

// GetSeminar returns public seminar metadata
func (h *Handlers) GetSeminar(w http.ResponseWriter, r *http.Request) {
	seminarID := chi.URLParam(r, "seminarID")
	if seminarID == "" {
		writeError(w, http.StatusBadRequest, "Missing seminar id", "INVALID_INPUT")
		return
	}

	seminar, err := h.seminarRepo.GetByID(r.Context(), seminarID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, seminar)
}

// GetCertificate returns the publicly shareable certificate record.
// Rendering and PDF export live with the issuance pipeline; this is the
// verification pointer only.
func (h *Handlers) GetCertificate(w http.ResponseWriter, r *http.Request) {
	certificateID := chi.URLParam(r, "certificateID")
	if certificateID == "" {
		writeError(w, http.StatusBadRequest, "Missing certificate id", "INVALID_INPUT")
		return
	}

	certificate, err := h.certificateRepo.GetByID(r.Context(), certificateID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.publisher.Publish(r.Context(), events.SubjectCertificateViewed, map[string]string{
		"certificate_id": certificate.ID,
		"seminar_id":     certificate.SeminarID,
	}); err != nil {
		logger.WarnContext(r.Context(), "Failed to publish certificate viewed event", "error", err)
	}

	writeJSON(w, http.StatusOK, certificate)
}
