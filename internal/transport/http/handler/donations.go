package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lostfound-api/internal/application/donation"
	"github.com/lostfound-api/internal/domain"
)

// DonationHandler handles the donation-track endpoints.
type DonationHandler struct {
	svc        donation.Service
	adminEmail string
}

func NewDonationHandler(svc donation.Service, adminEmail string) *DonationHandler {
	return &DonationHandler{svc: svc, adminEmail: adminEmail}
}

func (h *DonationHandler) ListEligible(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.ListEligible(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *DonationHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	it, err := h.svc.MarkReady(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *DonationHandler) MarkDonated(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.DonateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	it, err := h.svc.MarkDonated(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// Stats aggregates the donation track over an optional from/to range given as
// RFC3339 query parameters.
func (h *DonationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from parameter")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to parameter")
		return
	}
	stats, err := h.svc.Stats(r.Context(), actor, from, to)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
