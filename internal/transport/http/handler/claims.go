package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lostfound-api/internal/application/claim"
	"github.com/lostfound-api/internal/domain"
)

// ClaimHandler handles the ownership-claim endpoints.
type ClaimHandler struct {
	svc        claim.Service
	adminEmail string
}

func NewClaimHandler(svc claim.Service, adminEmail string) *ClaimHandler {
	return &ClaimHandler{svc: svc, adminEmail: adminEmail}
}

func (h *ClaimHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := h.svc.Submit(r.Context(), actor, chi.URLParam(r, "itemID"), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ClaimHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	c, err := h.svc.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClaimHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	c, err := h.svc.Reject(r.Context(), actor, chi.URLParam(r, "id"), body.Notes)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClaimHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	c, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ClaimHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	claims, err := h.svc.ListPending(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

func (h *ClaimHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	claims, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}
