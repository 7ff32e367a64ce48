package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lostfound-api/internal/application/item"
	"github.com/lostfound-api/internal/domain"
	"github.com/lostfound-api/internal/infrastructure/dynamo"
)

// ItemHandler handles the item lifecycle endpoints.
type ItemHandler struct {
	svc        item.Service
	watcher    *dynamo.Watcher
	adminEmail string
}

func NewItemHandler(svc item.Service, watcher *dynamo.Watcher, adminEmail string) *ItemHandler {
	return &ItemHandler{svc: svc, watcher: watcher, adminEmail: adminEmail}
}

func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	it, err := h.svc.CreateReport(r.Context(), actor, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	v, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.List(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Search(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query().Get("q")
	category := r.URL.Query().Get("category")
	items, err := h.svc.Search(r.Context(), actor, q, category)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.ListPending(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.svc.ListMine(r.Context(), actor)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ItemHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	it, err := h.svc.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *ItemHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body struct {
		Notes string `json:"notes"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	it, err := h.svc.Reject(r.Context(), actor, chi.URLParam(r, "id"), body.Notes)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *ItemHandler) MarkReturned(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	it, err := h.svc.MarkReturned(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// AttachImage accepts a multipart upload and stores it under the item's key.
func (h *ItemHandler) AttachImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	url, err := h.svc.AttachImage(r.Context(), actor, chi.URLParam(r, "id"), header.Filename, file)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"image_url": url})
}

// GetImage streams the item's stored image.
func (h *ItemHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	rc, contentType, err := h.svc.FetchImage(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// Watch streams item snapshots over Server-Sent Events. The subscription
// emits once immediately, then only when the query result actually changes.
func (h *ItemHandler) Watch(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(r, h.adminEmail)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	q := dynamo.ItemQuery{
		Status: domain.NormalizeStatus(r.URL.Query().Get("status")),
	}
	if r.URL.Query().Get("mine") == "true" {
		q.UserID = actor.UserID
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.watcher.Subscribe(r.Context(), q)
	defer sub.Cancel()

	for snap := range sub.Snapshots() {
		projected := make([]domain.ViewableItem, len(snap.Items))
		for i := range snap.Items {
			projected[i] = domain.FilterForRole(&snap.Items[i], actor.Role)
		}
		payload, err := json.Marshal(projected)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}
