package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/lostfound-api/internal/domain"
)

// activityLogLister is the read surface the handler needs from the audit store.
type activityLogLister interface {
	ListRange(ctx context.Context, from, to time.Time) ([]domain.ActivityLog, error)
}

// ActivityLogHandler serves the admin audit-trail view.
type ActivityLogHandler struct {
	logs activityLogLister
}

func NewActivityLogHandler(logs activityLogLister) *ActivityLogHandler {
	return &ActivityLogHandler{logs: logs}
}

// List returns audit entries within an optional from/to range given as
// RFC3339 query parameters. Defaults to the last 30 days.
func (h *ActivityLogHandler) List(w http.ResponseWriter, r *http.Request) {
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
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-30 * 24 * time.Hour)
	}
	entries, err := h.logs.ListRange(r.Context(), from, to)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
