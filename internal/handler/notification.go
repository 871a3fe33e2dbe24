package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"rehabit-server/internal/service"
)

// NotificationHandler serves the per-user notification feed.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        zerolog.Logger
}

// NewNotificationHandler creates a new NotificationHandler instance.
func NewNotificationHandler(notifications *service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// GET /api/notifications?limit=50
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ns, err := h.notifications.List(r.Context(), userID(r), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list notifications")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), r.PathValue("id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
