package handler

import (
	"net/http"
	"strconv"

	"github.com/mycarconcierge/marketplace/internal/models"
	"github.com/mycarconcierge/marketplace/internal/service"
)

// NotificationHandler serves the caller's in-app notifications.
type NotificationHandler struct {
	svc *service.NotificationService
}

func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationListResponse struct {
	Notifications []models.Notification `json:"notifications"`
	Offset        int                   `json:"offset"`
}

// List handles GET /api/notifications?unread=true&limit=&offset=.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := service.ListOptions{UnreadOnly: q.Get("unread") == "true"}
	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-query", "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-query", "offset must be an integer")
			return
		}
	}

	items, err := h.svc.List(r.Context(), actor.UserID, opts)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	RespondJSON(w, http.StatusOK, NotificationListResponse{Notifications: items, Offset: opts.Offset})
}

// UnreadCount handles GET /api/notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	count, err := h.svc.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(r.Context(), actor.UserID, id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead handles POST /api/notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := withActor(w, r)
	if !ok {
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
