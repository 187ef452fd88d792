package handler

import (
	"net/http"

	"go.uber.org/zap"

	"quotefiles/internal/service"
)

type NotificationHandler struct {
	feed   *service.NotificationFeed
	logger *zap.Logger
}

func NewNotificationHandler(feed *service.NotificationFeed, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		feed:   feed,
		logger: logger.With(zap.String("component", "notification_handler")),
	}
}

// ListNotifications обрабатывает GET /v1/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.feed.Recent())
}

// StreamNotifications обрабатывает GET /v1/notifications/stream (SSE)
func (h *NotificationHandler) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.feed.Subscribe()
	defer cancel()

	startEventStream(w)
	flusher.Flush()
	streamEvents(r, w, flusher, events, h.logger)
}
