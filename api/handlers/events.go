package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thiemotorres/spawn/internal/app"
)

// keepAliveInterval is how often an idle event stream sends a comment.
const keepAliveInterval = 15 * time.Second

// EventsHandler streams lifecycle events as server-sent events.
type EventsHandler struct {
	service *app.Service
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(service *app.Service) *EventsHandler {
	return &EventsHandler{service: service}
}

// Stream handles GET /api/events. Each event is sent with its type as the
// SSE event name and the event as JSON data.
func (h *EventsHandler) Stream(c *gin.Context) {
	events, unsubscribe := h.service.Events()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(event.Type), event)
			return true
		case <-ticker.C:
			io.WriteString(w, ": keep-alive\n\n")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// RegisterRoutes registers the event stream route.
func (h *EventsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Stream)
}
