package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/folio-hq/folio/internal/events"
)

// EventsHandler streams bus events to WebSocket clients.
type EventsHandler struct {
	eventBus *events.Bus
	log      zerolog.Logger
}

// NewEventsHandler creates a new events WebSocket handler.
func NewEventsHandler(eventBus *events.Bus, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		eventBus: eventBus,
		log:      log.With().Str("component", "events_ws").Logger(),
	}
}

// ServeHTTP handles GET /api/events/ws requests.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is already enforced by the CORS middleware
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// Optional comma-separated type filter, e.g. ?types=trade_executed
	var allowedTypes map[events.EventType]bool
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		allowedTypes = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	eventChan, unsubscribe := h.eventBus.Subscribe(100)
	defer unsubscribe()

	h.log.Info().Str("remote", r.RemoteAddr).Msg("Client connected to event stream")

	ctx := r.Context()

	greeting := map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}
	if err := writeWithTimeout(ctx, conn, greeting); err != nil {
		h.log.Debug().Err(err).Msg("Failed to send greeting")
		return
	}

	// Heartbeat keeps intermediaries from timing out idle connections
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	// Reader goroutine: we never expect client messages, but reading is
	// required to surface close frames and pings.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Str("remote", r.RemoteAddr).Msg("Client disconnected from event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case event, ok := <-eventChan:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "bus closed")
				return
			}
			if allowedTypes != nil && !allowedTypes[event.Type] {
				continue
			}
			if err := writeWithTimeout(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}

		case <-heartbeat.C:
			ping := map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}
			if err := writeWithTimeout(ctx, conn, ping); err != nil {
				h.log.Debug().Err(err).Msg("Heartbeat write failed")
				return
			}
		}
	}
}

// writeWithTimeout writes a JSON message with a bounded deadline so a
// stalled client cannot pin the handler.
func writeWithTimeout(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, v)
}
