package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quartermaster/internal/modules/journal"
)

// EventsStreamHandler streams committed journal events to clients over
// Server-Sent Events. Each connection gets its own bus subscription; slow
// clients drop events rather than block the engines.
type EventsStreamHandler struct {
	bus *journal.Bus
	log zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler
func NewEventsStreamHandler(bus *journal.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		bus: bus,
		log: log.With().Str("component", "events_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/events/stream requests (SSE). An optional
// ?types=RENTAL_CREATED,STATUS_CHANGED filter narrows the stream.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var allowedTypes map[journal.EventType]bool
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		allowedTypes = make(map[journal.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowedTypes[journal.EventType(strings.TrimSpace(t))] = true
		}
	}

	subID, events := h.bus.Subscribe()
	defer h.bus.Unsubscribe(subID)

	h.log.Info().Int("subscriber", subID).Msg("Client connected to event stream")

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Info().Int("subscriber", subID).Msg("Client disconnected from event stream")
			return

		case evt, ok := <-events:
			if !ok {
				return
			}
			if allowedTypes != nil && !allowedTypes[evt.Type] {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", h.encode(evt))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) encode(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
