package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/launchpad/internal/events"
	"github.com/rs/zerolog"
)

// maxReplay caps how many stored events a client may ask to be replayed
const maxReplay = 500

// EventsStreamHandler handles Server-Sent Events (SSE) streaming of engine events.
type EventsStreamHandler struct {
	eventBus   *events.Bus
	eventStore *events.Store
	log        zerolog.Logger
	heartbeat  time.Duration
}

// NewEventsStreamHandler creates a new events stream handler. store may be nil,
// which disables replay.
func NewEventsStreamHandler(eventBus *events.Bus, store *events.Store, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus:   eventBus,
		eventStore: store,
		log:        log.With().Str("component", "events_stream").Logger(),
		heartbeat:  30 * time.Second,
	}
}

// ServeHTTP handles GET /api/events/stream?types=A,B&replay=N requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Get flusher for streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Parse query parameters
	typesFilter := r.URL.Query().Get("types")
	var allowed map[events.EventType]bool
	var allowedList []events.EventType
	if typesFilter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			et := events.EventType(strings.TrimSpace(t))
			if et != "" && !allowed[et] {
				allowed[et] = true
				allowedList = append(allowedList, et)
			}
		}
	}
	replay := 0
	if v := r.URL.Query().Get("replay"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "replay must be a non-negative integer", http.StatusBadRequest)
			return
		}
		replay = min(n, maxReplay)
	}

	// The server's write timeout would cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.log.Info().
		Str("types_filter", typesFilter).
		Int("replay", replay).
		Msg("Client connected to event stream")

	// Bus handlers run on the publishing goroutine, so never block them
	eventChan := make(chan *events.Event, 100)
	unsubscribe := h.eventBus.SubscribeAll(func(event *events.Event) {
		if allowed != nil && !allowed[event.Type] {
			return
		}
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	})
	defer unsubscribe()

	// Send initial connection message
	h.send(w, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	})

	// Replay stored history oldest first; live events queue up meanwhile
	if replay > 0 && h.eventStore != nil {
		history, err := h.eventStore.Recent(replay, allowedList...)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to load event history for replay")
		}
		for i := len(history) - 1; i >= 0; i-- {
			h.sendEvent(w, history[i])
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case event := <-eventChan:
			h.sendEvent(w, event)
			flusher.Flush()

		case <-heartbeat.C:
			h.send(w, map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) sendEvent(w http.ResponseWriter, event *events.Event) {
	h.send(w, map[string]interface{}{
		"id":        event.ID,
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
		"data":      event.Data,
	})
}

// send writes one SSE message
func (h *EventsStreamHandler) send(w http.ResponseWriter, payload map[string]interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		data = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
