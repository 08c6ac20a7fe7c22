package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"evtxlink/logging"
)

// RecordEvent is broadcast over the SSE hub for every successfully
// rendered record, mirroring the shape forwarded to Kafka/MQTT/Valkey.
type RecordEvent struct {
	Source    string          `json:"source"`
	Chunk     int             `json:"chunk"`
	RecordID  uint64          `json:"record_id"`
	Timestamp string          `json:"timestamp"`
	Body      json.RawMessage `json:"body"`
}

type sseClient struct {
	id     string
	events chan RecordEvent
}

// eventHub manages SSE client connections and broadcasts rendered
// records to every connected client via a single owning goroutine.
type eventHub struct {
	clients    map[string]*sseClient
	register   chan *sseClient
	unregister chan *sseClient
	broadcast  chan RecordEvent
	mu         sync.RWMutex
	done       chan struct{}
}

func newEventHub() *eventHub {
	h := &eventHub{
		clients:    make(map[string]*sseClient),
		register:   make(chan *sseClient),
		unregister: make(chan *sseClient),
		broadcast:  make(chan RecordEvent, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *eventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.events)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.events <- event:
				default:
					logging.Log("api", "client %s buffer full, dropping record", client.id)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.events)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Broadcast enqueues a rendered record for delivery to every connected
// SSE client. It never blocks the driver: a full hub buffer drops the
// event.
func (h *eventHub) Broadcast(event RecordEvent) {
	select {
	case h.broadcast <- event:
	default:
		logging.Log("api", "broadcast channel full, dropping record")
	}
}

// ClientCount reports the number of connected SSE clients.
func (h *eventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop shuts down the hub and disconnects every client.
func (h *eventHub) Stop() {
	close(h.done)
}

// handleSSE serves GET /api/events, streaming newly rendered records as
// they are broadcast. An optional "source" query parameter restricts
// the stream to records from a matching input file path.
func (h *handlers) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sourceFilter := strings.TrimSpace(r.URL.Query().Get("source"))

	clientID := fmt.Sprintf("api-%d", time.Now().UnixNano())
	client := &sseClient{id: clientID, events: make(chan RecordEvent, 64)}
	h.hub.register <- client

	notify := r.Context().Done()

	fmt.Fprintf(w, "event: connected\ndata: {\"id\":%q}\n\n", clientID)
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-notify:
			h.hub.unregister <- client
			return

		case event, ok := <-client.events:
			if !ok {
				return
			}
			if sourceFilter != "" && event.Source != sourceFilter {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: record\ndata: %s\n\n", string(data))
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
