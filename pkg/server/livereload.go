package server

import (
	"bufio"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/poltergeist/wisp/pkg/builders"
	"github.com/poltergeist/wisp/pkg/logger"
	"github.com/poltergeist/wisp/pkg/metrics"
)

// Reload event kinds
const (
	KindCSS  = "css"
	KindPage = "page"
)

// Event is pushed to every connected browser
type Event struct {
	Kind   string   `json:"kind"`
	Paths  []string `json:"paths,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

var _ builders.Reloader = (*LiveReloadHub)(nil)

// LiveReloadHub manages SSE clients and fans reload events out to them
type LiveReloadHub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	closed   bool
	logger   logger.Logger
	recorder metrics.Recorder

	heartbeat time.Duration
}

type lrClient struct {
	id   int
	ch   chan Event
	done chan struct{}
}

// NewLiveReloadHub creates a hub. A nil recorder disables metrics.
func NewLiveReloadHub(log logger.Logger, recorder metrics.Recorder) *LiveReloadHub {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &LiveReloadHub{
		clients:   map[int]*lrClient{},
		logger:    log,
		recorder:  recorder,
		heartbeat: 30 * time.Second,
	}
}

// ServeHTTP implements the SSE endpoint
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan Event, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetReloadClients(count)
	defer h.removeClient(client.id)

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		return
	}
	if err := bw.Flush(); err != nil {
		return
	}
	flusher.Flush()

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err != nil {
				h.logger.Debug("livereload ping write failed", logger.WithField("error", err))
				return
			}
		case ev := <-client.ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := bw.WriteString("data: " + string(data) + "\n\n"); err != nil {
				h.logger.Debug("livereload write failed", logger.WithField("error", err))
				return
			}
		}
		if err := bw.Flush(); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.recorder.SetReloadClients(count)
	}
}

// ReloadCSS swaps the given stylesheets in place. Paths are relative to the
// served root.
func (h *LiveReloadHub) ReloadCSS(paths []string) {
	h.broadcast(Event{Kind: KindCSS, Paths: paths})
}

// ReloadPage asks every browser to reload the page
func (h *LiveReloadHub) ReloadPage(reason string) {
	h.broadcast(Event{Kind: KindPage, Reason: reason})
}

// broadcast drops clients whose buffers are full
func (h *LiveReloadHub) broadcast(ev Event) {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- ev:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}

	h.recorder.IncReload(ev.Kind)
	h.logger.Debug("Live reload broadcast",
		logger.WithField("kind", ev.Kind),
		logger.WithField("clients", len(snapshot)),
		logger.WithField("dropped", dropped))
}

// ClientCount returns the number of connected browsers
func (h *LiveReloadHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and ignores later broadcasts
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetReloadClients(0)
}
