/*Package hub is the display side of the viewer.

A Hub receives exports and status reports from the frame router, keeps the
latest of each, a history of predicted g values and the recent status log,
and pushes everything to websocket clients.  Emitter methods never block:
a client that cannot keep up loses messages.

*/
package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/viewer"
)

// clientQueue is how many messages a websocket client may fall behind
const clientQueue = 16

// Message is what websocket clients receive
type Message struct {
	// Channel is one of temp, final, status
	Channel string `json:"channel"`

	Export *dte.Export `json:"export,omitempty"`
	Status string      `json:"status,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub collects what the router emits.  It implements dte.Emitter and is safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	latest  map[string]dte.Export
	final   map[string]dte.Export
	g       circle
	status  statusLog
	clients map[*client]struct{}

	upgrader websocket.Upgrader
}

// New returns a hub keeping history g values and statusDepth status reports
func New(history, statusDepth int) *Hub {
	if statusDepth < 1 {
		statusDepth = 1
	}
	return &Hub{
		latest:   map[string]dte.Export{},
		final:    map[string]dte.Export{},
		g:        newCircle(history),
		status:   statusLog{depth: statusDepth},
		clients:  map[*client]struct{}{},
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}}
}

// Temp implements dte.Emitter
func (h *Hub) Temp(e dte.Export) {
	h.mu.Lock()
	h.latest[e.Name] = e
	h.mu.Unlock()
	h.broadcast(Message{Channel: "temp", Export: &e})
}

// Final implements dte.Emitter
func (h *Hub) Final(e dte.Export) {
	h.mu.Lock()
	h.latest[e.Name] = e
	h.final[e.Name] = e
	if g, ok := e.Get(viewer.GRecord); ok && len(g.Data) > 0 && len(g.Data[0].Data) > 0 {
		h.g.Append(e.Time, g.Data[0].Data[0])
	}
	h.mu.Unlock()
	h.broadcast(Message{Channel: "final", Export: &e})
}

// Status implements dte.Emitter.  Reports are also logged.
func (h *Hub) Status(s string) {
	log.Println(s)
	h.mu.Lock()
	h.status.Append(StatusEntry{Time: time.Now(), Msg: s})
	h.mu.Unlock()
	h.broadcast(Message{Channel: "status", Status: s})
}

// Latest returns the most recent export with the given name from either channel
func (h *Hub) Latest(name string) (dte.Export, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.latest[name]
	return e, ok
}

// LatestFinal returns the most recent final export with the given name
func (h *Hub) LatestFinal(name string) (dte.Export, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.final[name]
	return e, ok
}

// G returns the most recent predicted g and when it was predicted
func (h *Hub) G() (float64, time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, g, ok := h.g.Head()
	return g, t, ok
}

// GHistory returns the stored g values and timestamps, oldest first
func (h *Hub) GHistory() ([]time.Time, []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.g.Contiguous()
}

// StatusLog returns the stored status reports, oldest first
func (h *Hub) StatusLog() []StatusEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status.Copy()
}

// Clients is the number of connected websocket clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(m Message) {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}
	buf, err := json.Marshal(m)
	if err != nil {
		log.Println("hub: encoding message:", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
			// slow client, drop
		}
	}
}

// ServeWS upgrades the request to a websocket and streams messages to it until it disconnects
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("hub: websocket upgrade:", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	// the reader only exists to notice the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		select {
		case buf := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, buf); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
