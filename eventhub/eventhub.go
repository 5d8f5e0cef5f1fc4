// Package eventhub is an observer registry keyed by event name, plus an
// optional local websocket broadcast so a management UI can watch
// printer and job events live.
package eventhub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one published occurrence: printerStatusChanged, jobCompleted,
// jobFailed, printerAdded, printerUpdated, printerRemoved.
type Event struct {
	Name      string      `json:"name"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler receives events for a subscribed name.
type Handler func(Event)

// Hub is a local pub/sub registry with an optional websocket fan-out.
// Emits are fire-and-forget: Emit returns nothing and an absent
// subscriber changes nothing. Handlers and websocket writes run
// synchronously on the emitting goroutine, so a slow handler delays the
// caller; each websocket write has a 5s deadline and a client whose
// write fails is dropped.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string][]Handler

	connsMu sync.Mutex
	conns   map[*wsConn]struct{}

	upgrader websocket.Upgrader
}

// wsConn is a websocket connection guarded by a single write mutex so
// concurrent broadcasts never interleave frames.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		handlers: make(map[string][]Handler),
		conns:    make(map[*wsConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Subscribe registers handler for event name. Returns an unsubscribe func.
func (h *Hub) Subscribe(name string, handler Handler) func() {
	h.mu.Lock()
	h.handlers[name] = append(h.handlers[name], handler)
	idx := len(h.handlers[name]) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		handlers := h.handlers[name]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// Emit publishes an event to every in-process subscriber of name and to
// every connected websocket client. Handlers are invoked outside any
// lock.
func (h *Hub) Emit(name string, payload interface{}) {
	event := Event{Name: name, Payload: payload, Timestamp: time.Now()}

	h.mu.RLock()
	handlers := append([]Handler(nil), h.handlers[name]...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		if handler != nil {
			handler(event)
		}
	}

	h.broadcastWS(event)
}

func (h *Hub) broadcastWS(event Event) {
	h.connsMu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.connsMu.Unlock()

	for _, c := range conns {
		if err := c.writeJSON(event); err != nil {
			h.removeConn(c)
		}
	}
}

func (h *Hub) removeConn(c *wsConn) {
	h.connsMu.Lock()
	delete(h.conns, c)
	h.connsMu.Unlock()
	c.conn.Close()
}

// ServeWS upgrades an HTTP request to a websocket and registers the
// connection for event fan-out, for a local management UI to consume.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &wsConn{conn: raw}
	h.connsMu.Lock()
	h.conns[c] = struct{}{}
	h.connsMu.Unlock()

	go func() {
		defer h.removeConn(c)
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// ConnCount reports how many websocket clients are currently attached,
// useful for diagnostics and tests.
func (h *Hub) ConnCount() int {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	return len(h.conns)
}

// MarshalEvent is a convenience used by callers that need the wire
// encoding without going through a live websocket (tests, logging).
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
