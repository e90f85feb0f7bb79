package handlers

import (
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is broadcast to every connected /_watch client on a successful
// write, delete, or clear; a "connected" event is also sent once to each
// new subscriber.
type Event struct {
	Type  string      `json:"type"` // "put", "delete", "clear", "connected"
	Key   string      `json:"key,omitempty"`
	Value interface{} `json:"value,omitempty"`
	Time  time.Time   `json:"time"`
}

// watchConn is one subscriber's outbound connection, serialized by its own
// mutex since gorilla/websocket connections aren't safe for concurrent
// writers.
type watchConn struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *watchConn) send(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(ev)
}

func (c *watchConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.Close()
}

// WatchManager fans every store mutation out to every connected
// subscriber.
type WatchManager struct {
	mu    sync.RWMutex
	conns map[string]*watchConn
}

// NewWatchManager creates an empty manager.
func NewWatchManager() *WatchManager {
	return &WatchManager{conns: make(map[string]*watchConn)}
}

// Broadcast stamps ev with the current time and fans it out to every
// connected subscriber. A subscriber whose write fails is dropped.
func (m *WatchManager) Broadcast(ev Event) {
	ev.Time = time.Now()

	m.mu.RLock()
	conns := make([]*watchConn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(ev); err != nil {
			m.remove(c.id)
		}
	}
}

func (m *WatchManager) add(c *watchConn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[c.id] = c
}

func (m *WatchManager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, id)
}

// Close disconnects every subscriber.
func (m *WatchManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		c.close()
	}
	m.conns = make(map[string]*watchConn)
}

// HandleWatch upgrades the request to a WebSocket and streams every
// subsequent store mutation until the client disconnects.
func (h *Handlers) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("watch: upgrade failed: %v", err)
		return
	}

	wc := &watchConn{id: fmt.Sprintf("watch-%d", time.Now().UnixNano()), conn: conn}
	h.watcher.add(wc)
	defer func() {
		h.watcher.remove(wc.id)
		wc.close()
	}()

	wc.send(Event{Type: "connected"})

	// Drain and discard anything the client sends; this stream is
	// read-only from the client's perspective. Exits once the client
	// disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
