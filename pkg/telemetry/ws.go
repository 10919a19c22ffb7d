package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// WebSocketSink broadcasts telemetry records to connected dashboard
// clients as msgpack binary messages. It doubles as an http.Handler for
// the dashboard endpoint.
//
// Broadcasting never blocks training: a client whose send buffer is full
// misses the record, and a client that stops reading is dropped.
type WebSocketSink struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
}

// wsClient is one connected dashboard.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// clientBuffer is the per-client send queue length. Records beyond it
// are dropped for that client.
const clientBuffer = 16

// NewWebSocketSink creates an empty sink; register it on an HTTP mux to
// accept dashboard connections.
func NewWebSocketSink() *WebSocketSink {
	return &WebSocketSink{
		upgrader: websocket.Upgrader{
			// Dashboards connect from a browser on another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams records
// until the client disconnects or the sink closes.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("telemetry: websocket upgrade failed", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go s.writeLoop(c)
}

func (s *WebSocketSink) writeLoop(c *wsClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			slog.Debug("telemetry: dropping websocket client", "err", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Clients returns the number of connected dashboard clients.
func (s *WebSocketSink) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Write broadcasts the summary to every connected client.
func (s *WebSocketSink) Write(_ context.Context, step int64, sum Summary) error {
	msg, err := msgpack.Marshal(Record{Step: step, Summary: sum})
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// Slow client: skip this record rather than stall training.
		}
	}
	return nil
}

// Close disconnects all clients.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for c := range s.clients {
		close(c.send)
	}
	s.clients = make(map[*wsClient]struct{})
	return nil
}
