package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ayusman/mukha/internal/logging"
)

const (
	clientBuffer = 16
	writeWait    = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is one telemetry frame sent to websocket clients.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// TelemetryHub fans engine output out to websocket clients. Per-frame state
// is rate limited; events are never rate limited. A client whose buffer is
// full is disconnected instead of blocking the frame loop.
type TelemetryHub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	limiter *rate.Limiter
	closed  bool
	log     logrus.FieldLogger
}

// NewTelemetryHub creates a hub that sends at most fps state frames per
// second. fps <= 0 disables the limit.
func NewTelemetryHub(fps float64, log logrus.FieldLogger) *TelemetryHub {
	if log == nil {
		log = logging.Discard()
	}
	limit := rate.Inf
	if fps > 0 {
		limit = rate.Limit(fps)
	}
	return &TelemetryHub{
		clients: make(map[*client]struct{}),
		limiter: rate.NewLimiter(limit, 1),
		log:     logging.Component(log, "telemetry"),
	}
}

// Clients returns the number of connected clients.
func (h *TelemetryHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishState sends a state frame if the rate limit allows it.
func (h *TelemetryHub) PublishState(data any) {
	if h.Clients() == 0 || !h.limiter.Allow() {
		return
	}
	h.broadcast(Message{Type: "state", At: time.Now(), Data: data})
}

// PublishEvent sends a discrete event such as a gesture or an action.
func (h *TelemetryHub) PublishEvent(kind string, data any) {
	if h.Clients() == 0 {
		return
	}
	h.broadcast(Message{Type: kind, At: time.Now(), Data: data})
}

func (h *TelemetryHub) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Warn("Failed to encode telemetry")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.remove(c)
		h.log.WithField("remote", c.conn.RemoteAddr().String()).Warn("Telemetry client too slow, disconnecting")
		go closeSlow(c)
	}
}

// closeSlow tells a client it fell behind and closes the connection. The
// blocked write in writeLoop fails once the connection is closed.
func closeSlow(c *client) {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"), time.Now().Add(writeWait))
	c.conn.Close()
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TelemetryHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Debug("Telemetry client connected")

	go h.writeLoop(c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *TelemetryHub) writeLoop(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.conn.Close()
}

func (h *TelemetryHub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and rejects new ones.
func (h *TelemetryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
