package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleet-monitor/tracking/internal/domain"
	"fleet-monitor/tracking/internal/metrics"
)

const (
	TypeWeb = "web"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// Payload is the JSON body pushed by the web and redis notificators.
type Payload struct {
	Event    *domain.Event    `json:"event"`
	Position *domain.Position `json:"position,omitempty"`
	Message  string           `json:"message"`
}

type client struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks websocket subscribers. User 0 addresses every client.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.WithField("component", "ws_hub"),
	}
}

// ServeHTTP upgrades the request and subscribes the connection. The user is
// taken from the "user" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan []byte, clientSendSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// readPump only exists to notice closed connections and answer pings.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast queues msg for the user's clients and returns how many accepted
// it. Slow clients whose buffer is full miss the message.
func (h *Hub) Broadcast(userID int64, msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if userID != 0 && c.userID != userID {
			continue
		}
		select {
		case c.send <- msg:
			n++
		default:
		}
	}
	return n
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Web pushes notifications to connected websocket clients.
type Web struct {
	hub    *Hub
	format *Formatter
	pool   *AsyncPool
	log    logrus.FieldLogger
}

func NewWeb(hub *Hub, format *Formatter, pool *AsyncPool, log logrus.FieldLogger) *Web {
	return &Web{hub: hub, format: format, pool: pool, log: log.WithField("notificator", TypeWeb)}
}

func (w *Web) Type() string { return TypeWeb }

func (w *Web) SendAsync(userID int64, ev *domain.Event, pos *domain.Position) {
	w.pool.Enqueue(w, userID, ev, pos)
}

func (w *Web) SendSync(ctx context.Context, userID int64, ev *domain.Event, pos *domain.Position) {
	body, err := json.Marshal(Payload{Event: ev, Position: pos, Message: w.format.Short(ctx, ev, pos)})
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(TypeWeb).Inc()
		w.log.WithError(err).WithField("event_type", ev.Type).Error("marshal web notification")
		return
	}
	n := w.hub.Broadcast(userID, body)
	metrics.NotificationsSent.WithLabelValues(TypeWeb).Inc()
	w.log.WithFields(logrus.Fields{
		"event_type": ev.Type,
		"device_id":  ev.DeviceID,
		"clients":    n,
	}).Debug("web notification pushed")
}
