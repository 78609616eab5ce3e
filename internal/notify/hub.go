// Package notify pushes payment notifications from NATS to users' open websocket sessions.
package notify

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type client struct {
	username string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub tracks websocket sessions per username. A user may hold several sessions.
type Hub struct {
	mu      sync.Mutex
	clients map[string]map[*client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger.Named("notify"),
	}
}

// Subscribe forwards every message on the notification subjects to the addressed user.
func (h *Hub) Subscribe(sub Subscriber) (*nats.Subscription, error) {
	return sub.Subscribe(events.NotifySubjectPrefix+"*", h.HandleMsg)
}

func (h *Hub) HandleMsg(msg *nats.Msg) {
	username := strings.TrimPrefix(msg.Subject, events.NotifySubjectPrefix)
	if username == "" || username == msg.Subject {
		return
	}
	h.Deliver(username, msg.Data)
}

// Deliver queues data for every session of username. Sessions that cannot keep up are closed.
func (h *Hub) Deliver(username string, data []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients[username] {
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Warn("Dropping slow websocket session", zap.String("username", username))
			h.removeLocked(c)
		}
	}
	return delivered
}

// Sessions reports how many sessions username has open.
func (h *Hub) Sessions(username string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[username])
}

// Serve upgrades the request and attaches the connection to username.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, username string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{username: username, conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.clients[username] == nil {
		h.clients[username] = make(map[*client]struct{})
	}
	h.clients[username][c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("Websocket session opened", zap.String("username", username))

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	sessions, ok := h.clients[c.username]
	if !ok {
		return
	}
	if _, ok := sessions[c]; !ok {
		return
	}
	delete(sessions, c)
	if len(sessions) == 0 {
		delete(h.clients, c.username)
	}
	close(c.send)
}

// readPump only handles control frames; clients do not send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Unexpected websocket close", zap.String("username", c.username), zap.Error(err))
			}
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
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
