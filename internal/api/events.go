package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/womens-health-report-analyzer/internal/domain"
	"github.com/womens-health-report-analyzer/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 32
)

// EventHub fans pipeline stage events out to the websocket subscribers of
// the same user
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu      sync.RWMutex
	clients map[string]map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan domain.StageEvent
}

// NewEventHub creates a hub accepting websocket upgrades from the allowed
// origins ("*" allows any)
func NewEventHub(allowedOrigins []string, logger *logrus.Logger) *EventHub {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowAll {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
		logger:  logger,
		clients: make(map[string]map[*eventClient]struct{}),
	}
}

// OnStage implements domain.StageObserver. Slow subscribers miss events
// rather than stall the pipeline.
func (h *EventHub) OnStage(event domain.StageEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.UserID] {
		select {
		case client.send <- event:
		default:
			h.logger.WithFields(logrus.Fields{
				"client_id": client.id,
				"user_id":   client.userID,
				"stage":     event.Stage,
			}).Debug("Dropping stage event for slow subscriber")
		}
	}
}

// ClientCount returns the number of subscribers for a user
func (h *EventHub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and streams the caller's stage events until
// the connection closes
func (h *EventHub) ServeWS(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &eventClient{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan domain.StageEvent, clientBuffer),
	}
	if !h.register(client) {
		conn.Close()
		return
	}

	h.logger.WithFields(logrus.Fields{
		"client_id": client.id,
		"user_id":   userID,
	}).Info("Stage event subscriber connected")

	go h.writePump(client)
	h.readPump(client)
}

func (h *EventHub) register(client *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*eventClient]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
	return true
}

func (h *EventHub) unregister(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

// readPump discards client messages and detects disconnects
func (h *EventHub) readPump(client *eventClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
		h.logger.WithField("client_id", client.id).Debug("Stage event subscriber disconnected")
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(client *eventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every subscriber and refuses new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.clients {
		for client := range set {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}
