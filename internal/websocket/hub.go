package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tufuturo/totem/domain/entities"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Displays only send small
	// control frames.
	maxMessageSize = 4 * 1024
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Displays run on the same machine as the service.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Controller is the slice of the kiosk machine that connected displays are
// allowed to drive.
type Controller interface {
	Navigate(to entities.ScreenState) bool
	Cancel() bool
	AcceptReview() bool
	Retake() bool
	PauseAutoReturn()
	ResumeAutoReturn()
}

// StateMessage is the frame pushed to displays on every screen transition.
type StateMessage struct {
	Type      string `json:"type"`
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// controlMessage is what displays send back: navigation and review gestures.
type controlMessage struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
}

// Hub maintains the set of connected displays and fans screen transitions out
// to them.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	controller Controller
	logger     *zap.Logger
}

// NewHub creates a new WebSocket hub driving the given controller.
func NewHub(controller Controller, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		controller: controller,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.displayID] = client
			h.mu.Unlock()
			h.logger.Info("Display registered", zap.String("displayID", client.displayID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.displayID]; ok {
				delete(h.clients, client.displayID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Display unregistered", zap.String("displayID", client.displayID))
		}
	}
}

// Broadcast pushes a state message to every connected display. Slow clients
// are dropped rather than allowed to stall the transition path.
func (h *Hub) Broadcast(msg StateMessage) {
	msg.Timestamp = time.Now().Unix()
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal state message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("Dropping slow display", zap.String("displayID", id))
		}
	}
}

// Client is a middleman between a display's websocket connection and the hub.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	displayID string
	logger    *zap.Logger
}

// HandleWebSocket upgrades an authenticated display connection and attaches
// it to the hub.
func HandleWebSocket(hub *Hub, c echo.Context, displayID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		displayID: displayID,
		logger:    logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps control messages from the display into the controller.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.processMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
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

func (c *Client) processMessage(message []byte) {
	var msg controlMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Error("Failed to parse control message", zap.Error(err))
		return
	}

	switch msg.Type {
	case "navigate":
		c.hub.controller.Navigate(entities.ScreenState(msg.To))
	case "cancel":
		c.hub.controller.Cancel()
	case "accept":
		c.hub.controller.AcceptReview()
	case "retake":
		c.hub.controller.Retake()
	case "hold_result":
		c.hub.controller.PauseAutoReturn()
	case "release_result":
		c.hub.controller.ResumeAutoReturn()
	default:
		c.logger.Warn("Unknown control message type",
			zap.String("displayID", c.displayID),
			zap.String("type", msg.Type))
	}
}
