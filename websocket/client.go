package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"helpnet/models"
	"helpnet/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Buffer size for client send channel
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// In production, implement proper origin checking
		return true
	},
}

// Client is one websocket connection. A connection is useless until its
// auth frame lands; after that it may subscribe to emergency channels.
type Client struct {
	conn *websocket.Conn

	userID string
	user   *models.User

	connectionID string
	connectedAt  time.Time
	lastActivity time.Time

	// Buffered channel of outbound messages
	send chan models.WSMessage

	hub *Hub

	rateLimiter *utils.RateLimiter

	// Subscribed emergency channels, guarded by the hub mutex
	roomIDs map[string]bool

	isAuthenticated bool
	pingFailCount   int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		conn:         conn,
		hub:          hub,
		send:         make(chan models.WSMessage, sendBufferSize),
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		lastActivity: time.Now(),
		roomIDs:      make(map[string]bool),
		rateLimiter:  utils.NewRateLimiter(60, time.Minute),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ServeWS upgrades the HTTP request and starts the connection's pumps.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, hub)
	go client.WritePump()
	go client.ReadPump()
}

func (c *Client) ReadPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, messageData, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logrus.Errorf("WebSocket error for user %s: %v", c.userID, err)
				}
				return
			}

			c.lastActivity = time.Now()

			if !c.rateLimiter.Allow() {
				c.sendError(models.WSErrorRateLimit, "Rate limit exceeded")
				continue
			}

			c.handleMessage(messageData)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for user %s: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.pingFailCount++
				if c.pingFailCount > 3 {
					logrus.Warnf("Ping failed for user %s, disconnecting", c.userID)
					return
				}
			}
		}
	}
}

func (c *Client) handleMessage(messageData []byte) {
	var wsRequest models.WSRequest
	if err := json.Unmarshal(messageData, &wsRequest); err != nil {
		c.sendError(models.WSErrorInvalidMessage, "Invalid message format")
		return
	}

	if wsRequest.Type != models.WSTypeAuth && !c.isAuthenticated {
		c.sendError(models.WSErrorUnauthorized, "Authentication required")
		return
	}

	switch wsRequest.Type {
	case models.WSTypeAuth:
		c.handleAuth(wsRequest)
	case models.WSTypeJoin:
		c.handleJoin(wsRequest)
	case models.WSTypeLeave:
		c.handleLeave(wsRequest)
	case models.WSTypePing:
		c.handlePing(wsRequest)
	default:
		c.sendError(models.WSErrorInvalidMessage, "Unknown message type")
	}
}

func (c *Client) handleAuth(request models.WSRequest) {
	token, ok := request.Data["token"].(string)
	if !ok || token == "" {
		c.sendError(models.WSErrorUnauthorized, "Token required")
		return
	}

	user, err := c.hub.authService.Authenticate(c.ctx, token)
	if err != nil {
		c.sendError(models.WSErrorUnauthorized, "Invalid token")
		return
	}

	c.userID = user.ID.Hex()
	c.user = user
	c.isAuthenticated = true

	c.hub.register <- c

	c.sendResponse(models.WSTypeAuth, map[string]interface{}{
		"success": true,
		"userId":  c.userID,
	}, request.RequestID)

	logrus.Infof("Client authenticated: %s (%s)", c.userID, c.connectionID)
}

// handleJoin subscribes the connection to an emergency's channel. The
// sentinel "current" means the caller's own open emergency. Authenticated
// identity is the only gate; channel payloads arrive already masked.
func (c *Client) handleJoin(request models.WSRequest) {
	emergencyID, ok := request.Data["emergencyId"].(string)
	if !ok || emergencyID == "" {
		c.sendError(models.WSErrorInvalidMessage, "Emergency ID required")
		return
	}

	if emergencyID == models.WSJoinCurrent {
		resolved, err := c.hub.emergencyService.CurrentEmergencyID(c.ctx, c.userID)
		if err != nil {
			c.sendError(models.WSErrorNotFound, "You have no active emergency")
			return
		}
		emergencyID = resolved
	} else if _, err := c.hub.emergencyService.GetEmergency(c.ctx, c.userID, emergencyID); err != nil {
		c.sendError(models.WSErrorNotFound, "Emergency not found")
		return
	}

	c.hub.JoinRoom(c, emergencyID)

	c.sendResponse(models.WSTypeJoined, models.WSJoinAck{
		EmergencyID: emergencyID,
		Timestamp:   time.Now(),
	}, request.RequestID)
}

func (c *Client) handleLeave(request models.WSRequest) {
	emergencyID, ok := request.Data["emergencyId"].(string)
	if !ok || emergencyID == "" {
		c.sendError(models.WSErrorInvalidMessage, "Emergency ID required")
		return
	}

	c.hub.LeaveRoom(c, emergencyID)

	c.sendResponse(models.WSTypeLeft, models.WSJoinAck{
		EmergencyID: emergencyID,
		Timestamp:   time.Now(),
	}, request.RequestID)
}

func (c *Client) handlePing(request models.WSRequest) {
	c.sendResponse(models.WSTypePong, nil, request.RequestID)
}

// SendMessage queues a frame for delivery and reports whether it fit. A
// slow consumer loses frames rather than stalling the hub.
func (c *Client) SendMessage(message models.WSMessage) bool {
	select {
	case c.send <- message:
		return true
	default:
		logrus.Debugf("Dropping frame for slow client %s", c.userID)
		return false
	}
}

func (c *Client) sendResponse(messageType string, data interface{}, requestID string) {
	c.SendMessage(models.WSMessage{
		Type:      messageType,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

func (c *Client) sendError(code, message string) {
	c.SendMessage(models.WSMessage{
		Type: models.WSTypeError,
		Data: models.WSError{
			Code:      code,
			Message:   message,
			Timestamp: time.Now(),
		},
		Timestamp: time.Now(),
	})
}

func (c *Client) cleanup() {
	c.cancel()
	if c.isAuthenticated {
		c.hub.unregister <- c
	} else {
		c.conn.Close()
	}
}
