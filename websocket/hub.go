package websocket

import (
	"context"
	"sync"
	"time"

	"helpnet/models"
	"helpnet/services"

	"github.com/sirupsen/logrus"
)

// Hub owns every live connection and the per-emergency channels they
// subscribe to. It is a pure delivery layer: the repositories stay the
// source of truth and a dropped frame is never an error.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Per-emergency channels
	rooms map[string]*Room

	// User to clients mapping for direct frames
	userClients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast to one emergency's channel
	broadcast chan BroadcastMessage

	// Broadcast to every connected client
	broadcastAll chan models.WSMessage

	// Send to one user's connections
	sendToUser chan UserMessage

	// Service dependencies
	authService      *services.AuthService
	emergencyService *services.EmergencyService

	stats HubStats

	mutex sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

type BroadcastMessage struct {
	RoomID  string
	Message models.WSMessage
	Filter  MessageFilter
}

type UserMessage struct {
	UserID  string
	Message models.WSMessage
}

// MessageFilter narrows a broadcast's audience.
type MessageFilter struct {
	ExcludeUsers []string
	IncludeUsers []string
}

type HubStats struct {
	TotalConnections  int64
	ActiveConnections int
	MessagesSent      int64
	StartTime         time.Time

	mutex sync.RWMutex
}

func NewHub(authService *services.AuthService) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		clients:      make(map[*Client]bool),
		rooms:        make(map[string]*Room),
		userClients:  make(map[string]map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		broadcast:    make(chan BroadcastMessage, 64),
		broadcastAll: make(chan models.WSMessage, 64),
		sendToUser:   make(chan UserMessage, 64),
		authService:  authService,
		stats: HubStats{
			StartTime: time.Now(),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetEmergencyService wires the lifecycle service after construction; the
// hub and the service reference each other.
func (h *Hub) SetEmergencyService(emergencyService *services.EmergencyService) {
	h.emergencyService = emergencyService
}

func (h *Hub) Run() {
	logrus.Info("WebSocket Hub starting...")

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToRoom(message)

		case message := <-h.broadcastAll:
			h.broadcastToAll(message)

		case userMessage := <-h.sendToUser:
			h.sendMessageToUser(userMessage)

		case <-h.ctx.Done():
			logrus.Info("WebSocket Hub shutting down...")
			return
		}
	}
}

func (h *Hub) Shutdown() {
	h.cancel()
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	if h.userClients[client.userID] == nil {
		h.userClients[client.userID] = make(map[*Client]bool)
	}
	h.userClients[client.userID][client] = true
	h.stats.ActiveConnections++
	h.stats.TotalConnections++

	logrus.Infof("Client registered: %s (Total: %d)", client.userID, h.stats.ActiveConnections)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	if conns := h.userClients[client.userID]; conns != nil {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.userClients, client.userID)
		}
	}
	h.stats.ActiveConnections--

	for roomID := range client.roomIDs {
		if room, exists := h.rooms[roomID]; exists {
			room.RemoveClient(client)
			if room.IsEmpty() {
				delete(h.rooms, roomID)
			}
		}
	}

	close(client.send)

	logrus.Infof("Client unregistered: %s (Total: %d)", client.userID, h.stats.ActiveConnections)
}

// JoinRoom subscribes the client to an emergency's channel.
func (h *Hub) JoinRoom(client *Client, emergencyID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	room := h.getOrCreateRoom(emergencyID)
	room.AddClient(client)
	client.roomIDs[emergencyID] = true
}

// LeaveRoom unsubscribes the client from an emergency's channel.
func (h *Hub) LeaveRoom(client *Client, emergencyID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	delete(client.roomIDs, emergencyID)
	if room, exists := h.rooms[emergencyID]; exists {
		room.RemoveClient(client)
		if room.IsEmpty() {
			delete(h.rooms, emergencyID)
		}
	}
}

func (h *Hub) broadcastToRoom(broadcastMsg BroadcastMessage) {
	h.mutex.RLock()
	room := h.rooms[broadcastMsg.RoomID]
	h.mutex.RUnlock()

	if room != nil {
		room.Broadcast(broadcastMsg.Message, broadcastMsg.Filter)
		h.incrementMessagesSent()
	}
}

func (h *Hub) broadcastToAll(message models.WSMessage) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		client.SendMessage(message)
	}
	h.incrementMessagesSent()
}

func (h *Hub) sendMessageToUser(userMessage UserMessage) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.userClients[userMessage.UserID] {
		client.SendMessage(userMessage.Message)
	}
	h.incrementMessagesSent()
}

func (h *Hub) getOrCreateRoom(roomID string) *Room {
	if room, exists := h.rooms[roomID]; exists {
		return room
	}

	room := NewRoom(roomID)
	h.rooms[roomID] = room
	return room
}

func (h *Hub) incrementMessagesSent() {
	h.stats.mutex.Lock()
	h.stats.MessagesSent++
	h.stats.mutex.Unlock()
}

// GetStats returns a snapshot of hub activity.
func (h *Hub) GetStats() HubStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	h.stats.mutex.RLock()
	defer h.stats.mutex.RUnlock()

	return HubStats{
		TotalConnections:  h.stats.TotalConnections,
		ActiveConnections: h.stats.ActiveConnections,
		MessagesSent:      h.stats.MessagesSent,
		StartTime:         h.stats.StartTime,
	}
}
