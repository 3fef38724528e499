package websocket

import (
	"sync"
	"time"

	"helpnet/models"

	"github.com/sirupsen/logrus"
)

// Room is one emergency's delivery channel. A room exists only while it
// has subscribers; the hub creates it on first join and drops it on last
// leave.
type Room struct {
	ID string

	clients map[*Client]bool
	mutex   sync.RWMutex

	stats RoomStats

	createdAt    time.Time
	lastActivity time.Time
}

type RoomStats struct {
	TotalClients    int64
	MessagesSent    int64
	MessagesDropped int64

	mutex sync.RWMutex
}

func NewRoom(emergencyID string) *Room {
	logrus.Debugf("Created room: %s", emergencyID)
	return &Room{
		ID:           emergencyID,
		clients:      make(map[*Client]bool),
		createdAt:    time.Now(),
		lastActivity: time.Now(),
	}
}

func (r *Room) AddClient(client *Client) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if client == nil || r.clients[client] {
		return
	}

	r.clients[client] = true
	r.lastActivity = time.Now()
	r.stats.mutex.Lock()
	r.stats.TotalClients++
	r.stats.mutex.Unlock()

	logrus.Debugf("Client %s joined room %s (Total: %d)", client.userID, r.ID, len(r.clients))
}

func (r *Room) RemoveClient(client *Client) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.clients, client)
	r.lastActivity = time.Now()
}

func (r *Room) IsEmpty() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.clients) == 0
}

func (r *Room) ClientCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.clients)
}

// Broadcast delivers the frame to every subscriber the filter admits.
func (r *Room) Broadcast(message models.WSMessage, filter MessageFilter) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for client := range r.clients {
		if !filter.admits(client.userID) {
			continue
		}
		if client.SendMessage(message) {
			r.stats.mutex.Lock()
			r.stats.MessagesSent++
			r.stats.mutex.Unlock()
		} else {
			r.stats.mutex.Lock()
			r.stats.MessagesDropped++
			r.stats.mutex.Unlock()
		}
	}
}

func (f MessageFilter) admits(userID string) bool {
	for _, excluded := range f.ExcludeUsers {
		if excluded == userID {
			return false
		}
	}
	if len(f.IncludeUsers) == 0 {
		return true
	}
	for _, included := range f.IncludeUsers {
		if included == userID {
			return true
		}
	}
	return false
}
