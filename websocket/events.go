package websocket

import (
	"time"

	"helpnet/models"
)

// Event scopes. The table below is the single place that decides how far
// each event kind travels; emitters only name the event.
const (
	scopeGlobal    = "global"
	scopeEmergency = "emergency"
)

var eventScopes = map[string]string{
	models.EventEmergencyCreated:       scopeGlobal,
	models.EventEmergencyEnded:         scopeGlobal,
	models.EventHelperJoined:           scopeEmergency,
	models.EventHelperStatusUpdate:     scopeEmergency,
	models.EventEmergencyStatusChanged: scopeEmergency,
	models.EventEmergencyResolved:      scopeEmergency,
	models.EventEmergencyCancelled:     scopeEmergency,
	models.EventEmergencyMessage:       scopeEmergency,
	models.EventEmergencyMessageDelete: scopeEmergency,
}

// Publish fans out a domain event. Created and ended frames go to every
// connected client so subscribers of a closed channel learn to leave it;
// everything else stays on the emergency's own channel. Unknown event
// kinds are dropped.
func (h *Hub) Publish(event string, emergencyID string, payload interface{}) {
	scope, ok := eventScopes[event]
	if !ok {
		return
	}

	message := models.WSMessage{
		Type:      event,
		Data:      payload,
		Timestamp: time.Now(),
	}

	switch scope {
	case scopeGlobal:
		select {
		case h.broadcastAll <- message:
		case <-h.ctx.Done():
		}
	case scopeEmergency:
		select {
		case h.broadcast <- BroadcastMessage{RoomID: emergencyID, Message: message}:
		case <-h.ctx.Done():
		}
	}
}

// SendToUser pushes a frame to every connection of one user.
func (h *Hub) SendToUser(userID string, message models.WSMessage) {
	select {
	case h.sendToUser <- UserMessage{UserID: userID, Message: message}:
	case <-h.ctx.Done():
	}
}
