package models

import (
	"time"
)

// WSMessage is the envelope for every frame pushed to a client.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WSRequest is an inbound client frame.
type WSRequest struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	RequestID string                 `json:"requestId,omitempty"`
}

// Event kinds pushed by the server. The scope each kind is dispatched to is
// fixed in the fan-out dispatch table, not chosen by the emitter.
const (
	EventEmergencyCreated       = "emergency:created"
	EventHelperJoined           = "helper:joined"
	EventHelperStatusUpdate     = "helper:status_update"
	EventEmergencyStatusChanged = "emergency:status_changed"
	EventEmergencyResolved      = "emergency:resolved"
	EventEmergencyCancelled     = "emergency:cancelled"
	EventEmergencyMessage       = "emergency:message"
	EventEmergencyMessageDelete = "emergency:message:deleted"
	EventEmergencyEnded         = "emergency:ended"
)

// Inbound request types.
const (
	WSTypeAuth  = "auth"
	WSTypeJoin  = "join"
	WSTypeLeave = "leave"
	WSTypePing  = "ping"
)

// Server ack / control frame types.
const (
	WSTypeJoined = "joined"
	WSTypeLeft   = "left"
	WSTypeError  = "error"
	WSTypePong   = "pong"
)

// WSJoinCurrent is the sentinel emergency id meaning "my currently active
// emergency".
const WSJoinCurrent = "current"

// WS error codes.
const (
	WSErrorUnauthorized   = "UNAUTHORIZED"
	WSErrorInvalidMessage = "INVALID_MESSAGE"
	WSErrorNotFound       = "NOT_FOUND"
	WSErrorRateLimit      = "RATE_LIMIT_EXCEEDED"
)

// =================== EVENT PAYLOADS ===================

// WSEmergencyCreated goes out unscoped to every connected participant;
// relevance filtering is the receiving client's job.
type WSEmergencyCreated struct {
	Emergency EmergencyView `json:"emergency"`
	Timestamp time.Time     `json:"timestamp"`
}

type WSHelperJoined struct {
	EmergencyID string    `json:"emergencyId"`
	HelperID    string    `json:"helperId"`
	Responder   Responder `json:"responder"`
	Timestamp   time.Time `json:"timestamp"`
}

type WSHelperStatusUpdate struct {
	EmergencyID string    `json:"emergencyId"`
	HelperID    string    `json:"helperId"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type WSEmergencyStatusChanged struct {
	EmergencyID string    `json:"emergencyId"`
	OldStatus   string    `json:"oldStatus"`
	NewStatus   string    `json:"newStatus"`
	Timestamp   time.Time `json:"timestamp"`
}

type WSEmergencyResolved struct {
	EmergencyID    string    `json:"emergencyId"`
	ResolvedBy     string    `json:"resolvedBy"`
	ResolutionType string    `json:"resolutionType"`
	Timestamp      time.Time `json:"timestamp"`
}

type WSEmergencyCancelled struct {
	EmergencyID string    `json:"emergencyId"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type WSEmergencyMessage struct {
	EmergencyID string             `json:"emergencyId"`
	Message     SessionMessageView `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
}

type WSEmergencyMessageDeleted struct {
	EmergencyID string    `json:"emergencyId"`
	MessageID   string    `json:"messageId"`
	Timestamp   time.Time `json:"timestamp"`
}

// WSEmergencyEnded is rebroadcast unscoped so clients still subscribed to a
// closed channel learn to leave it.
type WSEmergencyEnded struct {
	EmergencyID string    `json:"emergencyId"`
	FinalStatus string    `json:"finalStatus"`
	Timestamp   time.Time `json:"timestamp"`
}

type WSError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type WSJoinAck struct {
	EmergencyID string    `json:"emergencyId"`
	Timestamp   time.Time `json:"timestamp"`
}
