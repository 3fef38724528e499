package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionMessage is one entry in an emergency's conversation thread. The
// sender role is derived server-side and never trusted from the caller.
// Messages are never updated in place; the sender may delete their own.
type SessionMessage struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	SessionID  primitive.ObjectID `json:"sessionId" bson:"sessionId"`
	SenderID   primitive.ObjectID `json:"senderId" bson:"senderId"`
	SenderRole string             `json:"senderRole" bson:"senderRole"`
	Body       string             `json:"body" bson:"body"`
	IsSystem   bool               `json:"isSystem,omitempty" bson:"isSystem,omitempty"`
	CreatedAt  time.Time          `json:"createdAt" bson:"createdAt"`
}

// Sender role constants
const (
	SenderRoleCreator = "creator"
	SenderRoleHelper  = "helper"
)

// Role labels used in place of real names under anonymous mode.
const (
	RoleLabelCreator = "Emergency Creator"
	RoleLabelHelper  = "Helper"
)

// MaxMessageBodyLength bounds the message body.
const MaxMessageBodyLength = 2000

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// SessionMessageView is the per-viewer projection of a message. The raw
// sender id always survives so the client can compute ownership, but under
// anonymous mode every other identity attribute is masked.
type SessionMessageView struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	SenderID    string    `json:"senderId"`
	SenderRole  string    `json:"senderRole"`
	DisplayName string    `json:"displayName"`
	Body        string    `json:"body"`
	IsMine      bool      `json:"isMine"`
	IsSystem    bool      `json:"isSystem,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
