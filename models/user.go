package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the identity projection this core consumes. Credentials and
// account management live in the external identity service; this record
// carries just what discovery, messaging and trust scoring need.
type User struct {
	ID    primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Email string             `json:"email" bson:"email"`
	Phone string             `json:"phone,omitempty" bson:"phone,omitempty"`

	FirstName string `json:"firstName" bson:"firstName"`
	LastName  string `json:"lastName" bson:"lastName"`

	IsActive  bool `json:"isActive" bson:"isActive"`
	IsBlocked bool `json:"isBlocked" bson:"isBlocked"`

	// TrustScore is a bounded integer reputation value in [0, TrustScoreMax],
	// adjusted as a side effect of responder actions.
	TrustScore     int `json:"trustScore" bson:"trustScore"`
	EmergencyCount int `json:"emergencyCount" bson:"emergencyCount"`

	Contacts []EmergencyContact `json:"contacts,omitempty" bson:"contacts,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// EmergencyContact is a person to alert when the user raises an emergency.
type EmergencyContact struct {
	Name  string `json:"name" bson:"name"`
	Phone string `json:"phone" bson:"phone"`
}

// Trust score policy: fixed deltas, clamped into [0, TrustScoreMax].
const (
	TrustScoreMax     = 100
	TrustScoreBonus   = 5
	TrustScorePenalty = 10
	TrustScoreInitial = 50
)

// DisplayName resolves the user's display name with the defined fallback
// order: full name, first name only, email local part.
func (u *User) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return ""
}

// Initial returns the single-letter initial shown beside the role label
// under anonymous mode.
func (u *User) Initial() string {
	name := u.DisplayName()
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1])
}
