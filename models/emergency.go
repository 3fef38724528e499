package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Emergency is the aggregate root for one SOS episode, from creation to
// terminal resolution or cancellation. Responders are embedded in the same
// document so a single conditional update covers both the responder set and
// the lifecycle status.
type Emergency struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	CreatorID primitive.ObjectID `json:"creatorId" bson:"creatorId"`
	Status    string             `json:"status" bson:"status"`

	Type        string `json:"type" bson:"type"`
	Category    string `json:"category,omitempty" bson:"category,omitempty"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	Priority    string `json:"priority" bson:"priority"`
	Severity    int    `json:"severity" bson:"severity"`

	Location EmergencyLocation `json:"location" bson:"location"`
	// Geo mirrors Location as a GeoJSON point for the 2dsphere index.
	Geo GeoPoint `json:"-" bson:"geo"`

	SilentMode    bool    `json:"silentMode" bson:"silentMode"`
	AnonymousMode bool    `json:"anonymousMode" bson:"anonymousMode"`
	FakeCallAlert bool    `json:"fakeCallAlert" bson:"fakeCallAlert"`
	AvoidRadiusKm float64 `json:"avoidRadiusKm" bson:"avoidRadiusKm"`

	// Responders is keyed by helper ID, making the one-entry-per-helper
	// invariant structural. Response order is recoverable from RespondedAt.
	Responders map[string]Responder `json:"responders" bson:"responders"`

	IdempotencyKey string `json:"idempotencyKey,omitempty" bson:"idempotencyKey,omitempty"`

	ResolvedAt      *time.Time         `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	ResolvedBy      primitive.ObjectID `json:"resolvedBy,omitempty" bson:"resolvedBy,omitempty"`
	ResolutionType  string             `json:"resolutionType,omitempty" bson:"resolutionType,omitempty"`
	ResolutionNotes string             `json:"resolutionNotes,omitempty" bson:"resolutionNotes,omitempty"`
	CancelReason    string             `json:"cancelReason,omitempty" bson:"cancelReason,omitempty"`

	ActivatedAt     time.Time  `json:"activatedAt" bson:"activatedAt"`
	FirstResponseAt *time.Time `json:"firstResponseAt,omitempty" bson:"firstResponseAt,omitempty"`
	LastUpdatedAt   time.Time  `json:"lastUpdatedAt" bson:"lastUpdatedAt"`
}

type EmergencyLocation struct {
	Latitude  float64 `json:"latitude" bson:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" bson:"longitude" validate:"min=-180,max=180"`
	Address   string  `json:"address,omitempty" bson:"address,omitempty"`
}

// GeoPoint is the GeoJSON form MongoDB's 2dsphere index expects:
// coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{lon, lat}}
}

// Responder is one helper's registered intent to assist, with its own
// sub-status. Entries are never deleted, even after resolution.
type Responder struct {
	HelperID         primitive.ObjectID `json:"helperId" bson:"helperId"`
	Status           string             `json:"status" bson:"status"`
	RespondedAt      time.Time          `json:"respondedAt" bson:"respondedAt"`
	EstimatedArrival *time.Time         `json:"estimatedArrival,omitempty" bson:"estimatedArrival,omitempty"`
	Notes            string             `json:"notes,omitempty" bson:"notes,omitempty"`

	Reported     bool   `json:"reported,omitempty" bson:"reported,omitempty"`
	ReportReason string `json:"reportReason,omitempty" bson:"reportReason,omitempty"`
}

// Emergency status constants
const (
	EmergencyStatusActive     = "active"
	EmergencyStatusResponding = "responding"
	EmergencyStatusResolved   = "resolved"
	EmergencyStatusCancelled  = "cancelled"
)

// Responder status constants
const (
	ResponderStatusResponding = "responding"
	ResponderStatusOnWay      = "on_way"
	ResponderStatusArrived    = "arrived"
	ResponderStatusCompleted  = "completed"
	ResponderStatusCancelled  = "cancelled"
)

// Resolution type constants
const (
	ResolutionUserResolved   = "user_resolved"
	ResolutionHelperResolved = "helper_resolved"
	ResolutionAutoExpired    = "auto_expired"
	ResolutionAdminResolved  = "admin_resolved"
)

// Priority constants
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// AvoidRadiusKm bounds. The radius tunes discovery, it is not a hard
// exclusion boundary.
const (
	AvoidRadiusMinKm = 0.5
	AvoidRadiusMaxKm = 2.0
)

// IsTerminal reports whether the emergency has reached a terminal state.
func (e *Emergency) IsTerminal() bool {
	return e.Status == EmergencyStatusResolved || e.Status == EmergencyStatusCancelled
}

// IsOpen reports whether the emergency still accepts responders and messages.
func (e *Emergency) IsOpen() bool {
	return e.Status == EmergencyStatusActive || e.Status == EmergencyStatusResponding
}

// HasResponder reports whether the helper already has an entry.
func (e *Emergency) HasResponder(helperID string) bool {
	_, ok := e.Responders[helperID]
	return ok
}

// ResponderList returns responders in arrival order.
func (e *Emergency) ResponderList() []Responder {
	list := make([]Responder, 0, len(e.Responders))
	for _, r := range e.Responders {
		list = append(list, r)
	}
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].RespondedAt.Before(list[j-1].RespondedAt); j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
	return list
}

// PriorityRank maps a priority label to a sortable weight; unknown labels
// rank lowest.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsValidResponderStatus reports whether s is one of the responder
// sub-states a helper may set on their own entry.
func IsValidResponderStatus(s string) bool {
	switch s {
	case ResponderStatusResponding, ResponderStatusOnWay, ResponderStatusArrived,
		ResponderStatusCompleted, ResponderStatusCancelled:
		return true
	}
	return false
}

// IsValidResolutionType reports whether s is a known resolution type.
func IsValidResolutionType(s string) bool {
	switch s {
	case ResolutionUserResolved, ResolutionHelperResolved,
		ResolutionAutoExpired, ResolutionAdminResolved:
		return true
	}
	return false
}

// =================== REQUEST MODELS ===================

type CreateEmergencyRequest struct {
	Type           string            `json:"type" validate:"required"`
	Category       string            `json:"category,omitempty"`
	Description    string            `json:"description,omitempty"`
	Priority       string            `json:"priority" validate:"required,oneof=low medium high critical"`
	Severity       int               `json:"severity" validate:"required,min=1,max=10"`
	Location       EmergencyLocation `json:"location" validate:"required"`
	SilentMode     bool              `json:"silentMode"`
	AnonymousMode  bool              `json:"anonymousMode"`
	FakeCallAlert  bool              `json:"fakeCallAlert"`
	AvoidRadiusKm  float64           `json:"avoidRadiusKm" validate:"omitempty,min=0.5,max=2"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

type AddResponderRequest struct {
	EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

type UpdateResponderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=responding on_way arrived completed cancelled"`
	Notes  string `json:"notes,omitempty"`
}

type ResolveEmergencyRequest struct {
	ResolutionType  string `json:"resolutionType" validate:"required,oneof=user_resolved helper_resolved auto_expired admin_resolved"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
}

type CancelEmergencyRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ReportResponderRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// =================== VIEW MODELS ===================

// EmergencyView is the outward projection of an Emergency. Under anonymous
// mode the creator is reduced to an opaque id; no name or contact fields
// survive.
type EmergencyView struct {
	ID              string            `json:"id"`
	CreatorID       string            `json:"creatorId"`
	CreatorName     string            `json:"creatorName,omitempty"`
	Status          string            `json:"status"`
	Type            string            `json:"type"`
	Category        string            `json:"category,omitempty"`
	Description     string            `json:"description,omitempty"`
	Priority        string            `json:"priority"`
	Severity        int               `json:"severity"`
	Location        EmergencyLocation `json:"location"`
	SilentMode      bool              `json:"silentMode"`
	AnonymousMode   bool              `json:"anonymousMode"`
	FakeCallAlert   bool              `json:"fakeCallAlert"`
	AvoidRadiusKm   float64           `json:"avoidRadiusKm"`
	Responders      []Responder       `json:"responders"`
	ResolutionType  string            `json:"resolutionType,omitempty"`
	ResolutionNotes string            `json:"resolutionNotes,omitempty"`
	ActivatedAt     time.Time         `json:"activatedAt"`
	FirstResponseAt *time.Time        `json:"firstResponseAt,omitempty"`
	ResolvedAt      *time.Time        `json:"resolvedAt,omitempty"`
}
