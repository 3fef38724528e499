package repositories

import (
	"context"
	"time"

	"helpnet/models"

	"go.mongodb.org/mongo-driver/bson"
)

// EmergencyRepository is the durable record of Emergency aggregates — the
// single source of truth. The real-time layer is never authoritative.
type EmergencyRepository interface {
	Create(ctx context.Context, emergency *models.Emergency) error
	GetByID(ctx context.Context, id string) (*models.Emergency, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Emergency, error)
	// GetOpenByCreator returns the creator's emergency with status
	// active or responding, or a NotFound error when there is none.
	GetOpenByCreator(ctx context.Context, creatorID string) (*models.Emergency, error)
	Update(ctx context.Context, id string, fields bson.M) error
	// SetResponder writes the helper's responder entry under its key.
	SetResponder(ctx context.Context, id, helperID string, responder models.Responder) error
	// UpdateResponder mutates fields of an existing responder entry.
	UpdateResponder(ctx context.Context, id, helperID string, fields bson.M) error
	// TransitionStatus performs a compare-and-swap on the status field and
	// reports whether the swap won.
	TransitionStatus(ctx context.Context, id string, from []string, to string, extra bson.M) (bool, error)
	// GetNearbyOpen returns open emergencies within radiusMeters of the
	// point, closest first (2dsphere $near contract).
	GetNearbyOpen(ctx context.Context, lat, lon, radiusMeters float64, limit int64) ([]models.Emergency, error)
	// GetOpenExcluding returns open emergencies not created by and not yet
	// responded to by the given helper.
	GetOpenExcluding(ctx context.Context, helperID string) ([]models.Emergency, error)
	GetByCreator(ctx context.Context, creatorID string, limit int64) ([]models.Emergency, error)
	GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]models.Emergency, error)
}

// MessageRepository stores an emergency's conversation thread. Messages
// live in their own collection so they can be paginated independently.
type MessageRepository interface {
	Create(ctx context.Context, message *models.SessionMessage) error
	GetByID(ctx context.Context, id string) (*models.SessionMessage, error)
	// GetBySession returns messages for the session, newest first, created
	// strictly before the cursor when one is given.
	GetBySession(ctx context.Context, sessionID string, limit int64, before *time.Time) ([]models.SessionMessage, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository is the identity projection consumed by this core, plus the
// atomic trust-score adjustment the identity service exposes.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// AdjustTrustScore atomically adds delta and clamps the result into
	// [0, TrustScoreMax] in a single store round trip.
	AdjustTrustScore(ctx context.Context, id string, delta int) error
	IncrementEmergencyCount(ctx context.Context, id string) error
}
