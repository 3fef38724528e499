package services

import (
	"context"
	"sync"
	"time"

	"helpnet/models"
	"helpnet/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository fakes. They mimic the store's conditional update
// semantics so the lifecycle races can be exercised without a database.

type fakeEmergencyRepo struct {
	mu          sync.Mutex
	emergencies map[string]*models.Emergency
	failReads   bool
}

func newFakeEmergencyRepo() *fakeEmergencyRepo {
	return &fakeEmergencyRepo{
		emergencies: make(map[string]*models.Emergency),
	}
}

func cloneEmergency(e *models.Emergency) *models.Emergency {
	clone := *e
	clone.Responders = make(map[string]models.Responder, len(e.Responders))
	for k, v := range e.Responders {
		clone.Responders[k] = v
	}
	return &clone
}

func (f *fakeEmergencyRepo) Create(ctx context.Context, emergency *models.Emergency) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, existing := range f.emergencies {
		if emergency.IdempotencyKey != "" && existing.IdempotencyKey == emergency.IdempotencyKey {
			return utils.NewConflictError("Emergency already exists")
		}
	}

	emergency.ID = primitive.NewObjectID()
	f.emergencies[emergency.ID.Hex()] = cloneEmergency(emergency)
	return nil
}

func (f *fakeEmergencyRepo) GetByID(ctx context.Context, id string) (*models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReads {
		return nil, utils.NewDatabaseError("get emergency", context.DeadlineExceeded)
	}
	e, ok := f.emergencies[id]
	if !ok {
		return nil, utils.NewNotFoundError("Emergency")
	}
	return cloneEmergency(e), nil
}

func (f *fakeEmergencyRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.emergencies {
		if e.IdempotencyKey == key {
			return cloneEmergency(e), nil
		}
	}
	return nil, utils.NewNotFoundError("Emergency")
}

func (f *fakeEmergencyRepo) GetOpenByCreator(ctx context.Context, creatorID string) (*models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, e := range f.emergencies {
		if e.CreatorID.Hex() == creatorID && e.IsOpen() {
			return cloneEmergency(e), nil
		}
	}
	return nil, utils.NewNotFoundError("Emergency")
}

func (f *fakeEmergencyRepo) Update(ctx context.Context, id string, fields bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.emergencies[id]
	if !ok {
		return utils.NewNotFoundError("Emergency")
	}
	applyEmergencyFields(e, fields)
	return nil
}

func (f *fakeEmergencyRepo) SetResponder(ctx context.Context, id, helperID string, responder models.Responder) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.emergencies[id]
	if !ok {
		return utils.NewNotFoundError("Emergency")
	}
	if e.Responders == nil {
		e.Responders = make(map[string]models.Responder)
	}
	e.Responders[helperID] = responder
	e.LastUpdatedAt = time.Now()
	return nil
}

func (f *fakeEmergencyRepo) UpdateResponder(ctx context.Context, id, helperID string, fields bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.emergencies[id]
	if !ok {
		return utils.NewNotFoundError("Emergency")
	}
	r, ok := e.Responders[helperID]
	if !ok {
		return utils.NewNotFoundError("Responder")
	}
	if v, ok := fields["status"].(string); ok {
		r.Status = v
	}
	if v, ok := fields["notes"].(string); ok {
		r.Notes = v
	}
	if v, ok := fields["reported"].(bool); ok {
		r.Reported = v
	}
	if v, ok := fields["reportReason"].(string); ok {
		r.ReportReason = v
	}
	e.Responders[helperID] = r
	return nil
}

func (f *fakeEmergencyRepo) TransitionStatus(ctx context.Context, id string, from []string, to string, extra bson.M) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.emergencies[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if e.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	e.Status = to
	applyEmergencyFields(e, extra)
	e.LastUpdatedAt = time.Now()
	return true, nil
}

func applyEmergencyFields(e *models.Emergency, fields bson.M) {
	for key, value := range fields {
		switch key {
		case "firstResponseAt":
			if t, ok := value.(time.Time); ok {
				e.FirstResponseAt = &t
			}
		case "resolvedAt":
			if t, ok := value.(time.Time); ok {
				e.ResolvedAt = &t
			}
		case "resolvedBy":
			if oid, ok := value.(primitive.ObjectID); ok {
				e.ResolvedBy = oid
			}
		case "resolutionType":
			if s, ok := value.(string); ok {
				e.ResolutionType = s
			}
		case "resolutionNotes":
			if s, ok := value.(string); ok {
				e.ResolutionNotes = s
			}
		case "cancelReason":
			if s, ok := value.(string); ok {
				e.CancelReason = s
			}
		}
	}
}

func (f *fakeEmergencyRepo) GetNearbyOpen(ctx context.Context, lat, lon, radiusMeters float64, limit int64) ([]models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReads {
		return nil, utils.NewDatabaseError("nearby emergencies", context.DeadlineExceeded)
	}

	var result []models.Emergency
	for _, e := range f.emergencies {
		if !e.IsOpen() {
			continue
		}
		distance := utils.CalculateDistance(lat, lon, e.Location.Latitude, e.Location.Longitude)
		if distance <= radiusMeters {
			result = append(result, *cloneEmergency(e))
			if limit > 0 && int64(len(result)) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (f *fakeEmergencyRepo) GetOpenExcluding(ctx context.Context, helperID string) ([]models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failReads {
		return nil, utils.NewDatabaseError("pending emergencies", context.DeadlineExceeded)
	}

	var result []models.Emergency
	for _, e := range f.emergencies {
		if !e.IsOpen() || e.CreatorID.Hex() == helperID || e.HasResponder(helperID) {
			continue
		}
		result = append(result, *cloneEmergency(e))
	}
	return result, nil
}

func (f *fakeEmergencyRepo) GetByCreator(ctx context.Context, creatorID string, limit int64) ([]models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.Emergency
	for _, e := range f.emergencies {
		if e.CreatorID.Hex() == creatorID {
			result = append(result, *cloneEmergency(e))
		}
	}
	return result, nil
}

func (f *fakeEmergencyRepo) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]models.Emergency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.Emergency
	for _, e := range f.emergencies {
		if e.IsOpen() && e.ActivatedAt.Before(cutoff) {
			result = append(result, *cloneEmergency(e))
		}
	}
	return result, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) addUser(user *models.User) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	f.users[user.ID.Hex()] = user
	return user.ID.Hex()
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("User")
	}
	clone := *u
	return &clone, nil
}

func (f *fakeUserRepo) AdjustTrustScore(ctx context.Context, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return utils.NewNotFoundError("User")
	}
	u.TrustScore = utils.ClampInt(u.TrustScore+delta, 0, models.TrustScoreMax)
	return nil
}

func (f *fakeUserRepo) IncrementEmergencyCount(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return utils.NewNotFoundError("User")
	}
	u.EmergencyCount++
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.SessionMessage
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{}
}

func (f *fakeMessageRepo) Create(ctx context.Context, message *models.SessionMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	message.ID = primitive.NewObjectID()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	clone := *message
	f.messages = append(f.messages, &clone)
	return nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*models.SessionMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, m := range f.messages {
		if m.ID.Hex() == id {
			clone := *m
			return &clone, nil
		}
	}
	return nil, utils.NewNotFoundError("Message")
}

func (f *fakeMessageRepo) GetBySession(ctx context.Context, sessionID string, limit int64, before *time.Time) ([]models.SessionMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.SessionMessage
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.SessionID.Hex() != sessionID {
			continue
		}
		if before != nil && !m.CreatedAt.Before(*before) {
			continue
		}
		result = append(result, *m)
		if limit > 0 && int64(len(result)) >= limit {
			break
		}
	}
	return result, nil
}

func (f *fakeMessageRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, m := range f.messages {
		if m.ID.Hex() == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return nil
		}
	}
	return utils.NewNotFoundError("Message")
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Event       string
	EmergencyID string
	Payload     interface{}
}

func (r *recordingPublisher) Publish(event string, emergencyID string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{Event: event, EmergencyID: emergencyID, Payload: payload})
}

func (r *recordingPublisher) countOf(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.Event == event {
			count++
		}
	}
	return count
}

// fakeOutbox records enqueued jobs.
type fakeOutbox struct {
	mu   sync.Mutex
	jobs []models.OutboxJob
}

func (f *fakeOutbox) Enqueue(job models.OutboxJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
}

func (f *fakeOutbox) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}
