package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/services"
	"helpnet/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type stubEmergencyRepo struct {
	mu          sync.Mutex
	emergencies map[string]*models.Emergency
}

func (s *stubEmergencyRepo) add(e *models.Emergency) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emergencies == nil {
		s.emergencies = make(map[string]*models.Emergency)
	}
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	s.emergencies[e.ID.Hex()] = e
	return e.ID.Hex()
}

func (s *stubEmergencyRepo) GetByID(ctx context.Context, id string) (*models.Emergency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emergencies[id]
	if !ok {
		return nil, utils.NewNotFoundError("Emergency")
	}
	return e, nil
}

func (s *stubEmergencyRepo) Create(ctx context.Context, e *models.Emergency) error { return nil }
func (s *stubEmergencyRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Emergency, error) {
	return nil, utils.NewNotFoundError("Emergency")
}
func (s *stubEmergencyRepo) GetOpenByCreator(ctx context.Context, creatorID string) (*models.Emergency, error) {
	return nil, utils.NewNotFoundError("Emergency")
}
func (s *stubEmergencyRepo) Update(ctx context.Context, id string, fields bson.M) error { return nil }
func (s *stubEmergencyRepo) SetResponder(ctx context.Context, id, helperID string, responder models.Responder) error {
	return nil
}
func (s *stubEmergencyRepo) UpdateResponder(ctx context.Context, id, helperID string, fields bson.M) error {
	return nil
}
func (s *stubEmergencyRepo) TransitionStatus(ctx context.Context, id string, from []string, to string, extra bson.M) (bool, error) {
	return false, nil
}
func (s *stubEmergencyRepo) GetNearbyOpen(ctx context.Context, lat, lon, radiusMeters float64, limit int64) ([]models.Emergency, error) {
	return nil, nil
}
func (s *stubEmergencyRepo) GetOpenExcluding(ctx context.Context, helperID string) ([]models.Emergency, error) {
	return nil, nil
}
func (s *stubEmergencyRepo) GetByCreator(ctx context.Context, creatorID string, limit int64) ([]models.Emergency, error) {
	return nil, nil
}
func (s *stubEmergencyRepo) GetOpenOlderThan(ctx context.Context, cutoff time.Time) ([]models.Emergency, error) {
	return nil, nil
}

var _ repositories.EmergencyRepository = (*stubEmergencyRepo)(nil)

type stubUserRepo struct {
	user *models.User
}

func (s *stubUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil {
		return nil, utils.NewNotFoundError("User")
	}
	return s.user, nil
}
func (s *stubUserRepo) AdjustTrustScore(ctx context.Context, id string, delta int) error { return nil }
func (s *stubUserRepo) IncrementEmergencyCount(ctx context.Context, id string) error     { return nil }

func TestOutboxWorkerProcessesContactAlerts(t *testing.T) {
	userRepo := &stubUserRepo{user: &models.User{
		ID:        primitive.NewObjectID(),
		FirstName: "Alice",
		Contacts:  []models.EmergencyContact{{Name: "Mom", Phone: "+15550001111"}},
	}}
	emergencyRepo := &stubEmergencyRepo{}
	emergencyID := emergencyRepo.add(&models.Emergency{
		Status:   models.EmergencyStatusActive,
		Type:     "medical",
		Priority: models.PriorityHigh,
	})

	// No provider configured, so the send path is a logged no-op.
	notifications := services.NewNotificationService(userRepo, "", "", "")

	worker := NewOutboxWorker(notifications, emergencyRepo)
	worker.Start()
	defer worker.Stop()

	worker.Enqueue(models.OutboxJob{
		Kind:        models.OutboxKindContactAlert,
		UserID:      userRepo.user.ID.Hex(),
		EmergencyID: emergencyID,
		EnqueuedAt:  time.Now(),
	})

	require.Eventually(t, func() bool {
		return worker.GetStats().JobsProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOutboxWorkerSkipsSilentEmergencies(t *testing.T) {
	userRepo := &stubUserRepo{user: &models.User{
		ID:       primitive.NewObjectID(),
		Contacts: []models.EmergencyContact{{Name: "Mom", Phone: "+15550001111"}},
	}}
	emergencyRepo := &stubEmergencyRepo{}
	emergencyID := emergencyRepo.add(&models.Emergency{
		Status:     models.EmergencyStatusActive,
		SilentMode: true,
	})

	notifications := services.NewNotificationService(userRepo, "", "", "")

	worker := NewOutboxWorker(notifications, emergencyRepo)
	worker.Start()
	defer worker.Stop()

	worker.Enqueue(models.OutboxJob{
		Kind:        models.OutboxKindContactAlert,
		UserID:      userRepo.user.ID.Hex(),
		EmergencyID: emergencyID,
	})

	require.Eventually(t, func() bool {
		return worker.GetStats().JobsProcessed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOutboxWorkerRetriesThenDropsFailedJobs(t *testing.T) {
	emergencyRepo := &stubEmergencyRepo{}
	notifications := services.NewNotificationService(&stubUserRepo{}, "", "", "")

	worker := NewOutboxWorker(notifications, emergencyRepo)
	worker.config.RetryDelay = 10 * time.Millisecond
	worker.Start()
	defer worker.Stop()

	// The emergency does not exist, so every attempt fails.
	worker.Enqueue(models.OutboxJob{
		Kind:        models.OutboxKindContactAlert,
		UserID:      primitive.NewObjectID().Hex(),
		EmergencyID: primitive.NewObjectID().Hex(),
	})

	require.Eventually(t, func() bool {
		return worker.GetStats().JobsFailed == 1
	}, 2*time.Second, 10*time.Millisecond)

	stats := worker.GetStats()
	assert.Equal(t, int64(2), stats.JobsRetried)
	assert.Equal(t, int64(0), stats.JobsProcessed)
}

func TestOutboxWorkerDropsWhenQueueIsFull(t *testing.T) {
	emergencyRepo := &stubEmergencyRepo{}
	notifications := services.NewNotificationService(&stubUserRepo{}, "", "", "")

	worker := NewOutboxWorker(notifications, emergencyRepo)
	worker.config.QueueSize = 1
	worker.jobQueue = make(chan models.OutboxJob, 1)
	// Not started: nothing drains the queue.

	worker.Enqueue(models.OutboxJob{Kind: models.OutboxKindContactAlert})
	worker.Enqueue(models.OutboxJob{Kind: models.OutboxKindContactAlert})

	assert.Equal(t, int64(1), worker.GetStats().JobsDropped)
}
