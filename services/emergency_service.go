package services

import (
	"context"
	"time"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/utils"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EmergencyService owns the emergency lifecycle: creation, the responder
// set, resolution and cancellation. Every mutation of one emergency runs
// under that emergency's lock, and status changes additionally go through
// conditional store updates so a raced transition has exactly one winner.
type EmergencyService struct {
	emergencyRepo repositories.EmergencyRepository
	userRepo      repositories.UserRepository
	messageRepo   repositories.MessageRepository
	events        EventPublisher
	outbox        Outbox
	validator     *utils.ValidationService
	locks         *keyedMutex
}

func NewEmergencyService(
	emergencyRepo repositories.EmergencyRepository,
	userRepo repositories.UserRepository,
	messageRepo repositories.MessageRepository,
	events EventPublisher,
	outbox Outbox,
) *EmergencyService {
	return &EmergencyService{
		emergencyRepo: emergencyRepo,
		userRepo:      userRepo,
		messageRepo:   messageRepo,
		events:        events,
		outbox:        outbox,
		validator:     utils.NewValidationService(),
		locks:         newKeyedMutex(),
	}
}

// DefaultAvoidRadiusKm is applied when the caller leaves the radius unset.
const DefaultAvoidRadiusKm = 1.0

// =================== CREATION ===================

// CreateEmergency opens a new emergency for the user. A user may have at
// most one open emergency; a replay carrying the same idempotency key
// returns the original instead of a conflict.
func (es *EmergencyService) CreateEmergency(ctx context.Context, userID string, req models.CreateEmergencyRequest) (*models.Emergency, error) {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationError(validationErrors[0].Message)
	}
	if !utils.IsValidCoordinate(req.Location.Latitude, req.Location.Longitude) {
		return nil, utils.NewValidationError("location coordinates are out of range")
	}

	creatorID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, utils.NewValidationError("invalid user ID")
	}

	if req.IdempotencyKey != "" {
		existing, err := es.emergencyRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !utils.IsNotFoundError(err) {
			return nil, err
		}
	}

	if open, err := es.emergencyRepo.GetOpenByCreator(ctx, userID); err == nil && open != nil {
		return nil, utils.NewConflictError("You already have an active emergency")
	} else if err != nil && !utils.IsNotFoundError(err) {
		return nil, err
	}

	radius := req.AvoidRadiusKm
	if radius == 0 {
		radius = DefaultAvoidRadiusKm
	}
	radius = utils.ClampFloat64(radius, models.AvoidRadiusMinKm, models.AvoidRadiusMaxKm)

	key := req.IdempotencyKey
	if key == "" {
		key = utils.GenerateUUID()
	}

	now := time.Now()
	emergency := &models.Emergency{
		CreatorID:      creatorID,
		Status:         models.EmergencyStatusActive,
		Type:           req.Type,
		Category:       req.Category,
		Description:    req.Description,
		Priority:       req.Priority,
		Severity:       req.Severity,
		Location:       req.Location,
		SilentMode:     req.SilentMode,
		AnonymousMode:  req.AnonymousMode,
		FakeCallAlert:  req.FakeCallAlert,
		AvoidRadiusKm:  radius,
		Responders:     make(map[string]models.Responder),
		IdempotencyKey: key,
		ActivatedAt:    now,
		LastUpdatedAt:  now,
	}

	err = es.emergencyRepo.Create(ctx, emergency)
	if err != nil {
		// A concurrent replay with the same key lost the insert race; the
		// winner's document is the answer.
		if utils.IsConflictError(err) && req.IdempotencyKey != "" {
			if existing, lookupErr := es.emergencyRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	es.outbox.Enqueue(models.OutboxJob{
		Kind:        models.OutboxKindContactAlert,
		UserID:      userID,
		EmergencyID: emergency.ID.Hex(),
		EnqueuedAt:  now,
	})

	es.events.Publish(models.EventEmergencyCreated, emergency.ID.Hex(), models.WSEmergencyCreated{
		Emergency: *es.BuildView(ctx, emergency, ""),
		Timestamp: now,
	})

	return emergency, nil
}

// =================== READS ===================

// GetEmergency returns the emergency as seen by the viewer, with creator
// identity masked under anonymous mode.
func (es *EmergencyService) GetEmergency(ctx context.Context, viewerID, emergencyID string) (*models.EmergencyView, error) {
	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	return es.BuildView(ctx, emergency, viewerID), nil
}

// GetHistory returns the user's own emergencies, newest first.
func (es *EmergencyService) GetHistory(ctx context.Context, userID string, limit int64) ([]models.EmergencyView, error) {
	emergencies, err := es.emergencyRepo.GetByCreator(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]models.EmergencyView, 0, len(emergencies))
	for i := range emergencies {
		views = append(views, *es.BuildView(ctx, &emergencies[i], userID))
	}
	return views, nil
}

// CurrentEmergencyID resolves the user's open emergency id, used by the
// real-time layer's "current" channel sentinel.
func (es *EmergencyService) CurrentEmergencyID(ctx context.Context, userID string) (string, error) {
	emergency, err := es.emergencyRepo.GetOpenByCreator(ctx, userID)
	if err != nil {
		return "", err
	}
	return emergency.ID.Hex(), nil
}

// =================== RESPONDERS ===================

// AddResponder registers the helper on an open emergency. The first helper
// to land moves the emergency from active to responding; under concurrent
// joins exactly one of them wins that transition.
func (es *EmergencyService) AddResponder(ctx context.Context, helperID, emergencyID string, req models.AddResponderRequest) (*models.Responder, error) {
	helperObjectID, err := primitive.ObjectIDFromHex(helperID)
	if err != nil {
		return nil, utils.NewValidationError("invalid user ID")
	}

	unlock := es.locks.Lock(emergencyID)
	defer unlock()

	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if emergency.IsTerminal() {
		return nil, utils.NewInvalidStateError("Emergency is no longer active")
	}
	if emergency.CreatorID.Hex() == helperID {
		return nil, utils.NewForbiddenError("You cannot respond to your own emergency")
	}
	if emergency.HasResponder(helperID) {
		return nil, utils.NewConflictError("You are already responding to this emergency")
	}

	now := time.Now()
	responder := models.Responder{
		HelperID:         helperObjectID,
		Status:           models.ResponderStatusResponding,
		RespondedAt:      now,
		EstimatedArrival: req.EstimatedArrival,
		Notes:            req.Notes,
	}

	if err := es.emergencyRepo.SetResponder(ctx, emergencyID, helperID, responder); err != nil {
		return nil, err
	}

	won, err := es.emergencyRepo.TransitionStatus(ctx, emergencyID,
		[]string{models.EmergencyStatusActive}, models.EmergencyStatusResponding,
		bson.M{"firstResponseAt": now})
	if err != nil {
		logrus.Errorf("Failed first-response transition for %s: %v", emergencyID, err)
	}
	if won {
		es.events.Publish(models.EventEmergencyStatusChanged, emergencyID, models.WSEmergencyStatusChanged{
			EmergencyID: emergencyID,
			OldStatus:   models.EmergencyStatusActive,
			NewStatus:   models.EmergencyStatusResponding,
			Timestamp:   now,
		})
	}

	if err := es.userRepo.AdjustTrustScore(ctx, helperID, models.TrustScoreBonus); err != nil {
		logrus.Errorf("Failed to credit trust score for %s: %v", helperID, err)
	}

	es.events.Publish(models.EventHelperJoined, emergencyID, models.WSHelperJoined{
		EmergencyID: emergencyID,
		HelperID:    helperID,
		Responder:   responder,
		Timestamp:   now,
	})

	return &responder, nil
}

// UpdateResponderStatus mutates the helper's own responder entry.
func (es *EmergencyService) UpdateResponderStatus(ctx context.Context, helperID, emergencyID string, req models.UpdateResponderStatusRequest) error {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return utils.NewValidationError(validationErrors[0].Message)
	}

	unlock := es.locks.Lock(emergencyID)
	defer unlock()

	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return err
	}
	if emergency.IsTerminal() {
		return utils.NewInvalidStateError("Emergency is no longer active")
	}
	if !emergency.HasResponder(helperID) {
		return utils.NewNotFoundError("Responder")
	}

	fields := bson.M{"status": req.Status}
	if req.Notes != "" {
		fields["notes"] = req.Notes
	}
	if err := es.emergencyRepo.UpdateResponder(ctx, emergencyID, helperID, fields); err != nil {
		return err
	}

	es.events.Publish(models.EventHelperStatusUpdate, emergencyID, models.WSHelperStatusUpdate{
		EmergencyID: emergencyID,
		HelperID:    helperID,
		Status:      req.Status,
		Notes:       req.Notes,
		Timestamp:   time.Now(),
	})

	return nil
}

// ReportResponder flags a helper's conduct. The entry stays visible with
// its reported mark, the helper takes a trust penalty, and a system line
// lands in the conversation.
func (es *EmergencyService) ReportResponder(ctx context.Context, reporterID, emergencyID, helperID string, req models.ReportResponderRequest) error {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return utils.NewValidationError(validationErrors[0].Message)
	}

	unlock := es.locks.Lock(emergencyID)
	defer unlock()

	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return err
	}
	if emergency.CreatorID.Hex() != reporterID {
		return utils.NewForbiddenError("Only the emergency creator can report a responder")
	}
	responder, ok := emergency.Responders[helperID]
	if !ok {
		return utils.NewNotFoundError("Responder")
	}
	if responder.Reported {
		return utils.NewConflictError("Responder has already been reported")
	}

	fields := bson.M{"reported": true, "reportReason": req.Reason}
	if err := es.emergencyRepo.UpdateResponder(ctx, emergencyID, helperID, fields); err != nil {
		return err
	}

	if err := es.userRepo.AdjustTrustScore(ctx, helperID, -models.TrustScorePenalty); err != nil {
		logrus.Errorf("Failed to apply trust penalty for %s: %v", helperID, err)
	}

	now := time.Now()
	system := &models.SessionMessage{
		SessionID:  emergency.ID,
		SenderID:   emergency.CreatorID,
		SenderRole: models.SenderRoleCreator,
		Body:       "A responder on this emergency was reported and is under review.",
		IsSystem:   true,
		CreatedAt:  now,
	}
	if err := es.messageRepo.Create(ctx, system); err != nil {
		logrus.Errorf("Failed to record report system message for %s: %v", emergencyID, err)
	} else {
		es.events.Publish(models.EventEmergencyMessage, emergencyID, models.WSEmergencyMessage{
			EmergencyID: emergencyID,
			Message: models.SessionMessageView{
				ID:          system.ID.Hex(),
				SessionID:   emergencyID,
				SenderID:    system.SenderID.Hex(),
				SenderRole:  system.SenderRole,
				DisplayName: "System",
				Body:        system.Body,
				IsSystem:    true,
				CreatedAt:   now,
			},
			Timestamp: now,
		})
	}

	return nil
}

// =================== TERMINATION ===================

// ResolveEmergency closes the emergency as handled. The creator or any
// registered responder may resolve; a responder's resolution credits their
// trust score.
func (es *EmergencyService) ResolveEmergency(ctx context.Context, userID, emergencyID string, req models.ResolveEmergencyRequest) (*models.Emergency, error) {
	if validationErrors := es.validator.ValidateStruct(req); len(validationErrors) > 0 {
		return nil, utils.NewValidationError(validationErrors[0].Message)
	}

	unlock := es.locks.Lock(emergencyID)
	defer unlock()

	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if emergency.IsTerminal() {
		return nil, utils.NewInvalidStateError("Emergency is already closed")
	}

	isCreator := emergency.CreatorID.Hex() == userID
	if !isCreator && !emergency.HasResponder(userID) {
		return nil, utils.NewForbiddenError("Only the creator or a responder can resolve this emergency")
	}

	resolverID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, utils.NewValidationError("invalid user ID")
	}

	now := time.Now()
	won, err := es.emergencyRepo.TransitionStatus(ctx, emergencyID,
		[]string{models.EmergencyStatusActive, models.EmergencyStatusResponding},
		models.EmergencyStatusResolved,
		bson.M{
			"resolvedAt":      now,
			"resolvedBy":      resolverID,
			"resolutionType":  req.ResolutionType,
			"resolutionNotes": req.ResolutionNotes,
		})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, utils.NewInvalidStateError("Emergency is already closed")
	}

	// The creator's lifetime counter tracks resolved emergencies only;
	// cancellations and expiries never touch it.
	creatorID := emergency.CreatorID.Hex()
	if err := es.userRepo.IncrementEmergencyCount(ctx, creatorID); err != nil {
		logrus.Errorf("Failed to increment emergency count for %s: %v", creatorID, err)
	}

	if !isCreator {
		if err := es.userRepo.AdjustTrustScore(ctx, userID, models.TrustScoreBonus); err != nil {
			logrus.Errorf("Failed to credit trust score for %s: %v", userID, err)
		}
	}

	es.events.Publish(models.EventEmergencyResolved, emergencyID, models.WSEmergencyResolved{
		EmergencyID:    emergencyID,
		ResolvedBy:     userID,
		ResolutionType: req.ResolutionType,
		Timestamp:      now,
	})
	es.events.Publish(models.EventEmergencyEnded, emergencyID, models.WSEmergencyEnded{
		EmergencyID: emergencyID,
		FinalStatus: models.EmergencyStatusResolved,
		Timestamp:   now,
	})

	return es.emergencyRepo.GetByID(ctx, emergencyID)
}

// CancelEmergency closes the emergency as a false alarm. Creator only.
func (es *EmergencyService) CancelEmergency(ctx context.Context, userID, emergencyID string, req models.CancelEmergencyRequest) (*models.Emergency, error) {
	unlock := es.locks.Lock(emergencyID)
	defer unlock()

	emergency, err := es.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if emergency.CreatorID.Hex() != userID {
		return nil, utils.NewForbiddenError("Only the creator can cancel this emergency")
	}
	if emergency.IsTerminal() {
		return nil, utils.NewInvalidStateError("Emergency is already closed")
	}

	now := time.Now()
	won, err := es.emergencyRepo.TransitionStatus(ctx, emergencyID,
		[]string{models.EmergencyStatusActive, models.EmergencyStatusResponding},
		models.EmergencyStatusCancelled,
		bson.M{"cancelReason": req.Reason, "resolvedAt": now})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, utils.NewInvalidStateError("Emergency is already closed")
	}

	es.events.Publish(models.EventEmergencyCancelled, emergencyID, models.WSEmergencyCancelled{
		EmergencyID: emergencyID,
		Reason:      req.Reason,
		Timestamp:   now,
	})
	es.events.Publish(models.EventEmergencyEnded, emergencyID, models.WSEmergencyEnded{
		EmergencyID: emergencyID,
		FinalStatus: models.EmergencyStatusCancelled,
		Timestamp:   now,
	})

	return es.emergencyRepo.GetByID(ctx, emergencyID)
}

// ExpireStale sweeps open emergencies older than maxAge into resolved with
// the auto_expired resolution type. Called by the background worker.
func (es *EmergencyService) ExpireStale(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	stale, err := es.emergencyRepo.GetOpenOlderThan(ctx, cutoff)
	if err != nil {
		logrus.Errorf("Failed to list stale emergencies: %v", err)
		return 0
	}

	expired := 0
	for i := range stale {
		if es.expireOne(ctx, stale[i].ID.Hex()) {
			expired++
		}
	}
	return expired
}

// expireOne closes a single stale emergency under its lock, like every
// other mutation of that emergency.
func (es *EmergencyService) expireOne(ctx context.Context, id string) bool {
	unlock := es.locks.Lock(id)
	defer unlock()

	now := time.Now()
	won, err := es.emergencyRepo.TransitionStatus(ctx, id,
		[]string{models.EmergencyStatusActive, models.EmergencyStatusResponding},
		models.EmergencyStatusResolved,
		bson.M{"resolvedAt": now, "resolutionType": models.ResolutionAutoExpired})
	if err != nil {
		logrus.Errorf("Failed to expire emergency %s: %v", id, err)
		return false
	}
	if !won {
		return false
	}
	es.events.Publish(models.EventEmergencyEnded, id, models.WSEmergencyEnded{
		EmergencyID: id,
		FinalStatus: models.EmergencyStatusResolved,
		Timestamp:   now,
	})
	return true
}

// =================== PROJECTION ===================

// BuildView projects an emergency for a viewer. Under anonymous mode the
// creator's name is withheld from every serialization, the creator's own
// included; ownership comes from comparing creatorId.
func (es *EmergencyService) BuildView(ctx context.Context, emergency *models.Emergency, viewerID string) *models.EmergencyView {
	view := &models.EmergencyView{
		ID:              emergency.ID.Hex(),
		CreatorID:       emergency.CreatorID.Hex(),
		Status:          emergency.Status,
		Type:            emergency.Type,
		Category:        emergency.Category,
		Description:     emergency.Description,
		Priority:        emergency.Priority,
		Severity:        emergency.Severity,
		Location:        emergency.Location,
		SilentMode:      emergency.SilentMode,
		AnonymousMode:   emergency.AnonymousMode,
		FakeCallAlert:   emergency.FakeCallAlert,
		AvoidRadiusKm:   emergency.AvoidRadiusKm,
		Responders:      emergency.ResponderList(),
		ResolutionType:  emergency.ResolutionType,
		ResolutionNotes: emergency.ResolutionNotes,
		ActivatedAt:     emergency.ActivatedAt,
		FirstResponseAt: emergency.FirstResponseAt,
		ResolvedAt:      emergency.ResolvedAt,
	}

	if emergency.AnonymousMode {
		view.CreatorName = models.RoleLabelCreator
		return view
	}

	if creator, err := es.userRepo.GetByID(ctx, emergency.CreatorID.Hex()); err == nil {
		view.CreatorName = creator.DisplayName()
	}
	return view
}
