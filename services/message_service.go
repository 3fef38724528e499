package services

import (
	"context"
	"strings"
	"time"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/utils"
)

// MessageService handles the conversation thread between an emergency's
// creator and its responders. Sender roles are derived from the emergency,
// never taken from the request, and anonymous mode masks identity at
// projection time so stored records stay complete.
type MessageService struct {
	messageRepo   repositories.MessageRepository
	emergencyRepo repositories.EmergencyRepository
	userRepo      repositories.UserRepository
	events        EventPublisher
}

func NewMessageService(
	messageRepo repositories.MessageRepository,
	emergencyRepo repositories.EmergencyRepository,
	userRepo repositories.UserRepository,
	events EventPublisher,
) *MessageService {
	return &MessageService{
		messageRepo:   messageRepo,
		emergencyRepo: emergencyRepo,
		userRepo:      userRepo,
		events:        events,
	}
}

// SendMessage appends a message to the emergency's thread. The thread is
// writable only while the emergency is open and only once a responder has
// arrived; participants are the creator and registered responders.
func (ms *MessageService) SendMessage(ctx context.Context, senderID, emergencyID string, req models.SendMessageRequest) (*models.SessionMessageView, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, utils.NewValidationError("Message body is required")
	}
	if len(body) > models.MaxMessageBodyLength {
		return nil, utils.NewValidationError("Message body is too long")
	}

	emergency, err := ms.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if !emergency.IsOpen() {
		return nil, utils.NewInvalidStateError("Emergency conversation is closed")
	}
	if emergency.FirstResponseAt == nil {
		return nil, utils.NewInvalidStateError("No responder has joined yet")
	}

	role, err := ms.participantRole(emergency, senderID)
	if err != nil {
		return nil, err
	}

	sender, err := ms.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	message := &models.SessionMessage{
		SessionID:  emergency.ID,
		SenderID:   sender.ID,
		SenderRole: role,
		Body:       body,
	}
	if err := ms.messageRepo.Create(ctx, message); err != nil {
		return nil, err
	}

	// The broadcast frame carries the masked projection; ownership is the
	// receiving client's comparison against senderId.
	broadcast := ms.buildView(emergency, message, sender, "")
	ms.events.Publish(models.EventEmergencyMessage, emergencyID, models.WSEmergencyMessage{
		EmergencyID: emergencyID,
		Message:     broadcast,
		Timestamp:   message.CreatedAt,
	})

	own := ms.buildView(emergency, message, sender, senderID)
	return &own, nil
}

// GetMessages returns the thread for a participant, newest first, created
// strictly before the cursor when one is given.
func (ms *MessageService) GetMessages(ctx context.Context, viewerID, emergencyID string, limit int64, before *time.Time) ([]models.SessionMessageView, error) {
	emergency, err := ms.emergencyRepo.GetByID(ctx, emergencyID)
	if err != nil {
		return nil, err
	}
	if emergency.FirstResponseAt == nil {
		return nil, utils.NewInvalidStateError("No responder has joined yet")
	}
	if _, err := ms.participantRole(emergency, viewerID); err != nil {
		return nil, err
	}

	messages, err := ms.messageRepo.GetBySession(ctx, emergencyID, limit, before)
	if err != nil {
		return nil, err
	}

	senders := make(map[string]*models.User)
	views := make([]models.SessionMessageView, 0, len(messages))
	for i := range messages {
		senderID := messages[i].SenderID.Hex()
		sender, ok := senders[senderID]
		if !ok {
			sender, _ = ms.userRepo.GetByID(ctx, senderID)
			senders[senderID] = sender
		}
		views = append(views, ms.buildView(emergency, &messages[i], sender, viewerID))
	}
	return views, nil
}

// DeleteMessage removes a message. Only the sender can delete their own,
// and system lines are permanent.
func (ms *MessageService) DeleteMessage(ctx context.Context, userID, emergencyID, messageID string) error {
	message, err := ms.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if message.SessionID.Hex() != emergencyID {
		return utils.NewNotFoundError("Message")
	}
	if message.IsSystem {
		return utils.NewForbiddenError("System messages cannot be deleted")
	}
	if message.SenderID.Hex() != userID {
		return utils.NewForbiddenError("You can only delete your own messages")
	}

	if err := ms.messageRepo.Delete(ctx, messageID); err != nil {
		return err
	}

	ms.events.Publish(models.EventEmergencyMessageDelete, emergencyID, models.WSEmergencyMessageDeleted{
		EmergencyID: emergencyID,
		MessageID:   messageID,
		Timestamp:   time.Now(),
	})

	return nil
}

func (ms *MessageService) participantRole(emergency *models.Emergency, userID string) (string, error) {
	if emergency.CreatorID.Hex() == userID {
		return models.SenderRoleCreator, nil
	}
	if emergency.HasResponder(userID) {
		return models.SenderRoleHelper, nil
	}
	return "", utils.NewForbiddenError("You are not a participant in this emergency")
}

// buildView projects a message for a viewer. Under anonymous mode every
// sender, the viewer's own messages included, is reduced to a role label
// plus initial; the sender id survives so clients can compute ownership.
func (ms *MessageService) buildView(emergency *models.Emergency, message *models.SessionMessage, sender *models.User, viewerID string) models.SessionMessageView {
	view := models.SessionMessageView{
		ID:         message.ID.Hex(),
		SessionID:  message.SessionID.Hex(),
		SenderID:   message.SenderID.Hex(),
		SenderRole: message.SenderRole,
		Body:       message.Body,
		IsMine:     viewerID != "" && message.SenderID.Hex() == viewerID,
		IsSystem:   message.IsSystem,
		CreatedAt:  message.CreatedAt,
	}

	if message.IsSystem {
		view.DisplayName = "System"
		return view
	}

	if emergency.AnonymousMode {
		view.DisplayName = maskedName(message.SenderRole, sender)
		return view
	}

	if sender != nil {
		view.DisplayName = sender.DisplayName()
	}
	if view.DisplayName == "" {
		view.DisplayName = roleLabel(message.SenderRole)
	}
	return view
}

func maskedName(role string, sender *models.User) string {
	label := roleLabel(role)
	if sender != nil {
		if initial := sender.Initial(); initial != "" {
			return label + " " + initial + "."
		}
	}
	return label
}

func roleLabel(role string) string {
	if role == models.SenderRoleCreator {
		return models.RoleLabelCreator
	}
	return models.RoleLabelHelper
}
