package services

import (
	"context"
	"strings"
	"testing"

	"helpnet/models"
	"helpnet/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type messageEnv struct {
	*testEnv
	messages *MessageService
	creator  string
	helper   string
	id       string
}

// newMessageEnv builds an emergency with one joined responder so the
// conversation thread is open.
func newMessageEnv(t *testing.T, anonymous bool) *messageEnv {
	t.Helper()
	ctx := context.Background()

	env := newTestEnv()
	messages := NewMessageService(env.messageRepo, env.emergencyRepo, env.userRepo, env.publisher)

	creator := env.addUser("Alice")
	helper := env.addUser("Bob")

	req := validCreateRequest()
	req.AnonymousMode = anonymous
	emergency, err := env.service.CreateEmergency(ctx, creator, req)
	require.NoError(t, err)

	_, err = env.service.AddResponder(ctx, helper, emergency.ID.Hex(), models.AddResponderRequest{})
	require.NoError(t, err)

	return &messageEnv{
		testEnv:  env,
		messages: messages,
		creator:  creator,
		helper:   helper,
		id:       emergency.ID.Hex(),
	}
}

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("derives the sender role server-side", func(t *testing.T) {
		env := newMessageEnv(t, false)

		fromCreator, err := env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{Body: "anyone close?"})
		require.NoError(t, err)
		assert.Equal(t, models.SenderRoleCreator, fromCreator.SenderRole)
		assert.True(t, fromCreator.IsMine)

		fromHelper, err := env.messages.SendMessage(ctx, env.helper, env.id, models.SendMessageRequest{Body: "two minutes out"})
		require.NoError(t, err)
		assert.Equal(t, models.SenderRoleHelper, fromHelper.SenderRole)

		assert.Equal(t, 2, env.publisher.countOf(models.EventEmergencyMessage))
	})

	t.Run("rejects non-participants", func(t *testing.T) {
		env := newMessageEnv(t, false)
		stranger := env.addUser("Mallory")

		_, err := env.messages.SendMessage(ctx, stranger, env.id, models.SendMessageRequest{Body: "hello"})
		assert.True(t, utils.IsForbiddenError(err))
	})

	t.Run("rejects empty and oversized bodies", func(t *testing.T) {
		env := newMessageEnv(t, false)

		_, err := env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{Body: "   "})
		assert.True(t, utils.IsValidationError(err))

		_, err = env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{
			Body: strings.Repeat("x", models.MaxMessageBodyLength+1),
		})
		assert.True(t, utils.IsValidationError(err))
	})

	t.Run("thread is closed before the first responder", func(t *testing.T) {
		env := newTestEnv()
		messages := NewMessageService(env.messageRepo, env.emergencyRepo, env.userRepo, env.publisher)
		creator := env.addUser("Alice")

		emergency, err := env.service.CreateEmergency(ctx, creator, validCreateRequest())
		require.NoError(t, err)

		_, err = messages.SendMessage(ctx, creator, emergency.ID.Hex(), models.SendMessageRequest{Body: "hello?"})
		assert.True(t, utils.IsInvalidStateError(err))
	})

	t.Run("thread is closed after termination", func(t *testing.T) {
		env := newMessageEnv(t, false)

		_, err := env.service.ResolveEmergency(ctx, env.creator, env.id, models.ResolveEmergencyRequest{
			ResolutionType: models.ResolutionUserResolved,
		})
		require.NoError(t, err)

		_, err = env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{Body: "thanks all"})
		assert.True(t, utils.IsInvalidStateError(err))
	})
}

func TestGetMessagesMasking(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous mode reduces every sender to role label and initial", func(t *testing.T) {
		env := newMessageEnv(t, true)

		sent, err := env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{Body: "need help"})
		require.NoError(t, err)
		// No serialization carries the real name, the sender's own echo
		// included; isMine plus senderId give the client ownership.
		assert.Equal(t, models.RoleLabelCreator+" A.", sent.DisplayName)
		assert.True(t, sent.IsMine)

		_, err = env.messages.SendMessage(ctx, env.helper, env.id, models.SendMessageRequest{Body: "coming"})
		require.NoError(t, err)

		asHelper, err := env.messages.GetMessages(ctx, env.helper, env.id, 10, nil)
		require.NoError(t, err)
		require.Len(t, asHelper, 2)

		// Newest first: helper's own message, then the creator's.
		assert.True(t, asHelper[0].IsMine)
		assert.Equal(t, models.RoleLabelHelper+" B.", asHelper[0].DisplayName)
		assert.False(t, asHelper[1].IsMine)
		assert.Equal(t, models.RoleLabelCreator+" A.", asHelper[1].DisplayName)

		asCreator, err := env.messages.GetMessages(ctx, env.creator, env.id, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, models.RoleLabelHelper+" B.", asCreator[0].DisplayName)
		assert.Equal(t, models.RoleLabelCreator+" A.", asCreator[1].DisplayName)
	})

	t.Run("named mode shows display names to everyone", func(t *testing.T) {
		env := newMessageEnv(t, false)

		_, err := env.messages.SendMessage(ctx, env.creator, env.id, models.SendMessageRequest{Body: "need help"})
		require.NoError(t, err)

		asHelper, err := env.messages.GetMessages(ctx, env.helper, env.id, 10, nil)
		require.NoError(t, err)
		require.Len(t, asHelper, 1)
		assert.Equal(t, "Alice", asHelper[0].DisplayName)
	})

	t.Run("non-participants cannot read", func(t *testing.T) {
		env := newMessageEnv(t, false)
		stranger := env.addUser("Mallory")

		_, err := env.messages.GetMessages(ctx, stranger, env.id, 10, nil)
		assert.True(t, utils.IsForbiddenError(err))
	})

	t.Run("reads are gated until the first responder, like writes", func(t *testing.T) {
		env := newTestEnv()
		messages := NewMessageService(env.messageRepo, env.emergencyRepo, env.userRepo, env.publisher)
		creator := env.addUser("Alice")

		emergency, err := env.service.CreateEmergency(ctx, creator, validCreateRequest())
		require.NoError(t, err)

		_, err = messages.GetMessages(ctx, creator, emergency.ID.Hex(), 10, nil)
		assert.True(t, utils.IsInvalidStateError(err))
	})
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	env := newMessageEnv(t, false)

	sent, err := env.messages.SendMessage(ctx, env.helper, env.id, models.SendMessageRequest{Body: "wrong thread"})
	require.NoError(t, err)

	err = env.messages.DeleteMessage(ctx, env.creator, env.id, sent.ID)
	assert.True(t, utils.IsForbiddenError(err))

	err = env.messages.DeleteMessage(ctx, env.helper, env.id, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.publisher.countOf(models.EventEmergencyMessageDelete))

	err = env.messages.DeleteMessage(ctx, env.helper, env.id, sent.ID)
	assert.True(t, utils.IsNotFoundError(err))
}
