package websocket

import (
	"testing"
	"time"

	"helpnet/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(userID string) *Client {
	return &Client{
		userID:  userID,
		send:    make(chan models.WSMessage, 8),
		roomIDs: make(map[string]bool),
	}
}

func receive(t *testing.T, c *Client) models.WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a frame, got none")
		return models.WSMessage{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("expected no frame, got %s", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Shutdown)
	return hub
}

func TestPublishScopedEventReachesOnlySubscribers(t *testing.T) {
	hub := startHub(t)

	subscriber := newTestClient("u1")
	bystander := newTestClient("u2")

	hub.register <- subscriber
	hub.register <- bystander
	hub.JoinRoom(subscriber, "em-1")

	hub.Publish(models.EventHelperJoined, "em-1", models.WSHelperJoined{
		EmergencyID: "em-1",
		HelperID:    "u3",
	})

	frame := receive(t, subscriber)
	assert.Equal(t, models.EventHelperJoined, frame.Type)
	assertNoFrame(t, bystander)
}

func TestPublishGlobalEventReachesEveryone(t *testing.T) {
	hub := startHub(t)

	first := newTestClient("u1")
	second := newTestClient("u2")

	hub.register <- first
	hub.register <- second

	hub.Publish(models.EventEmergencyCreated, "em-1", models.WSEmergencyCreated{})

	assert.Equal(t, models.EventEmergencyCreated, receive(t, first).Type)
	assert.Equal(t, models.EventEmergencyCreated, receive(t, second).Type)
}

func TestPublishEndedIsGlobal(t *testing.T) {
	hub := startHub(t)

	// Subscribed to a different emergency, still told about endings.
	client := newTestClient("u1")
	hub.register <- client
	hub.JoinRoom(client, "em-2")

	hub.Publish(models.EventEmergencyEnded, "em-1", models.WSEmergencyEnded{
		EmergencyID: "em-1",
		FinalStatus: models.EmergencyStatusResolved,
	})

	assert.Equal(t, models.EventEmergencyEnded, receive(t, client).Type)
}

func TestPublishUnknownEventIsDropped(t *testing.T) {
	hub := startHub(t)

	client := newTestClient("u1")
	hub.register <- client

	hub.Publish("emergency:unknown", "em-1", nil)

	assertNoFrame(t, client)
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	hub := startHub(t)

	client := newTestClient("u1")
	hub.register <- client
	hub.JoinRoom(client, "em-1")
	hub.LeaveRoom(client, "em-1")

	hub.Publish(models.EventEmergencyMessage, "em-1", models.WSEmergencyMessage{EmergencyID: "em-1"})

	assertNoFrame(t, client)
}

func TestSendToUserReachesAllConnections(t *testing.T) {
	hub := startHub(t)

	phone := newTestClient("u1")
	laptop := newTestClient("u1")
	other := newTestClient("u2")

	hub.register <- phone
	hub.register <- laptop
	hub.register <- other

	hub.SendToUser("u1", models.WSMessage{Type: models.WSTypePong, Timestamp: time.Now()})

	assert.Equal(t, models.WSTypePong, receive(t, phone).Type)
	assert.Equal(t, models.WSTypePong, receive(t, laptop).Type)
	assertNoFrame(t, other)
}

func TestSlowClientDropsFramesInsteadOfBlocking(t *testing.T) {
	room := NewRoom("em-1")
	slow := &Client{
		userID:  "u1",
		send:    make(chan models.WSMessage, 1),
		roomIDs: make(map[string]bool),
	}
	room.AddClient(slow)

	room.Broadcast(models.WSMessage{Type: models.EventEmergencyMessage}, MessageFilter{})
	room.Broadcast(models.WSMessage{Type: models.EventEmergencyMessage}, MessageFilter{})

	room.stats.mutex.RLock()
	defer room.stats.mutex.RUnlock()
	assert.Equal(t, int64(1), room.stats.MessagesSent)
	assert.Equal(t, int64(1), room.stats.MessagesDropped)
}

func TestMessageFilter(t *testing.T) {
	require.True(t, MessageFilter{}.admits("u1"))
	assert.False(t, MessageFilter{ExcludeUsers: []string{"u1"}}.admits("u1"))
	assert.True(t, MessageFilter{ExcludeUsers: []string{"u2"}}.admits("u1"))
	assert.True(t, MessageFilter{IncludeUsers: []string{"u1"}}.admits("u1"))
	assert.False(t, MessageFilter{IncludeUsers: []string{"u2"}}.admits("u1"))
}

func TestUnregisterRemovesEmptyRooms(t *testing.T) {
	hub := startHub(t)

	client := newTestClient("u1")
	hub.register <- client
	hub.JoinRoom(client, "em-1")

	hub.unregister <- client

	require.Eventually(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		_, exists := hub.rooms["em-1"]
		return !exists && len(hub.clients) == 0
	}, time.Second, 10*time.Millisecond)
}
