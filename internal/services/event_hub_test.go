package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHubDeliversPerOwner(t *testing.T) {
	hub := NewEventHub()
	alice := hub.Subscribe("alice")
	defer alice.Close()
	bob := hub.Subscribe("bob")
	defer bob.Close()

	n := hub.Publish("alice", Event{Type: EventConversationRenamed, ConversationID: "c1", Title: "Trip"})
	assert.Equal(t, 1, n)

	select {
	case ev := <-alice.Events():
		assert.Equal(t, EventConversationRenamed, ev.Type)
		assert.Equal(t, "Trip", ev.Title)
		assert.False(t, ev.At.IsZero())
	default:
		t.Fatal("alice did not receive the event")
	}

	select {
	case ev := <-bob.Events():
		t.Fatalf("bob received %+v", ev)
	default:
	}
}

func TestEventHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewEventHub()
	sub := hub.Subscribe("alice")
	defer sub.Close()

	for i := 0; i < defaultSubscriberBuffer; i++ {
		require.Equal(t, 1, hub.Publish("alice", Event{Type: EventMessageAppended}))
	}
	assert.Equal(t, 0, hub.Publish("alice", Event{Type: EventMessageAppended}))
}

func TestEventHubCloseUnsubscribes(t *testing.T) {
	hub := NewEventHub()
	sub := hub.Subscribe("alice")
	assert.Equal(t, 1, hub.Subscribers("alice"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.Subscribers("alice"))
	assert.Equal(t, 0, hub.Publish("alice", Event{Type: EventConversationDeleted}))

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestNilEventHubPublish(t *testing.T) {
	var hub *EventHub
	assert.Equal(t, 0, hub.Publish("alice", Event{}))
}
