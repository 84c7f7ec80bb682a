package services

import (
	"sync"
	"time"

	"github.com/ahmetk3436/duochat/internal/models"
)

const (
	EventConversationCreated = "conversation.created"
	EventConversationRenamed = "conversation.renamed"
	EventConversationDeleted = "conversation.deleted"
	EventMessageAppended     = "message.appended"
)

const defaultSubscriberBuffer = 32

// Event describes one change to an owner's conversations.
type Event struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Title          string          `json:"title,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	At             time.Time       `json:"at"`
}

// EventHub fans events out to every subscriber of an owner. Publishing never
// blocks: a subscriber whose buffer is full misses the event.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{} // owner -> subscriptions
	buffer int
}

type Subscription struct {
	Owner string
	ch    chan Event
	hub   *EventHub
	once  sync.Once
}

func NewEventHub() *EventHub {
	return &EventHub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: defaultSubscriberBuffer,
	}
}

// Events is closed once the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		if set := s.hub.subs[s.Owner]; set != nil {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.Owner)
			}
		}
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func (h *EventHub) Subscribe(owner string) *Subscription {
	sub := &Subscription{Owner: owner, ch: make(chan Event, h.buffer), hub: h}

	h.mu.Lock()
	set := h.subs[owner]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[owner] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish delivers ev to the owner's subscribers and reports how many
// received it.
func (h *EventHub) Publish(owner string, ev Event) int {
	if h == nil {
		return 0
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[owner] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			hubEventsDropped.Inc()
		}
	}
	return delivered
}

// Subscribers is the number of live subscriptions for owner.
func (h *EventHub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[owner])
}
