// Package realtime fans out chat events to live subscribers, keyed by topic.
package realtime

import (
	"sync"
)

// Event is what a subscriber receives. Data is any JSON-encodable payload.
type Event struct {
	Type  string `json:"type"` // "message" | "typing" | "read" | "info" | "error"
	Topic string `json:"topic,omitempty"`
	From  string `json:"from,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ConversationTopic is the topic every participant of a conversation watches.
func ConversationTopic(conversationID string) string { return "conversation:" + conversationID }

// UserTopic is the per-user inbox topic.
func UserTopic(userID string) string { return "user:" + userID }

// Subscription is one live listener on one or more topics.
type Subscription struct {
	topics []string
	ch     chan Event
	once   sync.Once
	hub    *Hub
}

// Events returns the channel events arrive on. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub manages topic subscriptions in-process.
type Hub struct {
	subscribers map[string]map[*Subscription]bool
	mu          sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscription]bool),
	}
}

// Subscribe registers a listener on topics with the given channel buffer.
func (h *Hub) Subscribe(buffer int, topics ...string) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{
		topics: topics,
		ch:     make(chan Event, buffer),
		hub:    h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		if h.subscribers[topic] == nil {
			h.subscribers[topic] = make(map[*Subscription]bool)
		}
		h.subscribers[topic][sub] = true
	}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range sub.topics {
		if subs, ok := h.subscribers[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(h.subscribers, topic)
			}
		}
	}
	close(sub.ch)
}

// Publish delivers evt to every subscriber of topic. A subscriber whose
// buffer is full misses the event; Publish never blocks.
func (h *Hub) Publish(topic string, evt Event) int {
	evt.Topic = topic

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subscribers[topic] {
		select {
		case sub.ch <- evt:
			delivered++
		default:
			// Drop event if the subscriber's buffer is full
		}
	}
	return delivered
}

// SubscriberCount returns the number of listeners on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[topic])
}
