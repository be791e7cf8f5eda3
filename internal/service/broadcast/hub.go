// Package broadcast fans live session events out to the subscribers currently
// attached to a session topic. Delivery is best-effort: nothing is buffered for
// late joiners and a subscriber that fails a delivery is dropped.
package broadcast

import (
	"log"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// Subscriber receives events for the topics it joined.
type Subscriber interface {
	Deliver(evt brainstorm.Event) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(evt brainstorm.Event) error

// Deliver calls f.
func (f SubscriberFunc) Deliver(evt brainstorm.Event) error {
	return f(evt)
}

// Hub keeps ephemeral per-session subscription lists.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[string]Subscriber)}
}

// Join attaches a subscriber to a session topic. Joining again replaces the
// previous registration of the same subscriber id.
func (h *Hub) Join(sessionID, subscriberID string, sub Subscriber) {
	if sessionID == "" || subscriberID == "" || sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[sessionID]
	if !ok {
		members = make(map[string]Subscriber)
		h.topics[sessionID] = members
	}
	members[subscriberID] = sub
}

// Leave detaches a subscriber from a topic. It reports whether it was attached.
func (h *Hub) Leave(sessionID, subscriberID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(sessionID, subscriberID)
}

// LeaveAll detaches a subscriber from every topic, e.g. when its connection closes.
func (h *Hub) LeaveAll(subscriberID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	left := 0
	for sessionID := range h.topics {
		if h.leaveLocked(sessionID, subscriberID) {
			left++
		}
	}
	return left
}

func (h *Hub) leaveLocked(sessionID, subscriberID string) bool {
	members, ok := h.topics[sessionID]
	if !ok {
		return false
	}
	if _, ok := members[subscriberID]; !ok {
		return false
	}
	delete(members, subscriberID)
	if len(members) == 0 {
		delete(h.topics, sessionID)
	}
	return true
}

// Subscribers lists the ids attached to a topic in sorted order.
func (h *Hub) Subscribers(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.topics[sessionID]))
	for id := range h.topics[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Publish delivers evt to every current subscriber of the session and returns
// how many accepted it. Delivery happens on the caller's goroutine so events of
// one session reach each subscriber in publish order.
func (h *Hub) Publish(sessionID string, evt brainstorm.Event) int {
	h.mu.RLock()
	members := make(map[string]Subscriber, len(h.topics[sessionID]))
	for id, sub := range h.topics[sessionID] {
		members[id] = sub
	}
	h.mu.RUnlock()

	delivered := 0
	for id, sub := range members {
		if err := safeDeliver(sub, evt); err != nil {
			log.Printf("[broadcast] dropping subscriber=%s session=%s: %v", id, sessionID, err)
			h.Leave(sessionID, id)
			continue
		}
		delivered++
	}
	return delivered
}

func safeDeliver(sub Subscriber, evt brainstorm.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[broadcast] subscriber panicked for event %s: %v\n%s", evt.Type, r, debug.Stack())
			err = errPanicked
		}
	}()
	return sub.Deliver(evt)
}

type hubError string

func (e hubError) Error() string { return string(e) }

const errPanicked = hubError("subscriber panicked")
