package backplane

import (
	"context"
	"log"
	"sync"

	"messenger-service/internal/observability"
)

const subscriberBuffer = 32

// Memory is the single-process Backplane. Delivery is asynchronous via
// buffered channels; a subscriber that falls behind loses events (logged
// and counted), never blocks the publisher.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[*memorySub]struct{}
	closed bool
}

// memorySub guards its channel with its own lock so a publish racing a
// cancel can never send on a closed channel: close and send are
// serialized, and a closed sub swallows the payload.
type memorySub struct {
	group string

	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

// deliver sends payload unless the sub is closed. It reports whether
// the payload was accepted (a closed sub counts as accepted, it is
// simply gone; only a full buffer is a drop).
func (s *memorySub) deliver(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *memorySub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// NewMemory creates an empty in-memory backplane.
func NewMemory() *Memory {
	return &Memory{groups: make(map[string]map[*memorySub]struct{})}
}

// Publish delivers payload to every current subscriber of the group.
func (m *Memory) Publish(_ context.Context, group string, payload []byte) error {
	m.mu.RLock()
	subs := make([]*memorySub, 0, len(m.groups[group]))
	for sub := range m.groups[group] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if !sub.deliver(payload) {
			log.Printf("backplane: dropping event for slow subscriber group=%s", group)
			observability.IncBackplaneDrop(group)
		}
	}
	return nil
}

// Subscribe joins the group.
func (m *Memory) Subscribe(group string) (*Subscription, error) {
	sub := &memorySub{group: group, ch: make(chan []byte, subscriberBuffer)}

	m.mu.Lock()
	if m.groups[group] == nil {
		m.groups[group] = make(map[*memorySub]struct{})
	}
	m.groups[group][sub] = struct{}{}
	m.mu.Unlock()

	return &Subscription{C: sub.ch, cancel: func() { m.remove(sub) }}, nil
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	if subs, ok := m.groups[sub.group]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.groups, sub.group)
		}
	}
	m.mu.Unlock()
	sub.close()
}

// Close drops all subscriptions.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var subs []*memorySub
	for group, groupSubs := range m.groups {
		for sub := range groupSubs {
			subs = append(subs, sub)
		}
		delete(m.groups, group)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	return nil
}
