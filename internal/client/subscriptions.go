package client

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/realtime"
)

var (
	ErrRefCountUnderflow  = errors.New("client: subscription released more often than acquired")
	ErrSubscriptionDenied = errors.New("client: subscription denied by server")
)

// SubscriptionManager ref-counts topic interest across the views sharing a
// transport. Only the 0->1 and 1->0 transitions reach the wire.
type SubscriptionManager struct {
	transport *Transport

	mu     sync.Mutex
	counts map[realtime.Topic]int
	denied map[realtime.Topic]struct{}
}

func newSubscriptionManager(t *Transport) *SubscriptionManager {
	m := &SubscriptionManager{
		transport: t,
		counts:    make(map[realtime.Topic]int),
		denied:    make(map[realtime.Topic]struct{}),
	}
	t.On(realtime.TypeError, m.onError)
	return m
}

// Acquire registers one holder of topic. The first holder sends SUBSCRIBE
// when the transport is open; otherwise the next open re-subscribes.
func (m *SubscriptionManager) Acquire(topic realtime.Topic) error {
	env, err := realtime.SubscribeEnvelope(topic)
	if err != nil {
		return fmt.Errorf("client.SubscriptionManager.Acquire: %w", err)
	}

	m.mu.Lock()
	if _, ok := m.denied[topic]; ok {
		m.mu.Unlock()
		return fmt.Errorf("client.SubscriptionManager.Acquire %s: %w", topic, ErrSubscriptionDenied)
	}
	m.counts[topic]++
	first := m.counts[topic] == 1
	m.mu.Unlock()

	if !first {
		return nil
	}
	if _, err := m.transport.sendIfOpen(env, func() bool { return m.held(topic) }); err != nil {
		log.Warn().Err(err).Str("topic", string(topic)).Msg("client: subscribe not sent, will resubscribe on reconnect")
	}
	return nil
}

// Release drops one holder of topic. The last holder sends UNSUBSCRIBE when
// the transport is open; it is dropped rather than queued otherwise.
func (m *SubscriptionManager) Release(topic realtime.Topic) error {
	m.mu.Lock()
	n := m.counts[topic]
	if n <= 0 {
		m.mu.Unlock()
		return fmt.Errorf("client.SubscriptionManager.Release %s: %w", topic, ErrRefCountUnderflow)
	}
	if n == 1 {
		delete(m.counts, topic)
	} else {
		m.counts[topic] = n - 1
	}
	_, denied := m.denied[topic]
	m.mu.Unlock()

	if n > 1 || denied {
		return nil
	}
	env, err := realtime.UnsubscribeEnvelope(topic)
	if err != nil {
		return fmt.Errorf("client.SubscriptionManager.Release: %w", err)
	}
	if _, err := m.transport.sendIfOpen(env, func() bool { return !m.held(topic) && !m.Denied(topic) }); err != nil {
		log.Debug().Err(err).Str("topic", string(topic)).Msg("client: unsubscribe dropped")
	}
	return nil
}

// Active returns the held, non-denied topics in sorted order.
func (m *SubscriptionManager) Active() []realtime.Topic {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]realtime.Topic, 0, len(m.counts))
	for topic, n := range m.counts {
		if _, ok := m.denied[topic]; ok || n <= 0 {
			continue
		}
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}

// held reports whether topic should be subscribed on the wire. The sends in
// Acquire and Release re-check it under the transport lock, so a 1->0->1
// race cannot leave UNSUBSCRIBE as the last frame while the topic is held.
func (m *SubscriptionManager) held(topic realtime.Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, denied := m.denied[topic]
	return m.counts[topic] > 0 && !denied
}

// Count returns the number of holders of topic.
func (m *SubscriptionManager) Count(topic realtime.Topic) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[topic]
}

// Denied reports whether the server rejected topic.
func (m *SubscriptionManager) Denied(topic realtime.Topic) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.denied[topic]
	return ok
}

func (m *SubscriptionManager) onError(env realtime.Envelope) {
	var p realtime.ErrorPayload
	if err := env.Unmarshal(&p); err != nil {
		log.Warn().Err(err).Msg("client: bad error payload")
		return
	}
	if p.Code != realtime.CodeForbidden || p.Topic == "" {
		log.Warn().Str("code", p.Code).Str("message", p.Message).Msg("client: server error")
		return
	}
	switch p.Type {
	case realtime.TypeSubscribeProject, realtime.TypeSubscribeTask:
	default:
		return
	}

	m.mu.Lock()
	m.denied[p.Topic] = struct{}{}
	m.mu.Unlock()
	log.Warn().Str("topic", string(p.Topic)).Msg("client: subscription denied")
}
