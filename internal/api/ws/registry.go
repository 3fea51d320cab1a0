package ws

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gosuda/boardsync/internal/realtime"
)

// ErrTooManyTopics is returned when a connection reaches its topic cap.
var ErrTooManyTopics = errors.New("ws: too many topics for connection")

// Registry maps topics to the connections subscribed to them. Both directions
// are indexed so closing a connection is proportional to its own topics.
type Registry struct {
	mu        sync.RWMutex
	topics    map[realtime.Topic]map[*Conn]struct{}
	conns     map[*Conn]map[realtime.Topic]struct{}
	maxTopics int
}

// NewRegistry creates a registry. maxTopics <= 0 disables the per-connection cap.
func NewRegistry(maxTopics int) *Registry {
	return &Registry{
		topics:    make(map[realtime.Topic]map[*Conn]struct{}),
		conns:     make(map[*Conn]map[realtime.Topic]struct{}),
		maxTopics: maxTopics,
	}
}

// Subscribe adds c to topic. Subscribing twice is a no-op and reports false.
func (r *Registry) Subscribe(c *Conn, topic realtime.Topic) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Closed() {
		return false, fmt.Errorf("ws.Registry.Subscribe: %w", ErrConnClosed)
	}

	own := r.conns[c]
	if _, ok := own[topic]; ok {
		return false, nil
	}
	if r.maxTopics > 0 && len(own) >= r.maxTopics {
		return false, fmt.Errorf("ws.Registry.Subscribe: %d topics: %w", len(own), ErrTooManyTopics)
	}

	if own == nil {
		own = make(map[realtime.Topic]struct{})
		r.conns[c] = own
	}
	own[topic] = struct{}{}

	subs := r.topics[topic]
	if subs == nil {
		subs = make(map[*Conn]struct{})
		r.topics[topic] = subs
	}
	subs[c] = struct{}{}
	return true, nil
}

// Unsubscribe removes c from topic. Unknown pairs are a no-op reporting false.
func (r *Registry) Unsubscribe(c *Conn, topic realtime.Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	own := r.conns[c]
	if _, ok := own[topic]; !ok {
		return false
	}
	delete(own, topic)
	if len(own) == 0 {
		delete(r.conns, c)
	}
	r.detach(c, topic)
	return true
}

// RemoveConn drops c from every topic and returns the topics it held.
func (r *Registry) RemoveConn(c *Conn) []realtime.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	own := r.conns[c]
	delete(r.conns, c)

	removed := make([]realtime.Topic, 0, len(own))
	for topic := range own {
		r.detach(c, topic)
		removed = append(removed, topic)
	}
	return removed
}

// detach must be called with mu held.
func (r *Registry) detach(c *Conn, topic realtime.Topic) {
	subs := r.topics[topic]
	delete(subs, c)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// Subscribers returns a snapshot of the connections subscribed to topic.
func (r *Registry) Subscribers(topic realtime.Topic) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[topic]
	out := make([]*Conn, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// Topics returns a snapshot of the topics c is subscribed to.
func (r *Registry) Topics(c *Conn) []realtime.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	own := r.conns[c]
	out := make([]realtime.Topic, 0, len(own))
	for topic := range own {
		out = append(out, topic)
	}
	return out
}

// TopicCount returns the number of topics with at least one subscriber.
func (r *Registry) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
