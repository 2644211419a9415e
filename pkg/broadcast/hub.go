// Package broadcast pushes change notifications to connected clients. Clients subscribe to named
// topics and only receive frames published to those topics. Delivery is best effort: nothing is
// persisted or replayed, and a subscriber that is not keeping up loses frames rather than slowing
// down the publisher.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"
)

const (
	StatusAdd    = "add"
	StatusDelete = "delete"
	StatusUpdate = "update"
)

var (
	ErrHubClosed          = errors.New("hub closed")
	ErrSubscriptionClosed = errors.New("subscription closed")
)

// BoardTopic receives add and delete changes for every memo on a board.
func BoardTopic(board string) string {
	return "memos-" + board
}

// MemoTopic receives in-place updates of a single memo.
func MemoTopic(id string) string {
	return "memo-" + id
}

// Change is the payload of a memo notification.
type Change struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

// Frame is what a subscriber receives: the topic name and the published payload.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type Hub struct {
	mu     sync.RWMutex
	closed bool
	nextID uint64
	buffer int
	subs   map[uint64]*Subscription
	topics map[string]map[uint64]*Subscription
}

// NewHub creates a hub whose subscriptions buffer up to buffer undelivered frames each.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[uint64]*Subscription),
		topics: make(map[string]map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscription joined to the given topics.
func (h *Hub) Subscribe(topics ...string) (*Subscription, error) {
	for _, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("subscribe: empty topic")
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		frames: make(chan []byte, h.buffer),
		topics: make(map[string]struct{}),
	}
	h.subs[sub.id] = sub
	for _, topic := range lo.Uniq(topics) {
		h.join(sub, topic)
	}
	return sub, nil
}

// Publish encodes payload once and offers it to every subscriber of topic. It never blocks on a
// subscriber and returns how many subscribers accepted the frame.
func (h *Hub) Publish(ctx context.Context, topic string, payload interface{}) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload for %s: %w", topic, err)
	}
	frame, err := json.Marshal(Frame{Event: topic, Payload: rawPayload})
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame for %s: %w", topic, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrHubClosed
	}
	delivered := 0
	for _, sub := range h.topics[topic] {
		select {
		case sub.frames <- frame:
			delivered++
		default:
			sub.dropped.Add(1)
			slog.Warn("dropped frame for slow subscriber", "subscriber", sub.id, "topic", topic)
		}
	}
	return delivered, nil
}

// Subscribers returns the number of subscriptions joined to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Connections returns the number of open subscriptions.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects further use of the hub.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, sub := range h.subs {
		h.remove(sub)
	}
}

// join, leave and remove must be called with h.mu held for writing.
func (h *Hub) join(sub *Subscription, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[uint64]*Subscription)
		h.topics[topic] = members
	}
	members[sub.id] = sub
	sub.topics[topic] = struct{}{}
}

func (h *Hub) leave(sub *Subscription, topic string) {
	if members, ok := h.topics[topic]; ok {
		delete(members, sub.id)
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(sub.topics, topic)
}

func (h *Hub) remove(sub *Subscription) {
	if sub.closed {
		return
	}
	for topic := range sub.topics {
		h.leave(sub, topic)
	}
	delete(h.subs, sub.id)
	sub.closed = true
	close(sub.frames)
}

type Subscription struct {
	id     uint64
	hub    *Hub
	frames chan []byte
	// topics and closed are guarded by hub.mu
	topics  map[string]struct{}
	closed  bool
	dropped atomic.Uint64
}

func (s *Subscription) ID() uint64 {
	return s.id
}

// Frames yields encoded frames until the subscription or the hub is closed.
func (s *Subscription) Frames() <-chan []byte {
	return s.frames
}

func (s *Subscription) Join(topic string) error {
	if topic == "" {
		return fmt.Errorf("join: empty topic")
	}
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return ErrSubscriptionClosed
	}
	s.hub.join(s, topic)
	return nil
}

func (s *Subscription) Leave(topic string) error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if s.closed {
		return ErrSubscriptionClosed
	}
	s.hub.leave(s, topic)
	return nil
}

// Topics returns the joined topics in lexical order.
func (s *Subscription) Topics() []string {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	topics := lo.Keys(s.topics)
	sort.Strings(topics)
	return topics
}

// Dropped counts frames lost because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close leaves every topic and closes Frames. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}
