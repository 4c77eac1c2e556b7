// Package realtime keeps the per-user live message streams of this instance
// and fans published events out to them.
package realtime

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/AnshRaj112/sparklink-backend/internal/metrics"
)

// ReconnectPolicy decides what happens when a user opens a second stream.
type ReconnectPolicy int

const (
	// ReplaceExisting closes the old stream and keeps the new one.
	ReplaceExisting ReconnectPolicy = iota
	// RejectNew refuses the new stream while the old one is open.
	RejectNew
)

// DefaultBuffer is the number of events a subscriber may lag behind before
// it is dropped.
const DefaultBuffer = 32

var ErrAlreadySubscribed = errors.New("a live stream is already open for this user")

// Result is the outcome of a local delivery attempt.
type Result string

const (
	Delivered Result = "delivered"
	Offline   Result = "offline"
	Dropped   Result = "dropped"
)

// Subscriber is one open stream. The transport drains Messages until Done is closed.
type Subscriber struct {
	UserID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewSubscriber(userID string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscriber{
		UserID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Subscriber) Messages() <-chan []byte { return s.send }

// Done is closed when the subscriber was replaced, dropped or closed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer is a non-blocking send; false means closed or full.
func (s *Subscriber) offer(payload []byte) bool {
	if s.closed() {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// Registry maps a user id to at most one subscriber.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	policy ReconnectPolicy
	log    *zap.SugaredLogger
}

func NewRegistry(policy ReconnectPolicy, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		subs:   make(map[string]*Subscriber),
		policy: policy,
		log:    log,
	}
}

// Register adds sub for its user. Under ReplaceExisting a previous subscriber
// is closed; under RejectNew ErrAlreadySubscribed is returned while it is open.
func (r *Registry) Register(sub *Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.subs[sub.UserID]
	if ok && !old.closed() {
		if r.policy == RejectNew {
			return ErrAlreadySubscribed
		}
		old.Close()
		r.log.Infow("live stream replaced", "user_id", sub.UserID)
	}
	if !ok {
		metrics.LiveSubscribers.Inc()
	}
	r.subs[sub.UserID] = sub
	return nil
}

// Unregister removes sub only if it is still the registered subscriber for
// its user, so a replaced stream cannot evict its successor.
func (r *Registry) Unregister(sub *Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.subs[sub.UserID]
	if !ok || cur != sub {
		return false
	}
	delete(r.subs, sub.UserID)
	metrics.LiveSubscribers.Dec()
	return true
}

// Deliver pushes payload to the user's subscriber without blocking. A
// subscriber that cannot take the event is unregistered and closed.
func (r *Registry) Deliver(userID string, payload []byte) Result {
	sub, ok := r.lookup(userID)
	if !ok {
		return r.count(Offline)
	}
	return r.deliver(sub, payload)
}

func (r *Registry) lookup(userID string) (*Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[userID]
	return sub, ok
}

// deliver offers payload to sub. A replace can close sub between the lookup
// and the send; the subscriber registered by then gets one attempt instead.
func (r *Registry) deliver(sub *Subscriber, payload []byte) Result {
	if sub.offer(payload) {
		return r.count(Delivered)
	}
	if sub.closed() {
		cur, ok := r.lookup(sub.UserID)
		if !ok {
			return r.count(Offline)
		}
		if cur != sub {
			if cur.offer(payload) {
				return r.count(Delivered)
			}
			sub = cur
		}
	}

	r.Unregister(sub)
	sub.Close()
	r.log.Warnw("live stream dropped, subscriber not accepting events", "user_id", sub.UserID)
	return r.count(Dropped)
}

func (r *Registry) count(res Result) Result {
	metrics.LivePushes.WithLabelValues(string(res)).Inc()
	return res
}

// Subscribed reports whether userID has a registered stream.
func (r *Registry) Subscribed(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[userID]
	return ok
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// CloseAll closes every stream; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sub := range r.subs {
		sub.Close()
		delete(r.subs, id)
		metrics.LiveSubscribers.Dec()
	}
}
