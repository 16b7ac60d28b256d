// Package subscribers implements the per-broker subscriber registry
// from spec.md §3/§4.4: topic -> set of live subscriber connections,
// fanned out to on every publish/gossip-first-sight, with broken
// connections dropped from every topic they occupied.
package subscribers

import (
	"net"
	"strings"
	"sync"

	"github.com/chris-alexander-pop/lamport-broker/internal/wire"
	"github.com/chris-alexander-pop/lamport-broker/pkg/concurrency"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
)

// mailboxSize bounds how far a subscriber's outbound queue can lag;
// once it is full, FanOut drops further frames for that subscriber
// instead of blocking. Generous for the control plane's low publish rate.
const mailboxSize = 64

// Subscriber is one subscriber connection, draining its own mailbox on
// a dedicated goroutine so that fan-out order observed by this
// subscriber matches insertion order even though the socket write
// itself happens off the fan-out caller's goroutine.
type Subscriber struct {
	conn     net.Conn
	mailbox  chan wire.Frame
	registry *Registry
	once     sync.Once
}

func newSubscriber(conn net.Conn, r *Registry) *Subscriber {
	s := &Subscriber{
		conn:     conn,
		mailbox:  make(chan wire.Frame, mailboxSize),
		registry: r,
	}
	go s.drain()
	return s
}

func (s *Subscriber) drain() {
	for frame := range s.mailbox {
		if err := wire.Encode(s.conn, frame); err != nil {
			logger.L().Warn("subscriber send failed, dropping", "remote", s.conn.RemoteAddr(), "error", err)
			s.registry.drop(s)
			return
		}
	}
}

// close tears down the subscriber's connection and lets drain exit once
// the mailbox (closed by the registry under lock) drains.
func (s *Subscriber) close() {
	s.once.Do(func() {
		_ = s.conn.Close()
	})
}

// Registry tracks topic -> subscriber set, guarded the same way as the
// other three shared structures spec.md §5 calls out (clock, topic
// store, coordinator state).
type Registry struct {
	mu     *concurrency.SmartRWMutex
	topics map[string][]*Subscriber
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		mu:     concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "subscriber-registry"}),
		topics: make(map[string][]*Subscriber),
	}
}

func normalize(topic string) string {
	return strings.ToLower(topic)
}

// Add registers a brand new connection under topic and returns its
// Subscriber handle.
func (r *Registry) Add(topic string, conn net.Conn) *Subscriber {
	sub := newSubscriber(conn, r)
	r.AddExisting(topic, sub)
	return sub
}

// AddExisting registers an already-created Subscriber handle under an
// additional topic, so one connection subscribed to several topics
// shares a single mailbox/drain goroutine.
func (r *Registry) AddExisting(topic string, sub *Subscriber) {
	key := normalize(topic)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics[key] = append(r.topics[key], sub)
}

// FanOut enqueues a publish frame carrying topic/payload/ts to every
// current subscriber of topic. A subscriber whose mailbox is already
// full (its drain goroutine has fallen behind or died) has the frame
// dropped for that delivery rather than blocking the publish path.
func (r *Registry) FanOut(topic, payload string, ts uint64) {
	key := normalize(topic)
	r.mu.RLock()
	subs := append([]*Subscriber(nil), r.topics[key]...)
	r.mu.RUnlock()

	frame := wire.Frame{Type: wire.TypePublish, Topic: topic, Message: payload, LamportTimestamp: ts}
	for _, sub := range subs {
		select {
		case sub.mailbox <- frame:
		default:
			logger.L().Warn("subscriber mailbox full, dropping frame", "remote", sub.conn.RemoteAddr())
		}
	}
}

// drop removes sub from every topic it occupies and tears it down.
// Called once, either by its own drain goroutine on a send failure or
// by Prune when the subscriber's connection closes independently.
func (r *Registry) drop(sub *Subscriber) {
	r.mu.Lock()
	for topic, subs := range r.topics {
		filtered := subs[:0]
		for _, s := range subs {
			if s != sub {
				filtered = append(filtered, s)
			}
		}
		r.topics[topic] = filtered
	}
	r.mu.Unlock()
	sub.close()
}

// Prune removes sub from the registry because its connection was torn
// down by the connection handler, independent of a send failure.
func (r *Registry) Prune(sub *Subscriber) {
	r.drop(sub)
}
