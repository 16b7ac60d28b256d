// Package topicstore holds the latest-message-per-topic register
// (spec.md §3/§4.3): an in-memory write-through cache mirrored into a
// durable kvstore.Store, which is also the dedup oracle for gossip.
package topicstore

import (
	"strings"

	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore"
	"github.com/chris-alexander-pop/lamport-broker/pkg/datastructures/concurrentmap"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
)

// Store is the topic register: topic -> latest payload, case-folded.
type Store struct {
	mem *concurrentmap.ShardedMap[string]
	kv  kvstore.Store
}

// New creates a Store backed by kv.
func New(kv kvstore.Store) *Store {
	return &Store{
		mem: concurrentmap.New[string](16),
		kv:  kv,
	}
}

func normalize(topic string) string {
	return strings.ToLower(topic)
}

// Put normalizes topic to lower case, overwrites the in-memory entry,
// and mirrors the write into the durable store with upsert semantics
// (spec.md §4.3). A durable write failure is logged, not propagated —
// the in-memory path stays authoritative for the running process
// (spec.md §4.9/§7).
func (s *Store) Put(topic, payload string) {
	key := normalize(topic)
	s.mem.Set(key, payload)
	if err := s.kv.Upsert(key, payload); err != nil {
		logger.L().Warn("durable topic store write failed", "topic", key, "error", err)
	}
}

// PutAndFanOut performs the write-then-notify sequence under the same
// per-topic shard lock: normalize, set the in-memory entry, mirror the
// write to the durable store, then invoke notify. Running notify inside
// the critical section is what gives spec.md §5's guarantee that
// subscriber fan-out order equals the serialization order chosen by the
// topic-store lock, for publishes/gossip landing on the same topic.
func (s *Store) PutAndFanOut(topic, payload string, notify func()) {
	key := normalize(topic)
	s.mem.Do(key, func(_ func() (string, bool), set func(string)) {
		set(payload)
		if err := s.kv.Upsert(key, payload); err != nil {
			logger.L().Warn("durable topic store write failed", "topic", key, "error", err)
		}
		notify()
	})
}

// Get returns the latest payload stored for topic, from the in-memory
// cache, and whether anything has been published to it yet.
func (s *Store) Get(topic string) (string, bool) {
	return s.mem.Get(normalize(topic))
}

// Seen reports whether the durable store currently holds exactly this
// (topic, payload) pair — the dedup oracle gossip fan-out consults
// before re-flooding (spec.md §4.3/§4.7).
func (s *Store) Seen(topic, payload string) bool {
	stored, ok, err := s.kv.Lookup(normalize(topic))
	if err != nil {
		logger.L().Warn("durable topic store lookup failed", "topic", topic, "error", err)
		return false
	}
	return ok && stored == payload
}
