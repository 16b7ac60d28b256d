// Package concurrentmap provides a sharded, string-keyed concurrent map
// used by internal/topicstore to hold the in-memory topic registers
// without a single global lock.
package concurrentmap

import (
	"github.com/chris-alexander-pop/lamport-broker/pkg/concurrency"
)

// ShardedMap is a thread-safe string-keyed map split into N shards,
// each guarded by its own mutex, to reduce contention versus one map
// behind one lock.
type ShardedMap[V any] struct {
	shards    []*shard[V]
	shardMask uint32
}

type shard[V any] struct {
	data map[string]V
	mu   *concurrency.SmartRWMutex
}

// New creates a ShardedMap with shardCount rounded up to a power of 2.
func New[V any](shardCount int) *ShardedMap[V] {
	if shardCount <= 0 {
		shardCount = 16
	}
	n := uint32(shardCount)
	if n&(n-1) != 0 {
		p := uint32(1)
		for p < n {
			p <<= 1
		}
		n = p
	}

	m := &ShardedMap[V]{
		shards:    make([]*shard[V], n),
		shardMask: n - 1,
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{
			data: make(map[string]V),
			mu:   concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "ShardedMap"}),
		}
	}
	return m
}

const (
	offset32 = 2166136261
	prime32  = 16777619
)

func (m *ShardedMap[V]) getShard(key string) *shard[V] {
	var hash uint32 = offset32
	for i := 0; i < len(key); i++ {
		hash ^= uint32(key[i])
		hash *= prime32
	}
	return m.shards[hash&m.shardMask]
}

// Get retrieves a value.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.getShard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores a value, overwriting any existing one for the key.
func (m *ShardedMap[V]) Set(key string, value V) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes a key.
func (m *ShardedMap[V]) Delete(key string) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Do runs fn as a single critical section under the lock for key's
// shard, giving the caller an atomic read-modify-and-react operation
// (topicstore uses this to keep a topic's store write and its
// subscriber fan-out in the same serialization order).
func (m *ShardedMap[V]) Do(key string, fn func(get func() (V, bool), set func(V))) {
	s := m.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(
		func() (V, bool) { v, ok := s.data[key]; return v, ok },
		func(v V) { s.data[key] = v },
	)
}

// Len returns the total number of entries across all shards.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}
