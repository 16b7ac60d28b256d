// Package concurrency provides the broker's shared-state primitives:
// observable mutexes for the four structures spec.md §5 requires to be
// synchronized (Lamport clock, topic store, subscriber registry,
// coordinator state), and a bounded worker pool for peer fan-out.
package concurrency

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
)

// MutexConfig controls the observability behavior of SmartMutex/SmartRWMutex.
type MutexConfig struct {
	// Name identifies this mutex in logs (only used in DebugMode).
	Name string

	// SlowThreshold logs a warning if the lock is held longer than this.
	// Default: 100ms.
	SlowThreshold time.Duration

	// DebugMode enables caller tracking and slow-lock logging. Adds a
	// runtime.Caller() call per Lock(); off by default for the broker's
	// hot paths (publish, gossip receipt).
	DebugMode bool
}

// SmartMutex is a sync.Mutex with optional slow-lock observability.
type SmartMutex struct {
	mu       sync.Mutex
	config   MutexConfig
	holder   atomic.Value
	lockedAt atomic.Int64
}

func NewSmartMutex(cfg MutexConfig) *SmartMutex {
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = 100 * time.Millisecond
	}
	return &SmartMutex{config: cfg}
}

func (m *SmartMutex) Lock() {
	m.mu.Lock()
	if !m.config.DebugMode {
		return
	}
	m.lockedAt.Store(time.Now().UnixMilli())
	if _, file, line, ok := runtime.Caller(1); ok {
		m.holder.Store(fmt.Sprintf("%s:%d", file, line))
	}
}

func (m *SmartMutex) Unlock() {
	if !m.config.DebugMode {
		m.mu.Unlock()
		return
	}
	start := m.lockedAt.Load()
	duration := time.Since(time.UnixMilli(start))
	holder := m.holder.Load()
	m.mu.Unlock()
	if duration > m.config.SlowThreshold {
		logger.L().Warn("SmartMutex held too long", "name", m.config.Name, "duration", duration, "caller", holder)
	}
}

// SmartRWMutex is a sync.RWMutex with the same optional observability.
type SmartRWMutex struct {
	mu       sync.RWMutex
	config   MutexConfig
	holder   atomic.Value
	lockedAt atomic.Int64
}

func NewSmartRWMutex(cfg MutexConfig) *SmartRWMutex {
	if cfg.SlowThreshold == 0 {
		cfg.SlowThreshold = 100 * time.Millisecond
	}
	return &SmartRWMutex{config: cfg}
}

func (m *SmartRWMutex) Lock() {
	m.mu.Lock()
	if !m.config.DebugMode {
		return
	}
	m.lockedAt.Store(time.Now().UnixMilli())
	if _, file, line, ok := runtime.Caller(1); ok {
		m.holder.Store(fmt.Sprintf("%s:%d", file, line))
	}
}

func (m *SmartRWMutex) Unlock() {
	if !m.config.DebugMode {
		m.mu.Unlock()
		return
	}
	start := m.lockedAt.Load()
	duration := time.Since(time.UnixMilli(start))
	holder := m.holder.Load()
	m.mu.Unlock()
	if duration > m.config.SlowThreshold {
		logger.L().Warn("SmartRWMutex write held too long", "name", m.config.Name, "duration", duration, "caller", holder)
	}
}

func (m *SmartRWMutex) RLock()   { m.mu.RLock() }
func (m *SmartRWMutex) RUnlock() { m.mu.RUnlock() }
