// Package election implements the bully-style leader election described
// in spec.md §4.8, ordered by Lamport timestamps and broker (host, port)
// priority. Classical bully semantics: an election frame from a
// lower-priority sender makes the receiver re-initiate its own election
// (spec.md's Open Question (b) — the Python original's check was
// inverted; this corrects it).
package election

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/chris-alexander-pop/lamport-broker/internal/clock"
	"github.com/chris-alexander-pop/lamport-broker/internal/identity"
	"github.com/chris-alexander-pop/lamport-broker/internal/wire"
	"github.com/chris-alexander-pop/lamport-broker/pkg/concurrency"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
	"github.com/chris-alexander-pop/lamport-broker/pkg/resilience"
)

// State is the engine's position in the election procedure.
type State int

const (
	StateIdle State = iota
	StateElecting
	StateCoordinator
)

func (s State) String() string {
	switch s {
	case StateElecting:
		return "electing"
	case StateCoordinator:
		return "coordinator"
	default:
		return "idle"
	}
}

// dialTimeout bounds a single outbound peer dial, per spec.md §4.8 step
// 3 ("open a connection, send an election frame, then read one response
// with a bounded timeout (design: 5s)") and §5's 5s design default. For
// an election dial this single bound covers the whole round trip — dial,
// write, and the election_ack read on that same connection — not just
// the write, since spec.md §6 requires election_ack to be a reply "on
// same connection", never a separate dial-back.
const dialTimeout = 5 * time.Second

// Transport sends protocol frames to peers on behalf of an Engine.
// Broker wires DialTransport; tests wire an in-memory fake to exercise
// the procedure without sockets.
type Transport interface {
	// SendElection dials peer, writes frame, and reads one response
	// frame on that same connection within dialTimeout. acked reports
	// whether the response was an election_ack (spec.md §4.8 step 3).
	SendElection(ctx context.Context, peer identity.BrokerID, frame wire.Frame) (acked bool, err error)

	// SendCoordinator dials peer and writes frame; no reply is expected
	// (spec.md §4.8's Coordinator-frame handler sends no acknowledgement).
	SendCoordinator(ctx context.Context, peer identity.BrokerID, frame wire.Frame) error
}

// Engine runs one broker's side of the election protocol and holds the
// coordinator state spec.md §5 lists as one of the four structures
// requiring its own lock.
type Engine struct {
	mu          *concurrency.SmartMutex
	self        identity.BrokerID
	peers       []identity.BrokerID
	clock       *clock.LamportClock
	transport   Transport
	state       State
	coordinator identity.BrokerID
}

// New creates an Engine that initially considers itself the coordinator,
// matching the Python original's startup behavior before any election
// has run.
func New(self identity.BrokerID, peers []identity.BrokerID, clk *clock.LamportClock, transport Transport) *Engine {
	return &Engine{
		mu:          concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "election-coordinator"}),
		self:        self,
		peers:       peers,
		clock:       clk,
		transport:   transport,
		state:       StateIdle,
		coordinator: self,
	}
}

// Coordinator returns the currently known coordinator and whether this
// engine believes itself to hold that role.
func (e *Engine) Coordinator() (identity.BrokerID, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinator, e.coordinator.Equal(e.self)
}

// State reports the engine's current position in the procedure.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Initiate runs one round of the bully procedure (spec.md §4.8 steps
// 1-5): send an election frame to every higher-priority peer
// concurrently, each dial reading its own election_ack reply bounded by
// dialTimeout, join every outgoing attempt, and self-promote only once
// every attempt has returned and none was acked. If there is no
// higher-priority peer at all, it self-promotes immediately.
func (e *Engine) Initiate(ctx context.Context) {
	higher := identity.HigherPriority(e.self, e.peers)
	if len(higher) == 0 {
		e.promoteSelf(ctx)
		return
	}

	e.mu.Lock()
	if e.state == StateElecting {
		e.mu.Unlock()
		return
	}
	e.state = StateElecting
	e.mu.Unlock()

	ts := e.clock.Tick()
	frame := wire.Frame{
		Type:             wire.TypeElection,
		LamportTimestamp: ts,
		Sender:           &wire.Sender{Host: e.self.Host, Port: e.self.Port},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	acked := false

	for _, peer := range higher {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := e.transport.SendElection(ctx, peer, frame)
			if err != nil {
				logger.L().Warn("election send failed", "peer", peer.String(), "error", err)
				return
			}
			if got {
				mu.Lock()
				acked = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if !acked {
		e.promoteSelf(ctx)
		return
	}

	logger.L().Debug("election acked by higher peer, awaiting coordinator announcement", "broker", e.self.String())
	e.mu.Lock()
	if e.state == StateElecting {
		e.state = StateIdle
	}
	e.mu.Unlock()
}

// HandleElection processes an incoming election frame from sender and
// returns the election_ack frame the caller must write back on the same
// connection the election frame arrived on (spec.md §6: election_ack is
// "a reply on same connection", never a fresh dial-back). If sender is
// lower-priority than self, a new election is initiated in the
// background.
func (e *Engine) HandleElection(ctx context.Context, sender identity.BrokerID, ts uint64) wire.Frame {
	e.clock.Merge(ts)

	ackTS := e.clock.Tick()
	ack := wire.Frame{
		Type:             wire.TypeElectionAck,
		LamportTimestamp: ackTS,
		Sender:           &wire.Sender{Host: e.self.Host, Port: e.self.Port},
	}

	if sender.Less(e.self) {
		go e.Initiate(ctx)
	}

	return ack
}

// HandleCoordinator records sender as the new coordinator.
func (e *Engine) HandleCoordinator(ctx context.Context, sender identity.BrokerID, ts uint64) {
	e.clock.Merge(ts)

	e.mu.Lock()
	e.coordinator = sender
	e.state = StateIdle
	e.mu.Unlock()

	logger.L().Info("new coordinator", "coordinator", sender.String())
}

func (e *Engine) promoteSelf(ctx context.Context) {
	e.mu.Lock()
	e.state = StateCoordinator
	e.coordinator = e.self
	e.mu.Unlock()

	logger.L().Info("self-promoted to coordinator", "broker", e.self.String())

	ts := e.clock.Tick()
	frame := wire.Frame{
		Type:             wire.TypeCoordinator,
		LamportTimestamp: ts,
		Sender:           &wire.Sender{Host: e.self.Host, Port: e.self.Port},
	}
	for _, peer := range e.peers {
		peer := peer
		go func() {
			if err := e.transport.SendCoordinator(ctx, peer, frame); err != nil {
				logger.L().Warn("coordinator announce failed", "peer", peer.String(), "error", err)
			}
		}()
	}
}

// DialTransport is the production Transport: dial fresh, exchange
// frames, close, per spec's connection lifecycle.
type DialTransport struct{}

// SendElection implements Transport: dial peer, write frame, then read
// one response frame, all bounded together by dialTimeout so a peer's
// full round trip is always joined before Initiate evaluates whether
// any reply arrived.
func (DialTransport) SendElection(ctx context.Context, peer identity.BrokerID, frame wire.Frame) (bool, error) {
	var acked bool
	op := resilience.WithTimeout(dialTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", peer.String())
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := wire.Encode(conn, frame); err != nil {
			return err
		}
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetReadDeadline(deadline)
		}
		resp, err := wire.ReadFrame(conn)
		if err != nil {
			return err
		}
		acked = resp.Type == wire.TypeElectionAck
		return nil
	})
	err := op(ctx)
	return acked, err
}

// SendCoordinator implements Transport: dial peer, write frame, close;
// no reply is read.
func (DialTransport) SendCoordinator(ctx context.Context, peer identity.BrokerID, frame wire.Frame) error {
	op := resilience.WithTimeout(dialTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", peer.String())
		if err != nil {
			return err
		}
		defer conn.Close()
		return wire.Encode(conn, frame)
	})
	return op(ctx)
}
