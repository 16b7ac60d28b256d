// Package gossip implements single-hop flooding of publishes to every
// known peer (spec.md §4.5–4.7): dial fresh, send one gossip frame,
// close. Dedup against re-flooding is the caller's job (topicstore.Seen)
// — this package only fans a message out once asked to.
package gossip

import (
	"context"
	"net"
	"time"

	"github.com/chris-alexander-pop/lamport-broker/internal/identity"
	"github.com/chris-alexander-pop/lamport-broker/internal/wire"
	"github.com/chris-alexander-pop/lamport-broker/pkg/concurrency"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
	"github.com/chris-alexander-pop/lamport-broker/pkg/resilience"
)

// dialTimeout is the design default from spec.md §5 bounding every
// outbound peer dial+send.
const dialTimeout = 5 * time.Second

// Engine fans a gossip frame out to every peer in a fixed set, using a
// worker pool with one worker per peer, so every peer's dial+send runs
// concurrently.
type Engine struct {
	self  identity.BrokerID
	peers []identity.BrokerID
}

// New creates an Engine that will gossip to peers, excluding self.
func New(self identity.BrokerID, peers []identity.BrokerID) *Engine {
	return &Engine{self: self, peers: peers}
}

// FanOut sends frame to every peer concurrently, bounded by a worker
// pool sized to len(peers). Each send is independently best-effort: a
// failed dial or write is logged and otherwise ignored, matching
// spec.md §4.9's "gossip to an unreachable peer" row (no retry).
func (e *Engine) FanOut(ctx context.Context, frame wire.Frame) {
	if len(e.peers) == 0 {
		return
	}

	pool := concurrency.NewWorkerPool(len(e.peers), len(e.peers))
	pool.Start(ctx)

	for _, peer := range e.peers {
		peer := peer
		pool.Submit(func(ctx context.Context) {
			e.send(ctx, peer, frame)
		})
	}

	pool.Stop()
}

func (e *Engine) send(ctx context.Context, peer identity.BrokerID, frame wire.Frame) {
	op := resilience.WithTimeout(dialTimeout, func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", peer.String())
		if err != nil {
			return err
		}
		defer conn.Close()
		return wire.Encode(conn, frame)
	})

	if err := op(ctx); err != nil {
		logger.L().Warn("gossip send failed", "peer", peer.String(), "topic", frame.Topic, "error", err)
	}
}
