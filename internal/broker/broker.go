// Package broker wires the frame codec, topic store, subscriber
// registry, gossip engine and election engine into the one long-running
// listener process described in spec.md §2/§4.1.
package broker

import (
	"context"
	"fmt"
	"net"

	"github.com/chris-alexander-pop/lamport-broker/internal/clock"
	"github.com/chris-alexander-pop/lamport-broker/internal/election"
	"github.com/chris-alexander-pop/lamport-broker/internal/gossip"
	"github.com/chris-alexander-pop/lamport-broker/internal/identity"
	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore"
	"github.com/chris-alexander-pop/lamport-broker/internal/subscribers"
	"github.com/chris-alexander-pop/lamport-broker/internal/topicstore"
	"github.com/chris-alexander-pop/lamport-broker/internal/wire"
	"github.com/chris-alexander-pop/lamport-broker/pkg/errors"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
)

// Broker is one peer in the fleet: a listener plus the shared state and
// engines a connection handler dispatches into.
type Broker struct {
	self     identity.BrokerID
	peers    []identity.BrokerID
	clock    *clock.LamportClock
	topics   *topicstore.Store
	subs     *subscribers.Registry
	gossip   *gossip.Engine
	election *election.Engine
	kv       kvstore.Store
	listener net.Listener
}

// New builds a Broker. kv is the durable topic-store backend (sqlitekv
// or memkv); peers excludes self.
func New(self identity.BrokerID, peers []identity.BrokerID, kv kvstore.Store) *Broker {
	clk := clock.New()
	return &Broker{
		self:     self,
		peers:    peers,
		clock:    clk,
		topics:   topicstore.New(kv),
		subs:     subscribers.New(),
		gossip:   gossip.New(self, peers),
		election: election.New(self, peers, clk, election.DialTransport{}),
		kv:       kv,
	}
}

// Serve binds the broker's listening port and accepts connections until
// ctx is canceled, spawning one handler goroutine per connection
// (spec.md §4.1's unbounded-count accept loop). An accept error while
// ctx is still live is returned, which ends the broker.
func (b *Broker) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", b.self.Port))
	if err != nil {
		return errors.Wrap(err, "failed to bind broker listener")
	}
	b.listener = ln
	logger.L().Info("broker listening", "host", b.self.Host, "port", b.self.Port, "peers", len(b.peers))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return errors.Wrap(err, "failed to accept connection")
		}
		go b.handleConn(ctx, conn)
	}
}

// TriggerElection starts a bully election round. Exposed so main can run
// one at startup and tests can exercise the procedure on demand; spec.md
// leaves the triggering condition (e.g. detecting the coordinator is
// unreachable) outside this package's scope.
func (b *Broker) TriggerElection(ctx context.Context) {
	b.election.Initiate(ctx)
}

// Coordinator reports who this broker currently believes is coordinator.
func (b *Broker) Coordinator() (identity.BrokerID, bool) {
	return b.election.Coordinator()
}

// Close stops accepting new connections and releases the durable store.
func (b *Broker) Close() error {
	var lnErr, kvErr error
	if b.listener != nil {
		lnErr = b.listener.Close()
		// Serve's shutdown watcher may already have closed it.
		if opErr, ok := lnErr.(*net.OpError); ok && opErr.Err == net.ErrClosed {
			lnErr = nil
		}
	}
	if b.kv != nil {
		kvErr = b.kv.Close()
	}
	if lnErr != nil {
		return errors.Wrap(lnErr, "failed to close listener")
	}
	if kvErr != nil {
		return errors.Wrap(kvErr, "failed to close kv store")
	}
	return nil
}

func (b *Broker) handleConn(ctx context.Context, conn net.Conn) {
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		logger.L().Warn("malformed frame, closing connection", "remote", conn.RemoteAddr(), "error", err)
		conn.Close()
		return
	}

	switch frame.Type {
	case wire.TypeSubscribe:
		b.handleSubscribe(conn, frame)
	case wire.TypePublish:
		defer conn.Close()
		b.handlePublish(ctx, frame)
	case wire.TypeGossip:
		defer conn.Close()
		b.handleGossip(ctx, frame)
	case wire.TypeElection:
		defer conn.Close()
		ack := b.election.HandleElection(ctx, senderID(frame), frame.LamportTimestamp)
		if err := wire.Encode(conn, ack); err != nil {
			logger.L().Warn("election ack write failed", "remote", conn.RemoteAddr(), "error", err)
		}
	case wire.TypeElectionAck:
		// election_ack only ever arrives as a reply read directly off
		// the connection an election frame was sent on (spec.md §6); a
		// fresh connection carrying one is unexpected.
		logger.L().Warn("unexpected election_ack on a new connection, ignoring", "remote", conn.RemoteAddr())
		conn.Close()
	case wire.TypeCoordinator:
		defer conn.Close()
		b.election.HandleCoordinator(ctx, senderID(frame), frame.LamportTimestamp)
	default:
		logger.L().Warn("unknown frame type, closing connection", "type", frame.Type, "remote", conn.RemoteAddr())
		conn.Close()
	}
}

// handleSubscribe registers conn against frame.Topic and keeps it open
// for server-to-client pushes; a background reader detects the peer
// closing its end and prunes the subscriber.
func (b *Broker) handleSubscribe(conn net.Conn, frame wire.Frame) {
	b.clock.Tick()
	sub := b.subs.Add(frame.Topic, conn)
	logger.L().Info("subscriber registered", "topic", frame.Topic, "remote", conn.RemoteAddr())

	go func() {
		buf := make([]byte, 1)
		for {
			if _, err := conn.Read(buf); err != nil {
				b.subs.Prune(sub)
				return
			}
		}
	}()
}

// handlePublish is the entry point for a fresh publish from a client:
// merge the clock against the frame's timestamp, store-and-fan-out
// locally under one critical section, then gossip to every peer
// (spec.md §4.5/§5).
func (b *Broker) handlePublish(ctx context.Context, frame wire.Frame) {
	ts := b.clock.Merge(frame.LamportTimestamp)
	b.topics.PutAndFanOut(frame.Topic, frame.Message, func() {
		b.subs.FanOut(frame.Topic, frame.Message, ts)
	})

	b.gossip.FanOut(ctx, wire.Frame{
		Type:             wire.TypeGossip,
		Topic:            frame.Topic,
		Message:          frame.Message,
		LamportTimestamp: ts,
		Sender:           &wire.Sender{Host: b.self.Host, Port: b.self.Port},
	})
}

// handleGossip is the entry point for a message relayed from a peer:
// merge the clock, drop it if the durable store already holds this
// exact (topic, payload) pair (spec.md §4.3's dedup oracle), otherwise
// store-and-fan-out locally and re-flood to every peer.
func (b *Broker) handleGossip(ctx context.Context, frame wire.Frame) {
	ts := b.clock.Merge(frame.LamportTimestamp)

	if b.topics.Seen(frame.Topic, frame.Message) {
		return
	}

	b.topics.PutAndFanOut(frame.Topic, frame.Message, func() {
		b.subs.FanOut(frame.Topic, frame.Message, ts)
	})

	b.gossip.FanOut(ctx, wire.Frame{
		Type:             wire.TypeGossip,
		Topic:            frame.Topic,
		Message:          frame.Message,
		LamportTimestamp: ts,
		Sender:           &wire.Sender{Host: b.self.Host, Port: b.self.Port},
	})
}

func senderID(frame wire.Frame) identity.BrokerID {
	if frame.Sender == nil {
		return identity.BrokerID{}
	}
	return identity.BrokerID{Host: frame.Sender.Host, Port: frame.Sender.Port}
}
