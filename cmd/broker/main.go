// Command broker runs one peer of the gossip pub/sub fleet: it binds
// --host/--port, loads its peer set from the fixed globalState.csv
// manifest, triggers a bully election, and serves publish/subscribe/
// gossip/election traffic until signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris-alexander-pop/lamport-broker/internal/broker"
	"github.com/chris-alexander-pop/lamport-broker/internal/identity"
	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore"
	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore/memkv"
	"github.com/chris-alexander-pop/lamport-broker/internal/kvstore/sqlitekv"
	"github.com/chris-alexander-pop/lamport-broker/pkg/config"
	"github.com/chris-alexander-pop/lamport-broker/pkg/logger"
)

// peerManifestPath is the fixed CSV location the Python original reads
// its peer set from; kept as a constant rather than a flag per spec.md §6.
const peerManifestPath = "globalState.csv"

// ambientConfig holds the operational knobs layered under the required
// --host/--port flags via pkg/config (cleanenv + validator).
type ambientConfig struct {
	DB        string `env:"BROKER_DB" env-default:"broker.db"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"LOG_FORMAT" env-default:"TEXT"`
}

func main() {
	os.Exit(run())
}

func run() int {
	host := flag.String("host", "", "host IP address of this broker")
	port := flag.Int("port", 0, "port number of this broker")
	flag.Parse()

	if *host == "" || *port == 0 {
		fmt.Fprintln(os.Stderr, "usage: broker --host <ip> --port <port>")
		return 2
	}

	var cfg ambientConfig
	if err := config.Load(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config load failed, using defaults:", err)
		cfg = ambientConfig{DB: "broker.db", LogLevel: "INFO", LogFormat: "TEXT"}
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	self := identity.BrokerID{Host: *host, Port: *port}

	peers, err := identity.LoadPeers(peerManifestPath, self)
	if err != nil {
		logger.L().Warn("failed to load peer manifest, starting with no peers", "path", peerManifestPath, "error", err)
	}

	store, err := openStore(cfg.DB)
	if err != nil {
		logger.L().Error("failed to open durable store", "error", err)
		return 1
	}

	b := broker.New(self, peers, store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- b.Serve(ctx)
	}()

	// Trigger leader election on deployment, mirroring the broker's
	// startup behavior of immediately contending for coordinator.
	go b.TriggerElection(ctx)

	select {
	case <-ctx.Done():
		logger.L().Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			logger.L().Error("listener failed", "error", err)
			b.Close()
			return 1
		}
	}

	if err := b.Close(); err != nil {
		logger.L().Error("error during shutdown", "error", err)
		return 1
	}
	return 0
}

func openStore(dsn string) (kvstore.Store, error) {
	if dsn == "memory" {
		return memkv.New(), nil
	}
	return sqlitekv.New(dsn)
}
