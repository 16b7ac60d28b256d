package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "globalState.csv")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadPeersSkipsHeaderAndSelf(t *testing.T) {
	path := writeManifest(t, "ip,port\n10.0.0.1,9000\n10.0.0.2,9001\n10.0.0.3,9002\n")
	self := BrokerID{Host: "10.0.0.2", Port: 9001}

	peers, err := LoadPeers(path, self)
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers excluding self, got %d: %+v", len(peers), peers)
	}
	for _, p := range peers {
		if p.Equal(self) {
			t.Fatalf("self %v should have been excluded from peer set", self)
		}
	}
}

func TestLoadPeersEmptyAfterHeader(t *testing.T) {
	path := writeManifest(t, "ip,port\n")
	peers, err := LoadPeers(path, BrokerID{Host: "127.0.0.1", Port: 9000})
	if err != nil {
		t.Fatalf("LoadPeers: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected no peers, got %+v", peers)
	}
}

func TestBrokerIDOrdering(t *testing.T) {
	low := BrokerID{Host: "10.0.0.1", Port: 9000}
	high := BrokerID{Host: "10.0.0.2", Port: 9000}

	if !low.Less(high) {
		t.Fatal("expected 10.0.0.1 < 10.0.0.2")
	}
	if !high.Greater(low) {
		t.Fatal("expected 10.0.0.2 > 10.0.0.1")
	}
	if low.Equal(high) {
		t.Fatal("distinct identities should not be equal")
	}
}

func TestHigherPriority(t *testing.T) {
	self := BrokerID{Host: "10.0.0.2", Port: 9000}
	peers := []BrokerID{
		{Host: "10.0.0.1", Port: 9000},
		{Host: "10.0.0.3", Port: 9000},
		{Host: "10.0.0.2", Port: 9001},
	}

	higher := HigherPriority(self, peers)
	if len(higher) != 2 {
		t.Fatalf("expected 2 higher-priority peers, got %+v", higher)
	}
}
