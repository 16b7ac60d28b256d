// Package identity defines a broker's (host, port) identity and the
// peer-set loader for the CSV manifest described in spec.md §6.
package identity

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chris-alexander-pop/lamport-broker/pkg/errors"
)

// BrokerID is the (host, port) pair that uniquely identifies a broker
// and determines its election priority.
type BrokerID struct {
	Host string
	Port int
}

func (b BrokerID) String() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// Equal reports whether two identities name the same broker.
func (b BrokerID) Equal(other BrokerID) bool {
	return b.Host == other.Host && b.Port == other.Port
}

// Less reports whether b has strictly lower election priority than
// other: the ordered pair (host, port) compares lexicographically,
// host first.
func (b BrokerID) Less(other BrokerID) bool {
	if b.Host != other.Host {
		return b.Host < other.Host
	}
	return b.Port < other.Port
}

// Greater reports whether b has strictly higher election priority than other.
func (b BrokerID) Greater(other BrokerID) bool {
	return other.Less(b)
}

// LoadPeers reads the CSV peer manifest: a header line (ignored)
// followed by "ip,port" rows. The broker's own identity is excluded
// from the returned set.
func LoadPeers(path string, self BrokerID) ([]BrokerID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open peer manifest "+path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	// Skip the header line.
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read peer manifest header")
	}

	var peers []BrokerID
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read peer manifest row")
		}
		if len(record) < 2 {
			continue
		}
		host := strings.TrimSpace(record[0])
		port, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, errors.InvalidArgument("invalid port in peer manifest row", err)
		}
		peer := BrokerID{Host: host, Port: port}
		if peer.Equal(self) {
			continue
		}
		peers = append(peers, peer)
	}
	return peers, nil
}

// HigherPriority returns the subset of peers with strictly higher
// election priority than self.
func HigherPriority(self BrokerID, peers []BrokerID) []BrokerID {
	var out []BrokerID
	for _, p := range peers {
		if p.Greater(self) {
			out = append(out, p)
		}
	}
	return out
}
