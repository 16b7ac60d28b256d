// Package wire implements the broker's frame codec: UTF-8 JSON objects,
// one per TCP send, bounded to 64 KiB, as specified in spec.md §4.2/§6.
package wire

import (
	"io"
	"net"

	json "github.com/goccy/go-json"

	"github.com/chris-alexander-pop/lamport-broker/pkg/errors"
)

// FrameType enumerates the wire protocol's message kinds.
type FrameType string

const (
	TypePublish     FrameType = "publish"
	TypeSubscribe   FrameType = "subscribe"
	TypeGossip      FrameType = "gossip"
	TypeElection    FrameType = "election"
	TypeElectionAck FrameType = "election_ack"
	TypeCoordinator FrameType = "coordinator"
)

// MaxFrameSize is the design bound from spec.md §4.2: a single bounded
// read per frame, no reassembly.
const MaxFrameSize = 64 * 1024

// Sender carries a broker identity as the wire's [host, port] pair.
type Sender struct {
	Host string
	Port int
}

// MarshalJSON encodes Sender as the wire's two-element array form.
func (s Sender) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{s.Host, s.Port})
}

// UnmarshalJSON decodes the wire's [host, port] array form.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var pair [2]interface{}
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	host, _ := pair[0].(string)
	var port int
	switch p := pair[1].(type) {
	case float64:
		port = int(p)
	case int:
		port = p
	}
	s.Host = host
	s.Port = port
	return nil
}

// Frame is the union of every field used across the six frame types.
// Unused fields are omitted by the `omitempty` tags so each type's wire
// representation matches spec.md §6 exactly.
type Frame struct {
	Type             FrameType `json:"type"`
	Topic            string    `json:"topic,omitempty"`
	Message          string    `json:"message,omitempty"`
	LamportTimestamp uint64    `json:"lamport_timestamp,omitempty"`
	Sender           *Sender   `json:"sender,omitempty"`
	Ack              *bool     `json:"ack,omitempty"`
}

// Encode writes a single JSON frame to w.
func Encode(w io.Writer, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "failed to encode frame")
	}
	_, err = w.Write(data)
	if err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// ReadFrame performs the codec's single bounded read: one TCP receive,
// up to MaxFrameSize bytes, decoded as one JSON object. It does not
// buffer or reassemble partial frames, matching the lightweight
// control-plane usage described in spec.md §4.2.
func ReadFrame(conn net.Conn) (Frame, error) {
	buf := make([]byte, MaxFrameSize)
	n, err := conn.Read(buf)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(buf[:n], &f); err != nil {
		return Frame{}, errors.InvalidArgument("malformed frame", err)
	}
	return f, nil
}
