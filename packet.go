package lorafhss

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Kind tells the receiver how a packet must be handled.
type Kind uint16

const (
	// Request packets must be acknowledged by the addressed node.
	Request Kind = 0
	// Acknowledge packets answer a Request and carry its packet ID.
	Acknowledge Kind = 1
	// Broadcast packets are delivered to every listener and never answered.
	Broadcast Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Request:
		return "request"
	case Acknowledge:
		return "acknowledge"
	case Broadcast:
		return "broadcast"
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// Valid reports whether k is one of the known packet kinds.
func (k Kind) Valid() bool {
	return k <= Broadcast
}

const (
	// HeaderSize is the on-air size of a Header.
	HeaderSize = 8
	// MaxPayloadSize keeps header and payload within the 256 byte FIFO with margin.
	MaxPayloadSize = 240
	// MaxFrameSize is the largest frame Encode produces.
	MaxFrameSize = HeaderSize + MaxPayloadSize
)

// Header is the fixed-size prefix of every packet.
// Fields are transmitted in declaration order, little-endian.
type Header struct {
	Source      uint16
	Destination uint16
	// PacketID correlates a Request with its Acknowledge. Zero means no outstanding request.
	PacketID uint16
	Kind     Kind
}

// Encode frames a header and payload for transmission.
func Encode(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes, limit is %d", len(payload), MaxPayloadSize)
	}
	frame := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], h.Source)
	binary.LittleEndian.PutUint16(frame[2:4], h.Destination)
	binary.LittleEndian.PutUint16(frame[4:6], h.PacketID)
	binary.LittleEndian.PutUint16(frame[6:8], uint16(h.Kind))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Decode splits a received frame into its header and payload.
// Only the length is checked; header values are returned as received.
// The payload does not alias frame.
func Decode(frame []byte) (h Header, payload []byte, err error) {
	if len(frame) < HeaderSize {
		return Header{}, nil, errors.Wrapf(ErrMalformedPacket, "%d bytes is shorter than the %d byte header", len(frame), HeaderSize)
	}
	h = Header{
		Source:      binary.LittleEndian.Uint16(frame[0:2]),
		Destination: binary.LittleEndian.Uint16(frame[2:4]),
		PacketID:    binary.LittleEndian.Uint16(frame[4:6]),
		Kind:        Kind(binary.LittleEndian.Uint16(frame[6:8])),
	}
	payload = make([]byte, len(frame)-HeaderSize)
	copy(payload, frame[HeaderSize:])
	return h, payload, nil
}
