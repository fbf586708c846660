package ovt

import (
	"encoding/binary"
	"fmt"
)

// Packet is a single framed unit on the OVT wire: a fixed header followed
// by an opaque payload. All multi-byte header fields are big-endian (spec §6).
type Packet struct {
	Marker         bool
	PayloadType    PayloadType
	SequenceNumber uint16
	SessionID      uint32
	Timestamp      uint64
	Payload        []byte
}

// Encode serializes the packet into a header+payload byte buffer. It writes
// the payload_length header field from len(p.Payload); callers that want a timestamp other
// than a fixed value should set p.Timestamp before calling Encode (the
// caller is responsible for supplying a monotonic-ish clock reading, per
// spec §4.1).
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > DefaultMaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p.Payload))
	}

	buf := make([]byte, HeaderSize+len(p.Payload))

	b0 := byte(protocolVersion) & versionMask
	if p.Marker {
		b0 |= markerBit
	}
	buf[0] = b0
	buf[1] = byte(p.PayloadType)
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.SessionID)
	binary.BigEndian.PutUint64(buf[8:16], p.Timestamp)
	binary.BigEndian.PutUint32(buf[16:20], uint32(len(p.Payload)))
	copy(buf[HeaderSize:], p.Payload)

	return buf, nil
}

// decodeHeader parses exactly HeaderSize bytes into a Packet, leaving
// Payload nil — the caller reads the payload separately once it knows the
// payload length (the second return value). maxPacketSize bounds the payload_length field; a header
// claiming a larger payload is rejected before any payload bytes are read.
func decodeHeader(buf []byte, maxPacketSize int) (*Packet, uint32, error) {
	if len(buf) != HeaderSize {
		return nil, 0, fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidHeader, len(buf), HeaderSize)
	}

	version := buf[0] & versionMask
	if version != protocolVersion {
		return nil, 0, fmt.Errorf("%w: got version %d, want %d", ErrVersionMismatch, version, protocolVersion)
	}

	p := &Packet{
		Marker:         buf[0]&markerBit != 0,
		PayloadType:    PayloadType(buf[1]),
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		SessionID:      binary.BigEndian.Uint32(buf[4:8]),
		Timestamp:      binary.BigEndian.Uint64(buf[8:16]),
	}

	payloadLength := binary.BigEndian.Uint32(buf[16:20])
	if payloadLength > uint32(maxPacketSize) {
		return nil, 0, fmt.Errorf("%w: payload_length %d exceeds max %d", ErrInvalidHeader, payloadLength, maxPacketSize)
	}

	return p, payloadLength, nil
}
