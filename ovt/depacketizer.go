package ovt

import (
	"encoding/binary"
	"fmt"

	"go.zsiec.dev/ovtpull/media"
)

// DefaultMaxInFlightFrames bounds concurrent in-progress reassemblies
// (spec §4.6).
const DefaultMaxInFlightFrames = 64

// mediaFingerprint identifies one in-flight frame: (track_id, timestamp)
// within the depacketizer's fixed session (spec §3, "fingerprint for
// reassembly").
type mediaFingerprint struct {
	trackID   uint32
	timestamp uint64
}

type pendingFrame struct {
	fp       mediaFingerprint
	buf      []byte
	lastSeq  uint16
	haveSeq  bool
	seq      uint64 // insertion order, for oldest-drop under overflow
}

// Depacketizer reassembles fragmented OVT media packets into complete
// media.Frame values, keyed by (track_id, timestamp) (spec §4.6). It is
// only ever touched by the ingest worker goroutine, so it holds no lock of
// its own (mirrors internal/mpegts's packetPool, which is likewise
// single-owner).
type Depacketizer struct {
	sessionID   uint32
	maxInFlight int

	pending map[mediaFingerprint]*pendingFrame
	nextSeq uint64

	queue []*media.Frame

	overflowCount int
}

// NewDepacketizer creates a Depacketizer bound to sessionID. maxInFlight <=
// 0 uses DefaultMaxInFlightFrames.
func NewDepacketizer(sessionID uint32, maxInFlight int) *Depacketizer {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlightFrames
	}
	return &Depacketizer{
		sessionID:   sessionID,
		maxInFlight: maxInFlight,
		pending:     make(map[mediaFingerprint]*pendingFrame),
	}
}

// AppendPacket feeds one MediaPacket into the reassembler. It returns
// ErrProtocolError for a session id mismatch or an in-frame sequence
// regression; both are signaled to the worker as fatal per spec §4.6/§4.7.
// Overflow (too many concurrent in-flight frames) is handled internally by
// dropping the oldest pending frame — a policy, not a fatal error.
func (d *Depacketizer) AppendPacket(p *Packet) error {
	if p.SessionID != d.sessionID {
		return fmt.Errorf("%w: media packet session %d != %d", ErrProtocolError, p.SessionID, d.sessionID)
	}

	trackID, payload, err := decodeMediaPayload(p.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolError, err)
	}

	fp := mediaFingerprint{trackID: trackID, timestamp: p.Timestamp}
	pf, ok := d.pending[fp]
	if !ok {
		if len(d.pending) >= d.maxInFlight {
			d.dropOldest()
		}
		pf = &pendingFrame{fp: fp, seq: d.nextSeq}
		d.nextSeq++
		d.pending[fp] = pf
	}

	if pf.haveSeq && p.SequenceNumber < pf.lastSeq {
		delete(d.pending, fp)
		return fmt.Errorf("%w: media packet sequence went backwards (%d after %d)", ErrProtocolError, p.SequenceNumber, pf.lastSeq)
	}
	pf.lastSeq = p.SequenceNumber
	pf.haveSeq = true

	pf.buf = append(pf.buf, payload...)

	if p.Marker {
		delete(d.pending, fp)
		frame := &media.Frame{
			TrackID:  trackID,
			PTS:      p.Timestamp,
			DTS:      p.Timestamp,
			Duration: 0,
			Payload:  pf.buf,
		}
		d.queue = append(d.queue, frame)
	}

	return nil
}

// dropOldest evicts the pending frame with the smallest insertion sequence
// and counts it as a reassembly overflow (spec §4.6: "exceeding → drop
// oldest and signal ReassemblyOverflow (policy, not fatal)").
func (d *Depacketizer) dropOldest() {
	var oldestFP mediaFingerprint
	var oldestSeq uint64
	first := true
	for fp, pf := range d.pending {
		if first || pf.seq < oldestSeq {
			oldestFP, oldestSeq = fp, pf.seq
			first = false
		}
	}
	if !first {
		delete(d.pending, oldestFP)
		d.overflowCount++
	}
}

// OverflowCount returns how many pending frames have been dropped due to
// the in-flight limit, for diagnostics.
func (d *Depacketizer) OverflowCount() int {
	return d.overflowCount
}

// IsAvailableMediaFrame reports whether a completed frame is ready to pop.
func (d *Depacketizer) IsAvailableMediaFrame() bool {
	return len(d.queue) > 0
}

// PopMediaFrame removes and returns the oldest completed frame, or nil if
// none is available.
func (d *Depacketizer) PopMediaFrame() *media.Frame {
	if len(d.queue) == 0 {
		return nil
	}
	f := d.queue[0]
	d.queue = d.queue[1:]
	return f
}

// Discard drops all orphaned in-flight reassemblies, called when the
// session stops (spec §4.6: "orphan entries still open when session stops
// are discarded").
func (d *Depacketizer) Discard() {
	d.pending = make(map[mediaFingerprint]*pendingFrame)
}

// decodeMediaPayload splits a media packet's payload into its track id and
// media bytes. This implementation reserves the first 4 bytes of the
// payload for a big-endian track id (spec §6: "Media packets additionally
// encode track_id in a reserved header slot or at the start of payload").
func decodeMediaPayload(payload []byte) (uint32, []byte, error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("media payload too short for track id: %d bytes", len(payload))
	}
	trackID := binary.BigEndian.Uint32(payload[0:4])
	return trackID, payload[4:], nil
}
