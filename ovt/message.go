package ovt

import (
	"fmt"
	"time"
)

// receiveMessage reads packets until one with Marker set arrives,
// concatenating their payloads in arrival order (spec §4.2). It does not
// inspect payload content; callers interpret the returned bytes as JSON
// (control messages) or hand individual packets to the depacketizer
// (media messages never go through receiveMessage).
func receiveMessage(pc *packetConn, timeout time.Duration) ([]byte, error) {
	var data []byte
	var lastSeq uint16
	haveSeq := false

	for {
		p, err := pc.recv(timeout)
		if err != nil {
			return nil, err
		}

		if haveSeq && p.SequenceNumber < lastSeq {
			return nil, fmt.Errorf("%w: sequence went backwards (%d after %d)", ErrProtocolError, p.SequenceNumber, lastSeq)
		}
		lastSeq = p.SequenceNumber
		haveSeq = true

		data = append(data, p.Payload...)

		if p.Marker {
			break
		}
	}

	return data, nil
}
