package ovt

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.zsiec.dev/ovtpull/media"
)

// worker owns the connection after Play succeeds (spec §4.7). It runs on
// its own goroutine, classifying every received packet and either feeding
// it to the depacketizer or recognizing the StopResponse that ends the
// session gracefully.
type worker struct {
	conn          *packetConn
	state         *sessionState
	depacketizer  *Depacketizer
	router        MediaRouter
	streamHandle  string
	tracks        map[uint32]media.Track
	annexBFramer  AnnexBFramer
	sessionID     uint32
	recvTimeout   time.Duration

	stopRequestID atomic.Uint32 // 0 means "no Stop request outstanding"

	done chan struct{}
}

func newWorker(conn *packetConn, state *sessionState, sessionID uint32, tracks []media.Track, router MediaRouter, streamHandle string, framer AnnexBFramer, maxInFlight int, recvTimeout time.Duration) *worker {
	byID := make(map[uint32]media.Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}
	return &worker{
		conn:         conn,
		state:        state,
		depacketizer: NewDepacketizer(sessionID, maxInFlight),
		router:       router,
		streamHandle: streamHandle,
		tracks:       byID,
		annexBFramer: framer,
		sessionID:    sessionID,
		recvTimeout:  recvTimeout,
		done:         make(chan struct{}),
	}
}

// armStop records the request id of an in-flight Stop so the loop can
// recognize and validate the matching StopResponse when it arrives.
func (w *worker) armStop(requestID uint32) {
	w.stopRequestID.Store(requestID)
}

// Done is closed once the worker's loop has exited, for callers awaiting
// graceful teardown (spec §5, "Joins/awaits the worker with a bounded
// grace period").
func (w *worker) Done() <-chan struct{} {
	return w.done
}

// run is the worker's read loop (spec §4.7). It returns nil on a graceful
// Stop, or the error that forced the session into State Error.
func (w *worker) run() error {
	defer w.conn.close()
	defer close(w.done)
	defer w.depacketizer.Discard()

	for {
		p, err := w.conn.recv(w.recvTimeout)
		if err != nil {
			w.state.forceError(err)
			return err
		}

		switch p.PayloadType {
		case PayloadStopResponse:
			return w.handleStopResponse(p)

		case PayloadMediaPacket:
			if err := w.handleMediaPacket(p); err != nil {
				w.state.forceError(err)
				return err
			}

		default:
			err := fmt.Errorf("%w: unexpected payload type %s during streaming", ErrProtocolError, p.PayloadType)
			w.state.forceError(err)
			return err
		}
	}
}

func (w *worker) handleStopResponse(p *Packet) error {
	requestID := w.stopRequestID.Load()
	if requestID == 0 {
		err := fmt.Errorf("%w: unsolicited StopResponse", ErrProtocolError)
		w.state.forceError(err)
		return err
	}
	if err := validateStopResponse(p.Payload, requestID); err != nil {
		w.state.forceError(err)
		return err
	}
	if err := w.state.transition(StateStopped); err != nil {
		w.state.forceError(err)
		return err
	}
	return nil
}

func (w *worker) handleMediaPacket(p *Packet) error {
	if p.SessionID != w.sessionID {
		return fmt.Errorf("%w: media packet session %d != %d", ErrProtocolError, p.SessionID, w.sessionID)
	}

	if err := w.depacketizer.AppendPacket(p); err != nil {
		return err
	}

	for w.depacketizer.IsAvailableMediaFrame() {
		frame := w.depacketizer.PopMediaFrame()
		w.dispatch(frame)
	}
	return nil
}

func (w *worker) dispatch(frame *media.Frame) {
	if track, ok := w.tracks[frame.TrackID]; ok && track.CodecID == media.CodecH264 && w.annexBFramer != nil {
		w.annexBFramer.PrependHeader(frame)
	}
	w.router.SendFrame(w.streamHandle, frame)
}
