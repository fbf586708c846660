package ovt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"go.zsiec.dev/ovtpull/media"
)

// fakeRouter records every frame handed to SendFrame.
type fakeRouter struct {
	mu     sync.Mutex
	frames []*media.Frame
}

func (r *fakeRouter) SendFrame(_ string, frame *media.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *fakeRouter) all() []*media.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*media.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// countingFramer records how many times PrependHeader was invoked.
type countingFramer struct {
	mu    sync.Mutex
	calls int
}

func (f *countingFramer) PrependHeader(frame *media.Frame) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	frame.Payload = append([]byte{0, 0, 0, 1}, frame.Payload...)
}

func (f *countingFramer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeOrigin is a minimal OVT origin for end-to-end client tests: it accepts
// one connection and lets the test script reads/writes directly against it.
type fakeOrigin struct {
	ln   net.Listener
	conn net.Conn
}

func newFakeOrigin(t *testing.T) *fakeOrigin {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	o := &fakeOrigin{ln: ln}
	t.Cleanup(func() {
		if o.conn != nil {
			o.conn.Close()
		}
		ln.Close()
	})
	return o
}

func (o *fakeOrigin) addr() string {
	return "ovt://" + o.ln.Addr().String() + "/app/stream"
}

func (o *fakeOrigin) accept(t *testing.T) net.Conn {
	t.Helper()
	conn, err := o.ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	o.conn = conn
	return conn
}

func readPacket(t *testing.T, conn net.Conn) *Packet {
	t.Helper()
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	p, payloadLen, err := decodeHeader(header, DefaultMaxPacketSize)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if payloadLen > 0 {
		p.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(conn, p.Payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	return p
}

func writePacket(t *testing.T, conn net.Conn, p *Packet) {
	t.Helper()
	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readControlRequest(t *testing.T, conn net.Conn) (*Packet, controlRequest) {
	t.Helper()
	p := readPacket(t, conn)
	var req controlRequest
	if err := json.Unmarshal(p.Payload, &req); err != nil {
		t.Fatalf("unmarshal control request: %v", err)
	}
	return p, req
}

func sendControlOK(t *testing.T, conn net.Conn, pt PayloadType, sessionID uint32, id uint32) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"id": id, "code": 200, "message": "ok"})
	writePacket(t, conn, &Packet{PayloadType: pt, Marker: true, SessionID: sessionID, Payload: body})
}

func describeStreamJSONBody(id uint32, video bool) []byte {
	track := map[string]any{
		"id": 1, "codecId": 1, "mediaType": 0,
		"timebase_num": 1, "timebase_den": 90000, "bitrate": 4000000,
		"startFrameTime": 0, "lastFrameTime": 0,
		"videoTrack": map[string]any{"framerate": 30.0, "width": 1920, "height": 1080},
	}
	tracks := []map[string]any{track}
	if !video {
		tracks = []map[string]any{{
			"id": 2, "codecId": 3, "mediaType": 1,
			"timebase_num": 1, "timebase_den": 48000, "bitrate": 128000,
			"startFrameTime": 0, "lastFrameTime": 0,
			"audioTrack": map[string]any{"samplerate": 48000, "sampleFormat": 1, "layout": 2},
		}}
	}
	body, _ := json.Marshal(map[string]any{
		"id": id, "code": 200, "message": "ok",
		"stream": map[string]any{"appName": "app", "streamName": "stream", "tracks": tracks},
	})
	return body
}

func makeMediaPayload(trackID uint32, chunk []byte) []byte {
	payload := make([]byte, 4+len(chunk))
	binary.BigEndian.PutUint32(payload[0:4], trackID)
	copy(payload[4:], chunk)
	return payload
}

func TestClientHappyPathStreamsOneFrameThenStops(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 2 * time.Second, ConnectTimeout: time.Second}
	client := NewClient(cfg, router)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn := origin.accept(t)

		_, dreq := readControlRequest(t, conn)
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: describeStreamJSONBody(dreq.ID, true)})

		_, preq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadPlayResponse, 0xCAFEBABE, preq.ID)

		for i, seq := range []uint16{0, 1, 2} {
			marker := i == 2
			writePacket(t, conn, &Packet{
				PayloadType: PayloadMediaPacket, SessionID: 0xCAFEBABE,
				SequenceNumber: seq, Timestamp: 1000, Marker: marker,
				Payload: makeMediaPayload(1, []byte{byte(i)}),
			})
		}

		_, sreq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadStopResponse, 0xCAFEBABE, sreq.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if client.State() != StatePlaying {
		t.Fatalf("state after Start = %v, want Playing", client.State())
	}
	if client.SessionID() != 0xCAFEBABE {
		t.Fatalf("session id = %#x, want 0xCAFEBABE", client.SessionID())
	}

	// Give the worker a moment to consume the three media packets before Stop.
	time.Sleep(100 * time.Millisecond)

	if err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := client.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if client.State() != StateStopped {
		t.Fatalf("final state = %v, want Stopped", client.State())
	}

	<-serverDone

	frames := router.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// Track 1 is H.264, so the default Annex-B framer prepends a start code.
	if string(frames[0].Payload) != "\x00\x00\x00\x01\x00\x01\x02" {
		t.Errorf("frame payload = %q, want %q", frames[0].Payload, "\x00\x00\x00\x01\x00\x01\x02")
	}
}

func TestClientDescribeServerFailureLeavesError(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 2 * time.Second, ConnectTimeout: time.Second}
	client := NewClient(cfg, router)

	go func() {
		conn := origin.accept(t)
		_, dreq := readControlRequest(t, conn)
		body, _ := json.Marshal(map[string]any{"id": dreq.ID, "code": 404, "message": "no such stream"})
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: body})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Start(ctx); err == nil {
		t.Fatal("expected Start to fail")
	}
	if client.State() != StateError {
		t.Fatalf("state = %v, want Error", client.State())
	}
	if client.worker != nil {
		t.Error("no worker should have been spawned")
	}
}

func TestClientDescribeIDMismatchIsError(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 2 * time.Second, ConnectTimeout: time.Second}
	client := NewClient(cfg, router)

	go func() {
		conn := origin.accept(t)
		readControlRequest(t, conn)
		body, _ := json.Marshal(map[string]any{"id": 999999, "code": 200, "message": "ok"})
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: body})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Start(ctx); err == nil {
		t.Fatal("expected Start to fail on id mismatch")
	}
	if client.State() != StateError {
		t.Fatalf("state = %v, want Error", client.State())
	}
}

func TestClientRecvTimeoutMidStreamForcesError(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 200 * time.Millisecond, ConnectTimeout: time.Second}
	client := NewClient(cfg, router)

	go func() {
		conn := origin.accept(t)
		_, dreq := readControlRequest(t, conn)
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: describeStreamJSONBody(dreq.ID, true)})
		_, preq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadPlayResponse, 0xCAFEBABE, preq.ID)
		// Deliberately go silent: the worker's next recv should time out.
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if err := client.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if client.State() != StateError {
		t.Fatalf("state = %v, want Error", client.State())
	}
}

func TestClientFragmentedFrameAcrossFivePackets(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 2 * time.Second, ConnectTimeout: time.Second}
	client := NewClient(cfg, router)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn := origin.accept(t)
		_, dreq := readControlRequest(t, conn)
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: describeStreamJSONBody(dreq.ID, true)})
		_, preq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadPlayResponse, 0xCAFEBABE, preq.ID)

		seqs := []uint16{10, 11, 12, 13, 14}
		chunks := [][]byte{[]byte("aa"), []byte("bb"), []byte("cc"), []byte("dd"), []byte("ee")}
		for i, seq := range seqs {
			writePacket(t, conn, &Packet{
				PayloadType: PayloadMediaPacket, SessionID: 0xCAFEBABE,
				SequenceNumber: seq, Timestamp: 500, Marker: i == len(seqs)-1,
				Payload: makeMediaPayload(1, chunks[i]),
			})
		}

		_, sreq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadStopResponse, 0xCAFEBABE, sreq.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := client.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	<-serverDone

	frames := router.all()
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// Reassembled in sequence order, then prefixed with the Annex-B start
	// code because track 1 is H.264.
	if string(frames[0].Payload) != "\x00\x00\x00\x01aabbccddee" {
		t.Errorf("payload = %q, want %q", frames[0].Payload, "\x00\x00\x00\x01aabbccddee")
	}
}

func TestClientAnnexBHookFiresOnlyForH264(t *testing.T) {
	origin := newFakeOrigin(t)
	router := &fakeRouter{}
	framer := &countingFramer{}
	cfg := Config{URLs: []string{origin.addr()}, RecvTimeout: 2 * time.Second, ConnectTimeout: time.Second}
	client := NewClient(cfg, router, WithAnnexBFramer(framer))

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn := origin.accept(t)
		_, dreq := readControlRequest(t, conn)

		body, _ := json.Marshal(map[string]any{
			"id": dreq.ID, "code": 200, "message": "ok",
			"stream": map[string]any{
				"appName": "app", "streamName": "stream",
				"tracks": []map[string]any{
					{
						"id": 1, "codecId": 1, "mediaType": 0,
						"timebase_num": 1, "timebase_den": 90000, "bitrate": 1,
						"startFrameTime": 0, "lastFrameTime": 0,
						"videoTrack": map[string]any{"framerate": 30.0, "width": 1, "height": 1},
					},
					{
						"id": 2, "codecId": 3, "mediaType": 1,
						"timebase_num": 1, "timebase_den": 48000, "bitrate": 1,
						"startFrameTime": 0, "lastFrameTime": 0,
						"audioTrack": map[string]any{"samplerate": 48000, "sampleFormat": 1, "layout": 2},
					},
				},
			},
		})
		writePacket(t, conn, &Packet{PayloadType: PayloadDescribeResponse, Marker: true, Payload: body})

		_, preq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadPlayResponse, 0xCAFEBABE, preq.ID)

		writePacket(t, conn, &Packet{
			PayloadType: PayloadMediaPacket, SessionID: 0xCAFEBABE,
			SequenceNumber: 0, Timestamp: 100, Marker: true,
			Payload: makeMediaPayload(1, []byte("video-frame")),
		})
		writePacket(t, conn, &Packet{
			PayloadType: PayloadMediaPacket, SessionID: 0xCAFEBABE,
			SequenceNumber: 1, Timestamp: 200, Marker: true,
			Payload: makeMediaPayload(2, []byte("audio-frame")),
		})

		_, sreq := readControlRequest(t, conn)
		sendControlOK(t, conn, PayloadStopResponse, 0xCAFEBABE, sreq.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := client.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	<-serverDone

	if framer.count() != 1 {
		t.Errorf("AnnexB hook fired %d times, want 1", framer.count())
	}
}
