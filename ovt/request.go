package ovt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.zsiec.dev/ovtpull/media"
)

// controlRequest is the JSON body shared by Describe, Play and Stop
// (spec §4.4): `{ "id": <n>, "url": <origin-URL> }`.
type controlRequest struct {
	ID  uint32 `json:"id"`
	URL string `json:"url"`
}

// controlResponse is the JSON envelope every control reply carries.
type controlResponse struct {
	ID      uint32 `json:"id"`
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// describeStreamJSON is the `stream` object inside a Describe response.
type describeStreamJSON struct {
	AppName    string            `json:"appName"`
	StreamName string            `json:"streamName"`
	Tracks     []json.RawMessage `json:"tracks"`
}

// describeResult is what a successful Describe exchange yields.
type describeResult struct {
	AppName    string
	StreamName string
	Tracks     []media.Track
}

// requestEngine serializes control requests as JSON inside OVT packets and
// correlates replies by request id (spec §4.4). Requests are strictly
// synchronous: one in flight at a time, enforced simply by the engine never
// issuing a second request before the first's response has been consumed.
type requestEngine struct {
	conn          *packetConn
	lastRequestID uint32
}

func newRequestEngine(conn *packetConn) *requestEngine {
	return &requestEngine{conn: conn}
}

// sendRequest marshals {id, url} and wraps it in a single-packet OVT
// message (marker=1, since control requests always fit in one packet).
func (e *requestEngine) sendRequest(payloadType PayloadType, sessionID uint32, url string) (uint32, error) {
	e.lastRequestID++
	id := e.lastRequestID

	body, err := json.Marshal(controlRequest{ID: id, URL: url})
	if err != nil {
		return id, fmt.Errorf("ovt: marshal request: %w", err)
	}

	p := &Packet{
		PayloadType: payloadType,
		SessionID:   sessionID,
		Marker:      true,
		Timestamp:   nowTimestamp(),
		Payload:     body,
	}

	if err := e.conn.send(p); err != nil {
		return id, err
	}
	return id, nil
}

// describe sends a Describe request and parses the reply into a
// describeResult, delegating track validation to parseTracks (spec §4.5).
func (e *requestEngine) describe(url string, timeout time.Duration) (*describeResult, error) {
	id, err := e.sendRequest(PayloadDescribe, 0, url)
	if err != nil {
		return nil, err
	}

	data, err := receiveMessage(e.conn, timeout)
	if err != nil {
		return nil, err
	}

	var resp struct {
		controlResponse
		Stream *describeStreamJSON `json:"stream"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidResponse, err)
	}
	if err := validateControlResponse(resp.controlResponse, id); err != nil {
		return nil, err
	}

	if resp.Stream == nil || resp.Stream.AppName == "" || resp.Stream.StreamName == "" || resp.Stream.Tracks == nil {
		return nil, fmt.Errorf("%w: missing stream object", ErrInvalidDescribe)
	}

	tracks, err := parseTracks(resp.Stream.Tracks)
	if err != nil {
		return nil, err
	}

	return &describeResult{
		AppName:    resp.Stream.AppName,
		StreamName: resp.Stream.StreamName,
		Tracks:     tracks,
	}, nil
}

// play sends a Play request and returns the session id taken from the
// OVT header of the reply's first packet, per spec §4.4 ("Play reply is
// taken from the first OVT packet of the reply ... because Play returns
// session_id in the OVT header itself").
func (e *requestEngine) play(url string, timeout time.Duration) (uint32, error) {
	id, err := e.sendRequest(PayloadPlay, 0, url)
	if err != nil {
		return 0, err
	}

	p, err := e.conn.recv(timeout)
	if err != nil {
		return 0, err
	}

	var resp controlResponse
	if err := json.Unmarshal(p.Payload, &resp); err != nil {
		return 0, fmt.Errorf("%w: not valid JSON: %v", ErrInvalidResponse, err)
	}
	if err := validateControlResponse(resp, id); err != nil {
		return 0, err
	}

	return p.SessionID, nil
}

// stop sends a Stop request and returns immediately; the response is
// observed later by the ingest worker's read loop (spec §4.4).
func (e *requestEngine) stop(sessionID uint32, url string) (uint32, error) {
	return e.sendRequest(PayloadStop, sessionID, url)
}

// validateStopResponse parses and validates a StopResponse packet payload
// already read by the worker's loop.
func validateStopResponse(payload []byte, requestID uint32) error {
	var resp controlResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("%w: not valid JSON: %v", ErrInvalidResponse, err)
	}
	return validateControlResponse(resp, requestID)
}

func validateControlResponse(resp controlResponse, wantID uint32) error {
	if resp.Message == "" {
		return fmt.Errorf("%w: missing message", ErrInvalidResponse)
	}
	if resp.ID != wantID {
		return fmt.Errorf("%w: id %d, want %d", ErrInvalidResponse, resp.ID, wantID)
	}
	if resp.Code != 200 {
		return newServerFailure(resp.Code, resp.Message)
	}
	return nil
}
