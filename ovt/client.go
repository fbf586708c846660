package ovt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.zsiec.dev/ovtpull/media"
)

// Client is the session orchestrator (spec §4.8, C8): it picks a URL,
// connects, runs the Describe/Play handshake, and spawns the ingest worker
// that owns the connection for the rest of the session's life.
type Client struct {
	cfg          Config
	router       MediaRouter
	metrics      StreamMetrics
	framer       AnnexBFramer
	streamHandle string

	state *sessionState

	mu        sync.Mutex
	urlIndex  int
	conn      *packetConn
	engine    *requestEngine
	sessionID uint32
	tracks    []media.Track
	curURL    string
	worker    *worker
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithMetrics attaches an optional telemetry sink.
func WithMetrics(m StreamMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithAnnexBFramer overrides the default Annex-B header fix-up hook.
func WithAnnexBFramer(f AnnexBFramer) Option {
	return func(c *Client) { c.framer = f }
}

// WithStreamHandle sets the handle passed to MediaRouter.SendFrame. If
// unset, the empty string is used.
func WithStreamHandle(handle string) Option {
	return func(c *Client) { c.streamHandle = handle }
}

// NewClient creates a Client for the given configuration and sink. router
// must not be nil; metrics and the Annex-B framer are optional.
func NewClient(cfg Config, router MediaRouter, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		router: router,
		framer: NewAnnexBFramer(),
		state:  newSessionState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current session state. Safe to call from any goroutine.
func (c *Client) State() State {
	return c.state.get()
}

// Tracks returns the tracks negotiated by the last successful Describe.
func (c *Client) Tracks() []media.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracks
}

// SessionID returns the session id assigned by the last successful Play.
func (c *Client) SessionID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start connects to the current origin URL, runs Describe then Play, and
// spawns the ingest worker on success (spec §4.8). It is legal only from
// Idle or Error; calling it again from Error advances to the next URL in
// the configured list ("URL failover ... permitted between Start attempts
// but not mid-session", spec §4.8).
func (c *Client) Start(ctx context.Context) error {
	cur := c.state.get()
	if cur != StateIdle && cur != StateError {
		return ErrInvalidState
	}

	if len(c.cfg.URLs) == 0 {
		err := ErrInvalidUrl
		c.state.forceError(err)
		return err
	}

	if cur == StateError {
		c.urlIndex++
		if c.urlIndex >= len(c.cfg.URLs) {
			return fmt.Errorf("%w: no more origin urls to try", ErrConnectFailed)
		}
	}

	rawURL := c.cfg.URLs[c.urlIndex]
	addr, err := ovtAddress(rawURL)
	if err != nil {
		c.state.forceError(err)
		return err
	}

	connectBegin := time.Now()
	conn, err := c.dial(ctx, addr)
	if err != nil {
		c.state.forceError(err)
		return err
	}
	connectElapsed := time.Since(connectBegin)

	pc := newPacketConn(conn, c.cfg.MaxPacketSize, c.metrics)
	if err := c.state.transition(StateConnected); err != nil {
		pc.close()
		return err
	}

	engine := newRequestEngine(pc)

	respBegin := time.Now()
	desc, err := engine.describe(rawURL, c.cfg.RecvTimeout)
	if err != nil {
		c.state.forceError(err)
		pc.close()
		return err
	}
	if err := c.state.transition(StateDescribed); err != nil {
		pc.close()
		return err
	}

	sessionID, err := engine.play(rawURL, c.cfg.RecvTimeout)
	if err != nil {
		c.state.forceError(err)
		pc.close()
		return err
	}
	if err := c.state.transition(StatePlaying); err != nil {
		pc.close()
		return err
	}
	respElapsed := time.Since(respBegin)

	if c.metrics != nil {
		c.metrics.SetOriginRequestTimeMSec(float64(connectElapsed.Milliseconds()))
		c.metrics.SetOriginResponseTimeMSec(float64(respElapsed.Milliseconds()))
	}

	w := newWorker(pc, c.state, sessionID, desc.Tracks, c.router, c.streamHandle, c.framer, c.cfg.MaxInFlightFrames, c.cfg.RecvTimeout)

	c.mu.Lock()
	c.conn = pc
	c.engine = engine
	c.sessionID = sessionID
	c.tracks = desc.Tracks
	c.curURL = rawURL
	c.worker = w
	c.mu.Unlock()

	go w.run()

	return nil
}

// Stop requests a graceful session end. It is only legal from Playing
// (spec §4.8); the response is observed by the worker's loop, which
// transitions to Stopped once the StopResponse is validated.
func (c *Client) Stop() error {
	if err := c.state.require(StatePlaying); err != nil {
		return err
	}
	if err := c.state.transition(StateStopping); err != nil {
		return err
	}

	c.mu.Lock()
	engine := c.engine
	sessionID := c.sessionID
	curURL := c.curURL
	w := c.worker
	c.mu.Unlock()

	requestID, err := engine.stop(sessionID, curURL)
	if err != nil {
		c.state.forceError(err)
		return err
	}
	w.armStop(requestID)
	return nil
}

// Wait blocks until the ingest worker has exited (gracefully or on error)
// or ctx is done, whichever comes first (spec §4.8: "Joins/awaits the
// worker with a bounded grace period").
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	w := c.worker
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	select {
	case <-w.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	return conn, nil
}

// ovtAddress validates the URL's scheme and returns its host:port. The
// scheme check accepts "ovt" case-insensitively; spec §9 flags the origin
// source's literal-"OVT" comparison as almost certainly inverted, so this
// implementation does the opposite on purpose.
func ovtAddress(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUrl, err)
	}
	if !strings.EqualFold(u.Scheme, "ovt") {
		return "", fmt.Errorf("%w: scheme %q, want ovt", ErrInvalidUrl, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidUrl)
	}
	return u.Host, nil
}
