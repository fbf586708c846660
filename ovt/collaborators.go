package ovt

import "go.zsiec.dev/ovtpull/media"

// MediaRouter is the downstream sink for depacketized frames. SendFrame is
// infallible from the client's perspective: routing failures are the
// router's concern, not the ingest worker's (spec §6, §1 — downstream
// routing is explicitly out of scope for this package).
type MediaRouter interface {
	SendFrame(streamHandle string, frame *media.Frame)
}

// StreamMetrics is an optional telemetry sink. A nil StreamMetrics is valid
// everywhere this interface is accepted; callers that don't care about
// metrics simply don't pass one.
type StreamMetrics interface {
	SetOriginRequestTimeMSec(ms float64)
	SetOriginResponseTimeMSec(ms float64)
	IncreaseBytesIn(n int64)
}

// AnnexBFramer applies Annex-B framing to an H.264 frame's payload before it
// reaches the sink; the default (NewAnnexBFramer) prepends a 4-byte start
// code and adds no SPS/PPS. Only H.264 tracks invoke this hook (spec §4.7,
// §6).
type AnnexBFramer interface {
	PrependHeader(frame *media.Frame)
}
