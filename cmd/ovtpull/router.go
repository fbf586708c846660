package main

import (
	"log/slog"

	"go.zsiec.dev/ovtpull/media"
)

// logRouter is a toy MediaRouter: it logs a summary of every frame instead
// of forwarding it anywhere. A real deployment would hand frames to its own
// distribution layer; that is explicitly out of scope for the ovt package
// itself (spec's narrow SendFrame boundary).
type logRouter struct {
	streamName string
}

func newLogRouter(streamName string) *logRouter {
	return &logRouter{streamName: streamName}
}

func (r *logRouter) SendFrame(streamHandle string, frame *media.Frame) {
	slog.Debug("frame received",
		"stream", r.streamName,
		"handle", streamHandle,
		"track", frame.TrackID,
		"pts", frame.PTS,
		"bytes", len(frame.Payload),
		"keyframe", frame.IsKeyframe(),
	)
}
