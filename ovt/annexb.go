package ovt

import "go.zsiec.dev/ovtpull/media"

// annexBStartCode is the 4-byte Annex-B NAL unit start code.
var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// defaultAnnexBFramer prepends an Annex-B start code to H.264 frame
// payloads that don't already carry one. OVT media packets carry raw NAL
// payloads (length-prefixed or bare, depending on the origin); this default
// only handles the bare case, which is the only one original_source's
// AvcVideoPacketFragmentizer collaborator is invoked for.
type defaultAnnexBFramer struct{}

// NewAnnexBFramer returns the default AnnexBFramer used when a Client is
// not configured with one explicitly.
func NewAnnexBFramer() AnnexBFramer {
	return defaultAnnexBFramer{}
}

func (defaultAnnexBFramer) PrependHeader(frame *media.Frame) {
	if hasAnnexBStartCode(frame.Payload) {
		return
	}
	out := make([]byte, 0, len(annexBStartCode)+len(frame.Payload))
	out = append(out, annexBStartCode...)
	out = append(out, frame.Payload...)
	frame.Payload = out
}

func hasAnnexBStartCode(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	return payload[0] == 0 && payload[1] == 0 && payload[2] == 0 && payload[3] == 1
}
