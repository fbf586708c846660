// Package media defines the track and frame types that flow out of the OVT
// pull client, from Describe negotiation through depacketized delivery.
package media

// CodecID enumerates the codecs an OVT origin may describe a track with.
// Values mirror the origin's wire encoding (§4.5 of the protocol spec) and
// must not be renumbered.
type CodecID uint32

const (
	CodecUnknown CodecID = iota
	CodecH264
	CodecH265
	CodecAAC
	CodecOpus
	CodecVP8
	CodecVP9
)

func (c CodecID) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAAC:
		return "aac"
	case CodecOpus:
		return "opus"
	case CodecVP8:
		return "vp8"
	case CodecVP9:
		return "vp9"
	default:
		return "unknown"
	}
}

// Type identifies the kind of content a track carries.
type Type uint32

const (
	TypeVideo Type = iota
	TypeAudio
	TypeData
)

func (t Type) String() string {
	switch t {
	case TypeVideo:
		return "video"
	case TypeAudio:
		return "audio"
	case TypeData:
		return "data"
	default:
		return "unknown"
	}
}

// SampleFormat enumerates PCM sample encodings for audio tracks.
type SampleFormat int32

// ChannelLayout enumerates the speaker layouts an audio track may carry.
type ChannelLayout uint32

// VideoInfo holds the video-specific fields of a track description.
type VideoInfo struct {
	FrameRate float64
	Width     uint32
	Height    uint32
}

// AudioInfo holds the audio-specific fields of a track description.
type AudioInfo struct {
	SampleRate    uint32
	SampleFormat  SampleFormat
	ChannelLayout ChannelLayout
}

// Track describes one media stream within an OVT session, as negotiated by
// the Describe exchange. Video and Audio are only meaningful when Type is
// the matching value.
type Track struct {
	ID              uint32
	CodecID         CodecID
	Type            Type
	TimebaseNum     uint32
	TimebaseDen     uint32
	Bitrate         uint32
	StartFrameTime  uint64
	LastFrameTime   uint64
	Video           VideoInfo
	Audio           AudioInfo
}

// Frame flags.
const (
	FlagNone      uint32 = 0
	FlagKeyframe  uint32 = 1 << 0
)

// Frame is a complete, depacketized media access unit for one track, ready
// for handoff to the downstream sink. The depacketizer retains no reference
// to it once emitted.
type Frame struct {
	TrackID  uint32
	PTS      uint64
	DTS      uint64
	Duration uint64
	Flags    uint32
	Payload  []byte
}

// IsKeyframe reports whether the frame is flagged as a keyframe.
func (f *Frame) IsKeyframe() bool {
	return f.Flags&FlagKeyframe != 0
}
