package ovt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.zsiec.dev/ovtpull/media"
)

// parseTracks validates and converts the Describe reply's `tracks` array
// into media.Track records (spec §4.5). Any missing or wrong-typed field
// anywhere in the array rejects the entire Describe.
func parseTracks(raw []json.RawMessage) ([]media.Track, error) {
	seen := make(map[uint32]bool, len(raw))
	tracks := make([]media.Track, 0, len(raw))

	for i, r := range raw {
		var m map[string]json.Number
		fields, err := decodeTrackFields(r)
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		m = fields

		id, err := requireUint32(m, "id")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate track id %d", ErrInvalidDescribe, id)
		}

		codecID, err := requireUint32(m, "codecId")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		mediaType, err := requireUint32(m, "mediaType")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		tbNum, err := requireUint32(m, "timebase_num")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		tbDen, err := requireUint32(m, "timebase_den")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		if tbDen == 0 {
			return nil, fmt.Errorf("%w: track %d: timebase_den must not be zero", ErrInvalidDescribe, i)
		}
		bitrate, err := requireUint32(m, "bitrate")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		startFrameTime, err := requireUint64(m, "startFrameTime")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}
		lastFrameTime, err := requireUint64(m, "lastFrameTime")
		if err != nil {
			return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
		}

		track := media.Track{
			ID:             id,
			CodecID:        media.CodecID(codecID),
			Type:           media.Type(mediaType),
			TimebaseNum:    tbNum,
			TimebaseDen:    tbDen,
			Bitrate:        bitrate,
			StartFrameTime: startFrameTime,
			LastFrameTime:  lastFrameTime,
		}

		switch track.Type {
		case media.TypeVideo:
			video, err := parseVideoSubObject(r)
			if err != nil {
				return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
			}
			track.Video = video
		case media.TypeAudio:
			audio, err := parseAudioSubObject(r)
			if err != nil {
				return nil, fmt.Errorf("%w: track %d: %v", ErrInvalidDescribe, i, err)
			}
			track.Audio = audio
		}

		seen[id] = true
		tracks = append(tracks, track)
	}

	return tracks, nil
}

func decodeTrackFields(r json.RawMessage) (map[string]json.Number, error) {
	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(r))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	out := make(map[string]json.Number, len(raw))
	for k, v := range raw {
		var n json.Number
		nd := json.NewDecoder(bytes.NewReader(v))
		nd.UseNumber()
		if err := nd.Decode(&n); err != nil {
			continue // not a number; requireUint* will report it missing
		}
		out[k] = n
	}
	return out, nil
}

func requireUint32(m map[string]json.Number, key string) (uint32, error) {
	n, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing or non-numeric field %q", key)
	}
	v, err := n.Int64()
	if err != nil || v < 0 || v > int64(^uint32(0)) {
		return 0, fmt.Errorf("field %q is not a valid uint32", key)
	}
	return uint32(v), nil
}

func requireUint64(m map[string]json.Number, key string) (uint64, error) {
	n, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing or non-numeric field %q", key)
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, fmt.Errorf("field %q is not a valid uint64", key)
	}
	return uint64(v), nil
}

func parseVideoSubObject(trackJSON json.RawMessage) (media.VideoInfo, error) {
	var wrapper struct {
		VideoTrack *struct {
			FrameRate *float64 `json:"framerate"`
			Width     *uint32  `json:"width"`
			Height    *uint32  `json:"height"`
		} `json:"videoTrack"`
	}
	if err := json.Unmarshal(trackJSON, &wrapper); err != nil {
		return media.VideoInfo{}, fmt.Errorf("invalid videoTrack: %v", err)
	}
	v := wrapper.VideoTrack
	if v == nil {
		return media.VideoInfo{}, fmt.Errorf("missing videoTrack")
	}
	if v.FrameRate == nil || v.Width == nil || v.Height == nil {
		return media.VideoInfo{}, fmt.Errorf("videoTrack missing framerate, width or height")
	}
	return media.VideoInfo{
		FrameRate: *v.FrameRate,
		Width:     *v.Width,
		Height:    *v.Height,
	}, nil
}

func parseAudioSubObject(trackJSON json.RawMessage) (media.AudioInfo, error) {
	var wrapper struct {
		AudioTrack *struct {
			SampleRate   *uint32 `json:"samplerate"`
			SampleFormat *int32  `json:"sampleFormat"`
			Layout       *uint32 `json:"layout"`
		} `json:"audioTrack"`
	}
	if err := json.Unmarshal(trackJSON, &wrapper); err != nil {
		return media.AudioInfo{}, fmt.Errorf("invalid audioTrack: %v", err)
	}
	a := wrapper.AudioTrack
	if a == nil {
		return media.AudioInfo{}, fmt.Errorf("missing audioTrack")
	}
	if a.SampleRate == nil || a.SampleFormat == nil || a.Layout == nil {
		return media.AudioInfo{}, fmt.Errorf("audioTrack missing samplerate, sampleFormat or layout")
	}
	return media.AudioInfo{
		SampleRate:    *a.SampleRate,
		SampleFormat:  media.SampleFormat(*a.SampleFormat),
		ChannelLayout: media.ChannelLayout(*a.Layout),
	}, nil
}
