package audio

import "time"

// Discord voice carries 48 kHz stereo Opus in 20 ms packets.
const (
	SampleRate      = 48000
	Channels        = 2
	FrameDuration   = 20 * time.Millisecond
	SamplesPerFrame = SampleRate / 50 // 960 per channel in one 20 ms packet

	// PCMFrameBytes is the size of one packet's worth of s16le interleaved PCM:
	// 960 samples × 2 channels × 2 bytes.
	PCMFrameBytes = SamplesPerFrame * Channels * 2
)

// FrameType tags what an [AudioFrame] carries.
type FrameType int

const (
	// FrameSkip carries no audio. It tells the outbound pipeline to discard
	// everything it has buffered so the next frame starts clean.
	FrameSkip FrameType = iota

	// FramePCM is a chunk of raw s16le interleaved PCM of any length. The
	// outbound pipeline slices it into packet-sized pieces.
	FramePCM

	// FrameEncoded is exactly one pre-encoded Opus packet and is sent as is.
	FrameEncoded
)

// String returns the human-readable name of the frame type.
func (t FrameType) String() string {
	switch t {
	case FrameSkip:
		return "SKIP"
	case FramePCM:
		return "PCM"
	case FrameEncoded:
		return "ENCODED"
	default:
		return "UNKNOWN"
	}
}

// AudioFrame represents a single unit of audio flowing through the pipeline.
// The payload length is len(Data); cap(Data) is container capacity and is
// never interpreted as audio.
type AudioFrame struct {
	// Type tags the payload.
	Type FrameType

	// Data is PCM (s16le) or one Opus packet depending on Type.
	Data []byte

	// SampleRate in Hz. Zero means the pipeline default (48 kHz).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo. Zero means the pipeline default (2).
	Channels int

	// Timestamp marks the frame position relative to stream start.
	Timestamp time.Duration
}

// Len returns the payload length in bytes.
func (f AudioFrame) Len() int { return len(f.Data) }
