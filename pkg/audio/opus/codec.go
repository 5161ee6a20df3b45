// Package opus provides the Opus implementations of the codec capability
// interfaces plus readers for the two on-disk formats tracks are stored in:
// concatenated length-prefixed frames and Ogg/Opus.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// maxPacketBytes caps a single encoded packet. Opus never exceeds 1275 bytes
// per frame; the extra headroom matches libopus' recommended buffer.
const maxPacketBytes = 4000

var (
	_ audio.Encoder = (*Encoder)(nil)
	_ audio.Decoder = (*Decoder)(nil)
)

// Encoder is a 48 kHz stereo Opus encoder tuned for music.
type Encoder struct {
	enc *gopus.Encoder
}

// NewEncoder creates an encoder. bitrate <= 0 keeps the libopus default.
func NewEncoder(bitrate int) (*Encoder, error) {
	enc, err := gopus.NewEncoder(audio.SampleRate, audio.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}
	return &Encoder{enc: enc}, nil
}

// Encode compresses one 20 ms block of interleaved stereo samples.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != audio.SamplesPerFrame*audio.Channels {
		return nil, fmt.Errorf("opus: encode: got %d samples, want %d", len(pcm), audio.SamplesPerFrame*audio.Channels)
	}
	out, err := e.enc.Encode(pcm, audio.SamplesPerFrame, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return out, nil
}

// Decoder decodes one remote speaker's stream. Decoders are stateful; use
// one per SSRC.
type Decoder struct {
	dec *gopus.Decoder
}

// NewDecoder creates a 48 kHz stereo decoder.
func NewDecoder() (*Decoder, error) {
	dec, err := gopus.NewDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{dec: dec}, nil
}

// Decode expands one Opus packet into interleaved stereo samples.
func (d *Decoder) Decode(frame []byte) ([]int16, error) {
	pcm, err := d.dec.Decode(frame, audio.SamplesPerFrame, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return pcm, nil
}

// DecoderFactory is an [audio.DecoderFactory] producing Opus decoders.
func DecoderFactory() (audio.Decoder, error) {
	return NewDecoder()
}
