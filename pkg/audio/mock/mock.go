// Package mock provides in-memory implementations of the [audio.Encoder] and
// [audio.Decoder] capability interfaces for use in unit tests.
//
// The fakes use a trivial "codec" that keeps tests readable: a frame produced
// by [Encoder] is the little-endian first sample of the PCM block, and
// [Decoder] expands such a frame back into a full packet of that constant
// sample. Tests therefore identify audio sources by sample value.
//
// Typical usage:
//
//	enc := &mock.Encoder{}
//	frame, _ := enc.Encode(pcm)
//	if enc.Calls() != 1 { ... }
package mock

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Encoder = (*Encoder)(nil)
	_ audio.Decoder = (*Decoder)(nil)
)

// ErrShortFrame is returned by [Decoder.Decode] for frames shorter than two
// bytes.
var ErrShortFrame = errors.New("mock: frame too short")

// ─── Encoder ──────────────────────────────────────────────────────────────────

// Encoder is a fake [audio.Encoder]. Set Err to make every call fail.
type Encoder struct {
	mu    sync.Mutex
	Err   error
	calls int
}

// Encode returns the first sample of pcm as two little-endian bytes.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([]byte, 2)
	if len(pcm) > 0 {
		binary.LittleEndian.PutUint16(out, uint16(pcm[0]))
	}
	return out, nil
}

// Calls returns how many times Encode was called.
func (e *Encoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

// Decoder is a fake [audio.Decoder].
type Decoder struct {
	mu    sync.Mutex
	calls int
}

// Decode returns a full packet of interleaved samples, each equal to the
// little-endian value in the first two bytes of frame.
func (d *Decoder) Decode(frame []byte) ([]int16, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if len(frame) < 2 {
		return nil, ErrShortFrame
	}
	v := int16(binary.LittleEndian.Uint16(frame))
	pcm := make([]int16, audio.SamplesPerFrame*audio.Channels)
	for i := range pcm {
		pcm[i] = v
	}
	return pcm, nil
}

// Calls returns how many times Decode was called.
func (d *Decoder) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Factory returns an [audio.DecoderFactory] producing fresh fake decoders.
func Factory() audio.DecoderFactory {
	return func() (audio.Decoder, error) { return &Decoder{}, nil }
}

// Frame builds an encoded frame that [Decoder] expands to constant v.
func Frame(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// PCM returns one packet of interleaved samples all equal to v, encoded as
// s16le bytes.
func PCM(v int16) []byte {
	pcm := make([]int16, audio.SamplesPerFrame*audio.Channels)
	for i := range pcm {
		pcm[i] = v
	}
	return audio.Int16sToBytes(pcm)
}
