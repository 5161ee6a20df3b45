// Package mixer combines decoded PCM from several speakers into one stream.
//
// Mixing is a saturating per-sample sum: samples are accumulated in int32 and
// clipped to the int16 range once at the end, so two loud speakers clip
// instead of wrapping around.
package mixer

import (
	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Mixer sums fixed-size PCM blocks. It reuses its accumulator between calls
// and is therefore not safe for concurrent use; each session's tick driver
// owns one.
type Mixer struct {
	frameSamples int
	acc          []int32
}

// New returns a mixer producing blocks of frameSamples interleaved samples.
// A value <= 0 selects one 20 ms stereo packet.
func New(frameSamples int) *Mixer {
	if frameSamples <= 0 {
		frameSamples = audio.SamplesPerFrame * audio.Channels
	}
	return &Mixer{
		frameSamples: frameSamples,
		acc:          make([]int32, frameSamples),
	}
}

// FrameSamples returns the block size in interleaved samples.
func (m *Mixer) FrameSamples() int { return m.frameSamples }

// Mix writes the saturating sum of sources into a fresh block and returns it.
// With no sources the result is silence of the full block length. Sources
// shorter than the block contribute silence for the missing tail; longer ones
// are truncated.
func (m *Mixer) Mix(sources ...[]int16) []int16 {
	out := make([]int16, m.frameSamples)
	m.MixInto(out, sources...)
	return out
}

// MixInto is like [Mixer.Mix] but writes into dst, which must hold at least
// FrameSamples samples.
func (m *Mixer) MixInto(dst []int16, sources ...[]int16) {
	clear(m.acc)
	for _, src := range sources {
		n := min(len(src), m.frameSamples)
		for i := range n {
			m.acc[i] += int32(src[i])
		}
	}
	for i, v := range m.acc {
		dst[i] = audio.Clamp16(v)
	}
}
