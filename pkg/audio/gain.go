package audio

import "sync"

// DefaultRampSamples is the length of a gain transition in samples per
// channel (5 ms at 48 kHz).
const DefaultRampSamples = 240

// GainRamp applies a linear gain transition to interleaved stereo PCM.
//
// The current and target gain persist between calls to [GainRamp.Apply], so
// a transition may span several packets. A GainRamp is safe for concurrent
// use: the playback side sets targets while the tick driver applies them.
type GainRamp struct {
	mu      sync.Mutex
	current float64
	target  float64
	step    float64 // absolute gain change per stereo sample pair
}

// NewGainRamp returns a ramp that starts at full gain and moves to a new
// target over window samples per channel. A window <= 0 uses
// [DefaultRampSamples].
func NewGainRamp(window int) *GainRamp {
	if window <= 0 {
		window = DefaultRampSamples
	}
	return &GainRamp{current: 1, target: 1, step: 1 / float64(window)}
}

// SetTarget starts a transition towards gain (clamped to [0, 1]).
func (g *GainRamp) SetTarget(gain float64) {
	gain = min(max(gain, 0), 1)
	g.mu.Lock()
	g.target = gain
	g.mu.Unlock()
}

// Reset jumps to gain immediately, without a transition.
func (g *GainRamp) Reset(gain float64) {
	gain = min(max(gain, 0), 1)
	g.mu.Lock()
	g.current, g.target = gain, gain
	g.mu.Unlock()
}

// Gain returns the current gain.
func (g *GainRamp) Gain() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Settled reports whether the ramp has reached its target.
func (g *GainRamp) Settled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current == g.target
}

// Apply scales pcm in place. Stereo pairs share a gain value so the
// transition does not skew the image.
func (g *GainRamp) Apply(pcm []int16) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == g.target {
		switch g.current {
		case 1:
			return
		case 0:
			clear(pcm)
			return
		}
	}

	for i := 0; i < len(pcm); i += Channels {
		switch {
		case g.current < g.target:
			g.current = min(g.current+g.step, g.target)
		case g.current > g.target:
			g.current = max(g.current-g.step, g.target)
		}
		for c := i; c < i+Channels && c < len(pcm); c++ {
			pcm[c] = Clamp16(int32(float64(pcm[c]) * g.current))
		}
	}
}
