package mixer

import "sync"

// DefaultWindow is the sample window of a [MovingAverage] created with a
// non-positive size.
const DefaultWindow = 25

// MovingAverage is a simple moving average over the last N samples. It is
// used for observability only (e.g. active speaker count per tick).
type MovingAverage struct {
	mu     sync.Mutex
	window []float64
	next   int
	filled int
	sum    float64
}

// NewMovingAverage returns an averager over size samples.
func NewMovingAverage(size int) *MovingAverage {
	if size <= 0 {
		size = DefaultWindow
	}
	return &MovingAverage{window: make([]float64, size)}
}

// Add records v and returns the updated average.
func (a *MovingAverage) Add(v float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sum -= a.window[a.next]
	a.window[a.next] = v
	a.sum += v
	a.next = (a.next + 1) % len(a.window)
	if a.filled < len(a.window) {
		a.filled++
	}
	return a.sum / float64(a.filled)
}

// Value returns the current average, or 0 before the first sample.
func (a *MovingAverage) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.filled == 0 {
		return 0
	}
	return a.sum / float64(a.filled)
}
