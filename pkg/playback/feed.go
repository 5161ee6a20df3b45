package playback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// feed is one track's connection to a sink. Once stop returns, the feed
// never pushes again, so a skip frame pushed afterwards is guaranteed to
// follow the last frame of the stopped track.
type feed struct {
	sink   Sink
	cancel context.CancelFunc
	paused atomic.Bool

	mu      sync.Mutex
	stopped bool
}

func newFeed(sink Sink, cancel context.CancelFunc) *feed {
	return &feed{sink: sink, cancel: cancel}
}

// push forwards frame unless the feed has been stopped.
func (f *feed) push(frame audio.AudioFrame) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return false
	}
	f.sink.Push(frame)
	return true
}

func (f *feed) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.cancel()
}

func (f *feed) setPaused(v bool) { f.paused.Store(v) }

func (f *feed) isPaused() bool { return f.paused.Load() }
