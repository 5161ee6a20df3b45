// Package ringbuf provides fixed-memory circular buffers for real-time audio.
//
// Both buffers favour bounded staleness over unbounded growth: when a writer
// outruns the reader, the oldest unread data is discarded rather than the
// writer blocking or memory growing. Reads never block either; a reader that
// asks for more than is buffered gets nothing and is expected to substitute
// silence.
package ringbuf

import "sync"

const (
	// DefaultSegments is the segment count used by [New] when given <= 0.
	DefaultSegments = 4

	// DefaultSegmentSize is the segment capacity used by [New] when given <= 0.
	DefaultSegmentSize = 16 * 1024
)

// Buffer is a byte ring made of a fixed number of fixed-capacity segments
// with independent read and write cursors. All segment memory is allocated
// up front.
//
// Writes larger than one segment spill into consecutive segments. When the
// writer needs a fresh segment and all of them hold unread data, the oldest
// segment is dropped in its entirety.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	segs    [][]byte
	fill    []int // bytes written into each segment
	head    int   // segment being read
	readOff int   // read offset inside head
	tail    int   // segment being written
	used    int   // segments holding unread data
	size    int   // unread bytes
	dropped uint64
}

// New allocates a buffer of segments × segSize bytes.
func New(segments, segSize int) *Buffer {
	if segments <= 0 {
		segments = DefaultSegments
	}
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}
	b := &Buffer{
		segs: make([][]byte, segments),
		fill: make([]int, segments),
	}
	for i := range b.segs {
		b.segs[i] = make([]byte, segSize)
	}
	return b
}

// Write appends p. It never blocks and never allocates; if p does not fit,
// the oldest unread segments are discarded to make room.
func (b *Buffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.segs)
	segSize := len(b.segs[0])
	for len(p) > 0 {
		if b.used == 0 {
			b.tail = b.head
			b.fill[b.tail] = 0
			b.readOff = 0
			b.used = 1
		}
		if b.fill[b.tail] == segSize {
			if b.used == n {
				b.dropHead()
			}
			b.tail = (b.tail + 1) % n
			b.fill[b.tail] = 0
			b.used++
			if b.used == 1 {
				b.head = b.tail
			}
			continue
		}
		c := copy(b.segs[b.tail][b.fill[b.tail]:], p)
		b.fill[b.tail] += c
		b.size += c
		p = p[c:]
	}
}

// dropHead discards the oldest segment. Caller holds mu.
func (b *Buffer) dropHead() {
	b.size -= b.fill[b.head] - b.readOff
	b.fill[b.head] = 0
	b.readOff = 0
	b.head = (b.head + 1) % len(b.segs)
	b.used--
	b.dropped++
}

// Read fills p completely from the oldest unread data and returns true, or
// returns false without consuming anything when fewer than len(p) bytes are
// buffered.
func (b *Buffer) Read(p []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size < len(p) {
		return false
	}
	n := len(b.segs)
	for len(p) > 0 {
		c := copy(p, b.segs[b.head][b.readOff:b.fill[b.head]])
		b.readOff += c
		b.size -= c
		p = p[c:]
		if b.readOff < b.fill[b.head] {
			continue
		}
		if b.head == b.tail {
			// Reader caught up with the writer.
			b.fill[b.head] = 0
			b.readOff = 0
			b.used = 0
			break
		}
		b.fill[b.head] = 0
		b.readOff = 0
		b.head = (b.head + 1) % n
		b.used--
	}
	return true
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the total capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.segs) * len(b.segs[0])
}

// Dropped returns how many segments were discarded on overflow.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Reset discards all unread data.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.fill)
	b.head, b.tail, b.readOff, b.used, b.size = 0, 0, 0, 0, 0
}
