package ringbuf

import "sync"

// MaxPacketSize bounds a single packet stored in a [Packets] ring. Larger
// packets are truncated.
const MaxPacketSize = 1500

// Packets is a fixed-slot ring of variable-length packets, kept in arrival
// order. It is the per-speaker jitter store: payloads go in as they arrive,
// the mixer takes one per tick. When all slots are occupied the oldest packet
// is overwritten.
//
// All methods are safe for concurrent use.
type Packets struct {
	mu      sync.Mutex
	slots   [][]byte
	lens    []int
	head    int
	count   int
	dropped uint64
}

// NewPackets allocates a ring of n slots.
func NewPackets(n int) *Packets {
	if n <= 0 {
		n = 16
	}
	p := &Packets{
		slots: make([][]byte, n),
		lens:  make([]int, n),
	}
	for i := range p.slots {
		p.slots[i] = make([]byte, MaxPacketSize)
	}
	return p
}

// Push copies pkt into the ring.
func (p *Packets) Push(pkt []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.slots)
	if p.count == n {
		p.head = (p.head + 1) % n
		p.count--
		p.dropped++
	}
	i := (p.head + p.count) % n
	p.lens[i] = copy(p.slots[i], pkt)
	p.count++
}

// Pop copies the oldest packet into dst (grown as needed) and returns it.
// ok is false when the ring is empty.
func (p *Packets) Pop(dst []byte) (pkt []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count == 0 {
		return dst[:0], false
	}
	slot := p.slots[p.head][:p.lens[p.head]]
	pkt = append(dst[:0], slot...)
	p.head = (p.head + 1) % len(p.slots)
	p.count--
	return pkt, true
}

// Len returns the number of buffered packets.
func (p *Packets) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Dropped returns how many packets were overwritten before being read.
func (p *Packets) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Reset discards all buffered packets.
func (p *Packets) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.head, p.count = 0, 0
}
