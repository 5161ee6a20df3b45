package voice

import (
	"sync/atomic"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/ringbuf"
)

// encodedSlots bounds how many whole pre-encoded packets may wait, about one
// second of audio.
const encodedSlots = 50

// outbound turns queued frames into one payload per tick.
//
// Frames arrive on an unbounded queue from any goroutine. Only the tick
// driver calls next, which moves queued frames into the PCM ring or the
// encoded packet ring and picks the payload for this tick.
type outbound struct {
	queue   *audio.Queue[audio.AudioFrame]
	ring    *ringbuf.Buffer
	encoded *ringbuf.Packets
	enc     audio.Encoder
	gain    *audio.GainRamp

	silence atomic.Int32 // silence frames still owed after a resume

	pcm     []byte
	scratch []byte
}

func newOutbound(enc audio.Encoder, rampSamples int) *outbound {
	return &outbound{
		queue:   audio.NewQueue[audio.AudioFrame](),
		ring:    ringbuf.New(ringbuf.DefaultSegments, ringbuf.DefaultSegmentSize),
		encoded: ringbuf.NewPackets(encodedSlots),
		enc:     enc,
		gain:    audio.NewGainRamp(rampSamples),
		pcm:     make([]byte, audio.PCMFrameBytes),
	}
}

// push queues f for the tick driver.
func (o *outbound) push(f audio.AudioFrame) {
	o.queue.Push(f)
}

// flush discards everything buffered or queued.
func (o *outbound) flush() {
	o.queue.Clear()
	o.ring.Reset()
	o.encoded.Reset()
}

// pull moves queued frames into the buffers. A skip frame discards whatever
// was buffered before it.
func (o *outbound) pull() {
	for {
		f, ok := o.queue.Pop()
		if !ok {
			return
		}
		switch f.Type {
		case audio.FrameSkip:
			o.ring.Reset()
			o.encoded.Reset()
		case audio.FramePCM:
			o.ring.Write(audio.Normalize(f).Data)
		case audio.FrameEncoded:
			o.encoded.Push(f.Data)
		}
	}
}

// resume schedules n silence frames ahead of real audio and fades back in.
func (o *outbound) resume(n int) {
	o.silence.Store(int32(n))
	o.gain.SetTarget(1)
}

// fadeOut starts ramping the gain down.
func (o *outbound) fadeOut() {
	o.gain.SetTarget(0)
}

// next returns the payload to send this tick. ok is false when nothing
// should be sent. underrun is true when a silence packet stands in for
// missing audio.
func (o *outbound) next(state ActiveState) (payload []byte, underrun, ok bool, err error) {
	o.pull()

	switch state {
	case ActivePlaying:
		if o.silence.Load() > 0 {
			o.silence.Add(-1)
			return audio.SilenceFrame, false, true, nil
		}
		if pkt, found := o.encoded.Pop(o.scratch); found {
			o.scratch = pkt
			return pkt, false, true, nil
		}
		if !o.ring.Read(o.pcm) {
			return audio.SilenceFrame, true, true, nil
		}
		payload, err := o.encodePCM()
		return payload, false, err == nil, err

	case ActivePaused, ActiveStopped:
		// Let a fade-out finish on buffered audio, then go quiet.
		if o.gain.Settled() || !o.ring.Read(o.pcm) {
			return nil, false, false, nil
		}
		payload, err := o.encodePCM()
		return payload, false, err == nil, err
	}
	return nil, false, false, nil
}

func (o *outbound) encodePCM() ([]byte, error) {
	samples := audio.BytesToInt16s(o.pcm)
	o.gain.Apply(samples)
	return o.enc.Encode(samples)
}
