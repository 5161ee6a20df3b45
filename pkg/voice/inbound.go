package voice

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/mixer"
	"github.com/MrWong99/voxbridge/pkg/audio/ringbuf"
)

// speakerSlots is the per-speaker jitter depth in packets.
const speakerSlots = 16

// speaker is the jitter buffer of one remote SSRC. Payloads stay encoded
// until the mixer pulls them; the decoder is created on first use.
type speaker struct {
	ssrc     uint32
	packets  *ringbuf.Packets
	lastSeen atomic.Int64 // unix nanoseconds

	mu      sync.Mutex
	dec     audio.Decoder
	scratch []byte
}

func newSpeaker(ssrc uint32) *speaker {
	return &speaker{ssrc: ssrc, packets: ringbuf.NewPackets(speakerSlots)}
}

// pull decodes the oldest buffered packet. ok is false when the buffer is
// empty or the packet could not be decoded.
func (sp *speaker) pull(newDecoder audio.DecoderFactory) (pcm []int16, ok bool, err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	pkt, found := sp.packets.Pop(sp.scratch)
	if !found {
		return nil, false, nil
	}
	sp.scratch = pkt
	if sp.dec == nil {
		dec, err := newDecoder()
		if err != nil {
			return nil, false, err
		}
		sp.dec = dec
	}
	pcm, err = sp.dec.Decode(pkt)
	if err != nil {
		return nil, false, err
	}
	return pcm, true, nil
}

// inbound demultiplexes received payloads into speakers and mixes them.
type inbound struct {
	speakers   sync.Map // uint32 -> *speaker
	users      sync.Map // user id -> uint32
	newDecoder audio.DecoderFactory
	mixer      *mixer.Mixer
	avg        *mixer.MovingAverage

	sources [][]int16 // reused by mix; only the tick driver touches it
	elapsed time.Duration
}

func newInbound(newDecoder audio.DecoderFactory) *inbound {
	return &inbound{
		newDecoder: newDecoder,
		mixer:      mixer.New(0),
		avg:        mixer.NewMovingAverage(mixer.DefaultWindow),
	}
}

// receive buffers payload for ssrc. The first packets of a new speaker may
// race; LoadOrStore guarantees a single buffer and the loser's packet lands
// in the winner's buffer.
func (in *inbound) receive(ssrc uint32, payload []byte, now time.Time) {
	v, ok := in.speakers.Load(ssrc)
	if !ok {
		v, _ = in.speakers.LoadOrStore(ssrc, newSpeaker(ssrc))
	}
	sp := v.(*speaker)
	sp.packets.Push(payload)
	sp.lastSeen.Store(now.UnixNano())
}

// bindUser records which user sends on ssrc.
func (in *inbound) bindUser(userID string, ssrc uint32) {
	in.users.Store(userID, ssrc)
}

// removeUser releases the buffer of a user who left.
func (in *inbound) removeUser(userID string) (uint32, bool) {
	v, ok := in.users.LoadAndDelete(userID)
	if !ok {
		return 0, false
	}
	ssrc := v.(uint32)
	in.speakers.Delete(ssrc)
	return ssrc, true
}

// sweep drops speakers not heard from for longer than idle.
func (in *inbound) sweep(now time.Time, idle time.Duration) []uint32 {
	if idle <= 0 {
		return nil
	}
	var evicted []uint32
	cutoff := now.Add(-idle).UnixNano()
	in.speakers.Range(func(k, v any) bool {
		if v.(*speaker).lastSeen.Load() < cutoff {
			in.speakers.Delete(k)
			evicted = append(evicted, k.(uint32))
		}
		return true
	})
	if len(evicted) > 0 {
		in.users.Range(func(k, v any) bool {
			for _, ssrc := range evicted {
				if v.(uint32) == ssrc {
					in.users.Delete(k)
				}
			}
			return true
		})
	}
	return evicted
}

// len returns the number of live speaker buffers.
func (in *inbound) len() int {
	n := 0
	in.speakers.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// reset drops all speakers.
func (in *inbound) reset() {
	in.speakers.Clear()
	in.users.Clear()
}

// mix pulls one packet from every speaker that has one and sums them.
// Speakers without data contribute silence. ok is false when no speaker is
// known at all. decodeErrs counts packets dropped by the decoder.
func (in *inbound) mix() (frame audio.AudioFrame, active, decodeErrs int, ok bool) {
	in.sources = in.sources[:0]
	known := 0
	in.speakers.Range(func(_, v any) bool {
		known++
		pcm, got, err := v.(*speaker).pull(in.newDecoder)
		if err != nil {
			decodeErrs++
			return true
		}
		if got {
			in.sources = append(in.sources, pcm)
		}
		return true
	})
	active = len(in.sources)
	in.avg.Add(float64(active))

	ts := in.elapsed
	in.elapsed += audio.FrameDuration
	if known == 0 {
		return audio.AudioFrame{}, 0, decodeErrs, false
	}
	return audio.AudioFrame{
		Type:       audio.FramePCM,
		Data:       audio.Int16sToBytes(in.mixer.Mix(in.sources...)),
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		Timestamp:  ts,
	}, active, decodeErrs, true
}
