package audio

import "encoding/binary"

// BytesToInt16s converts little-endian s16 PCM bytes to samples. A trailing
// odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return pcm
}

// Int16sToBytes converts samples to little-endian s16 PCM bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

// Clamp16 saturates v to the int16 range.
func Clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Normalize converts a PCM frame of any rate and channel count (mono or
// stereo) to 48 kHz stereo. Frames already in that format, and non-PCM
// frames, are returned unchanged.
func Normalize(f AudioFrame) AudioFrame {
	if f.Type != FramePCM {
		return f
	}
	rate, ch := f.SampleRate, f.Channels
	if rate == 0 {
		rate = SampleRate
	}
	if ch == 0 {
		ch = Channels
	}
	if rate == SampleRate && ch == Channels {
		return f
	}

	samples := BytesToInt16s(f.Data)
	if ch == 1 {
		stereo := make([]int16, len(samples)*2)
		for i, s := range samples {
			stereo[i*2], stereo[i*2+1] = s, s
		}
		samples = stereo
	}
	if rate != SampleRate {
		samples = resampleStereo(samples, rate, SampleRate)
	}

	f.Data = Int16sToBytes(samples)
	f.SampleRate = SampleRate
	f.Channels = Channels
	return f
}

// resampleStereo linearly interpolates interleaved stereo samples from
// srcRate to dstRate.
func resampleStereo(in []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return in
	}
	srcFrames := len(in) / 2
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]int16, dstFrames*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for c := range 2 {
			a := float64(in[idx*2+c])
			b := float64(in[next*2+c])
			out[i*2+c] = int16(a*(1-frac) + b*frac)
		}
	}
	return out
}
