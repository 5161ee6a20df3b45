package audio

// Encoder compresses one packet of interleaved PCM samples
// ([SamplesPerFrame] per channel) into a single codec frame.
//
// Implementations are not required to be safe for concurrent use; each
// session owns its own encoder.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Decoder expands one codec frame into interleaved PCM samples.
//
// Decoders keep inter-frame state, so every remote speaker needs its own.
type Decoder interface {
	Decode(frame []byte) ([]int16, error)
}

// DecoderFactory creates a fresh [Decoder] for a newly seen speaker.
type DecoderFactory func() (Decoder, error)

// SilenceFrame is the Opus encoding of 20 ms of silence. It is sent after a
// resume so the remote decoder does not interpolate across the gap.
var SilenceFrame = []byte{0xF8, 0xFF, 0xFE}
