package playback

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/opus"
)

// Container formats understood by [NewSource].
const (
	FormatDCA = "dca" // uint16 length-prefixed Opus packets
	FormatOgg = "ogg" // Ogg/Opus
	FormatPCM = "pcm" // raw s16le 48 kHz stereo
)

// ErrUnknownFormat is returned by [NewSource] for unsupported containers.
var ErrUnknownFormat = errors.New("playback: unknown audio format")

// FormatOf guesses the container from a file name.
func FormatOf(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".dca":
		return FormatDCA
	case ".ogg", ".oga", ".opus":
		return FormatOgg
	case ".pcm", ".raw":
		return FormatPCM
	}
	return ""
}

// NewSource wraps rc in the decoder for format. The source owns rc.
func NewSource(format string, rc io.ReadCloser) (Source, error) {
	switch format {
	case FormatDCA:
		return &encodedSource{r: opus.NewFrameReader(rc), c: rc}, nil
	case FormatOgg:
		return &encodedSource{r: opus.NewOggReader(rc), c: rc}, nil
	case FormatPCM:
		return &pcmSource{r: rc}, nil
	}
	_ = rc.Close()
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

type frameReader interface {
	ReadFrame() ([]byte, error)
}

// encodedSource passes Opus packets through untouched.
type encodedSource struct {
	r frameReader
	c io.Closer
}

func (s *encodedSource) Next() (audio.AudioFrame, error) {
	pkt, err := s.r.ReadFrame()
	if err != nil {
		return audio.AudioFrame{}, err
	}
	return audio.AudioFrame{Type: audio.FrameEncoded, Data: pkt}, nil
}

func (s *encodedSource) Close() error { return s.c.Close() }

// pcmSource cuts raw PCM into one-packet chunks. A short final chunk is
// padded with silence.
type pcmSource struct {
	r io.ReadCloser
}

func (s *pcmSource) Next() (audio.AudioFrame, error) {
	buf := make([]byte, audio.PCMFrameBytes)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(buf[n:])
	case err != nil:
		return audio.AudioFrame{}, err
	}
	return audio.AudioFrame{
		Type:       audio.FramePCM,
		Data:       buf,
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	}, nil
}

func (s *pcmSource) Close() error { return s.r.Close() }
