package playback

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/jonas747/ogg"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/opus"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestFormatOf(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"song.dca":        FormatDCA,
		"song.OPUS":       FormatOgg,
		"dir/a.ogg":       FormatOgg,
		"a.oga":           FormatOgg,
		"raw.pcm":         FormatPCM,
		"raw.raw":         FormatPCM,
		"song.mp3":        "",
		"no-extension":    "",
		"bucket/key.ogg?": "",
	}
	for name, want := range tests {
		if got := FormatOf(name); got != want {
			t.Errorf("FormatOf(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestNewSource_DCA(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := opus.NewFrameWriter(&buf)
	for _, f := range [][]byte{{1, 2, 3}, {4}} {
		if err := w.WriteFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	rc := &closeRecorder{Reader: &buf}
	src, err := NewSource(FormatDCA, rc)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	for _, want := range []string{"\x01\x02\x03", "\x04"} {
		f, err := src.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if f.Type != audio.FrameEncoded || string(f.Data) != want {
			t.Errorf("frame = %v %x", f.Type, f.Data)
		}
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame err = %v, want io.EOF", err)
	}
	if err := src.Close(); err != nil || !rc.closed {
		t.Errorf("Close = %v, closed = %v", err, rc.closed)
	}
}

func TestNewSource_OpusFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	enc := ogg.NewEncoder(7, &buf)
	if err := enc.EncodeBOS(0, []byte("OpusHead")); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(0, []byte("OpusTags")); err != nil {
		t.Fatal(err)
	}
	if err := enc.Encode(960, []byte{0x42}); err != nil {
		t.Fatal(err)
	}
	if err := enc.EncodeEOS(); err != nil {
		t.Fatal(err)
	}

	src, err := NewSource(FormatOf("library/song.opus"), io.NopCloser(&buf))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	defer src.Close()

	f, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if f.Type != audio.FrameEncoded || !bytes.Equal(f.Data, []byte{0x42}) {
		t.Errorf("frame = %v %x, want encoded 42", f.Type, f.Data)
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame err = %v, want io.EOF", err)
	}
}

func TestNewSource_PCMPadsLastFrame(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte{0x11}, audio.PCMFrameBytes+10)
	src, err := NewSource(FormatPCM, io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}

	first, err := src.Next()
	if err != nil || first.Len() != audio.PCMFrameBytes || first.Type != audio.FramePCM {
		t.Fatalf("first = %v len %d, %v", first.Type, first.Len(), err)
	}
	last, err := src.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if last.Len() != audio.PCMFrameBytes {
		t.Errorf("padded frame len = %d", last.Len())
	}
	if last.Data[9] != 0x11 || last.Data[10] != 0 || last.Data[len(last.Data)-1] != 0 {
		t.Error("short frame not padded with silence")
	}
	if _, err := src.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}

func TestNewSource_UnknownFormat(t *testing.T) {
	t.Parallel()
	rc := &closeRecorder{Reader: bytes.NewReader(nil)}
	if _, err := NewSource("mp3", rc); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
	if !rc.closed {
		t.Error("reader not closed on unknown format")
	}
}
