package opus

import (
	"errors"
	"io"

	"github.com/jonas747/ogg"
)

// oggHeaderPackets is the number of leading metadata packets in an Ogg/Opus
// stream (OpusHead and OpusTags).
const oggHeaderPackets = 2

// OggReader yields the raw Opus packets of an Ogg/Opus stream, skipping the
// header packets.
type OggReader struct {
	dec  *ogg.PacketDecoder
	skip int
}

// NewOggReader returns a reader over the Ogg stream in r.
func NewOggReader(r io.Reader) *OggReader {
	return &OggReader{
		dec:  ogg.NewPacketDecoder(ogg.NewDecoder(r)),
		skip: oggHeaderPackets,
	}
}

// ReadFrame returns the next Opus packet. Empty packets, such as the one
// carried by a bare end-of-stream page, are skipped. A truncated stream is
// reported as io.EOF.
func (o *OggReader) ReadFrame() ([]byte, error) {
	for {
		packet, _, err := o.dec.Decode()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, io.EOF
			}
			return nil, err
		}
		if len(packet) == 0 {
			continue
		}
		if o.skip > 0 {
			o.skip--
			continue
		}
		return packet, nil
	}
}
