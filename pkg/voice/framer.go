package voice

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

const (
	// HeaderSize is the fixed RTP header length on the wire.
	HeaderSize = 12

	// PayloadType is the dynamic payload type used for Opus.
	PayloadType = 0x78

	// KeySize is the secretbox key length.
	KeySize = 32

	nonceSize = 24
)

// Framer stamps RTP headers onto encoded payloads and seals them. It holds
// the per-session RTP state: sequence and timestamp counters that only ever
// move forward (modulo wrap), the SSRC and the key.
//
// Counters advance only through [Framer.Advance], which the caller invokes
// after a datagram was actually sent.
//
// Framer is safe for concurrent use.
type Framer struct {
	mu     sync.Mutex
	header rtp.Header
	key    [KeySize]byte
	keyed  bool
}

// NewFramer returns a framer for ssrc with zeroed counters and no key.
func NewFramer(ssrc uint32) *Framer {
	return &Framer{
		header: rtp.Header{
			Version:     2,
			PayloadType: PayloadType,
			SSRC:        ssrc,
		},
	}
}

// SetKey installs the session key. Counters are untouched so a reconnect
// that renegotiates keys keeps the stream monotonic.
func (f *Framer) SetKey(key [KeySize]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
	f.keyed = true
}

// SetSSRC changes the SSRC stamped on future packets.
func (f *Framer) SetSSRC(ssrc uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.header.SSRC = ssrc
}

// SSRC returns the current SSRC.
func (f *Framer) SSRC() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.header.SSRC
}

// Counters returns the sequence number and timestamp the next packet will
// carry.
func (f *Framer) Counters() (seq uint16, ts uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.header.SequenceNumber, f.header.Timestamp
}

// Seal builds a datagram for payload with the current counters: the 12-byte
// header followed by the secretbox of payload, using the header bytes
// zero-padded to 24 as nonce. It does not advance the counters.
func (f *Framer) Seal(payload []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.keyed {
		return nil, ErrNotReady
	}
	out := make([]byte, HeaderSize, HeaderSize+len(payload)+secretbox.Overhead)
	if _, err := f.header.MarshalTo(out); err != nil {
		return nil, fmt.Errorf("voice: marshal rtp header: %w", err)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], out[:HeaderSize])
	return secretbox.Seal(out, payload, &nonce, &f.key), nil
}

// Advance moves the counters past one sent packet: sequence by 1 and
// timestamp by one packet's worth of samples, both wrapping.
func (f *Framer) Advance() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.header.SequenceNumber++
	f.header.Timestamp += audio.SamplesPerFrame
}

// Packet is an inbound datagram after header parsing and decryption.
type Packet struct {
	Header  rtp.Header
	Payload []byte
}

// isRTCP reports whether a datagram is an RTCP report (payload types 72-76
// once the marker bit is masked).
func isRTCP(b []byte) bool {
	pt := b[1] & 0x7F
	return pt >= 72 && pt <= 76
}

// Open parses and decrypts an inbound datagram. It returns ErrDecrypt when
// authentication fails; any other error means the datagram is not a voice
// packet at all. A header extension, if flagged, sits at the start of the
// decrypted payload and is stripped.
func Open(datagram []byte, key *[KeySize]byte) (Packet, error) {
	if len(datagram) < HeaderSize+secretbox.Overhead {
		return Packet{}, fmt.Errorf("voice: datagram too short: %d bytes", len(datagram))
	}
	if datagram[0]>>6 != 2 {
		return Packet{}, fmt.Errorf("voice: unsupported rtp version %d", datagram[0]>>6)
	}
	if isRTCP(datagram) {
		return Packet{}, fmt.Errorf("voice: rtcp packet type %d", datagram[1]&0x7F)
	}

	// Parse only the fixed part: extensions live inside the ciphertext.
	hdrBytes := make([]byte, HeaderSize)
	copy(hdrBytes, datagram[:HeaderSize])
	extended := hdrBytes[0]&0x10 != 0
	hdrBytes[0] &^= 0x1F // drop extension flag and CSRC count
	var pkt Packet
	if _, err := pkt.Header.Unmarshal(hdrBytes); err != nil {
		return Packet{}, fmt.Errorf("voice: parse rtp header: %w", err)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], datagram[:HeaderSize])
	payload, ok := secretbox.Open(nil, datagram[HeaderSize:], &nonce, key)
	if !ok {
		return Packet{}, ErrDecrypt
	}

	if extended && len(payload) >= 4 {
		extLen := int(binary.BigEndian.Uint16(payload[2:4]))
		shift := 4 + 4*extLen
		if shift > len(payload) {
			return Packet{}, fmt.Errorf("voice: header extension overruns payload")
		}
		payload = payload[shift:]
	}
	pkt.Payload = payload
	return pkt, nil
}
