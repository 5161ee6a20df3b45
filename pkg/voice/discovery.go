package voice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	discoveryPacketSize = 74
	discoveryRequest    = 0x1
	discoveryResponse   = 0x2
	discoveryTimeout    = 5 * time.Second
)

// deadliner is implemented by transports that support read deadlines.
type deadliner interface {
	SetReadDeadline(time.Time) error
}

// discoverIP performs UDP IP discovery: it asks the media server which
// external address and port our datagrams arrive from.
func discoverIP(media DatagramTransport, ssrc uint32) (string, uint16, error) {
	req := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint16(req[0:2], discoveryRequest)
	binary.BigEndian.PutUint16(req[2:4], discoveryPacketSize-4)
	binary.BigEndian.PutUint32(req[4:8], ssrc)
	if err := media.WriteDatagram(req); err != nil {
		return "", 0, fmt.Errorf("voice: ip discovery send: %w", err)
	}

	if d, ok := media.(deadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(discoveryTimeout))
		defer func() { _ = d.SetReadDeadline(time.Time{}) }()
	}

	resp := make([]byte, 1500)
	for {
		n, err := media.ReadDatagram(resp)
		if err != nil {
			return "", 0, fmt.Errorf("voice: ip discovery receive: %w", err)
		}
		if n < discoveryPacketSize || binary.BigEndian.Uint16(resp[0:2]) != discoveryResponse {
			// Not a discovery reply; stray media may already be arriving.
			continue
		}
		return parseDiscoveryResponse(resp[:n])
	}
}

// parseDiscoveryResponse extracts the NUL-terminated address and the
// trailing big-endian port.
func parseDiscoveryResponse(b []byte) (string, uint16, error) {
	if len(b) < discoveryPacketSize {
		return "", 0, fmt.Errorf("voice: ip discovery response too short: %d bytes", len(b))
	}
	addr := b[8 : discoveryPacketSize-2]
	if i := bytes.IndexByte(addr, 0); i >= 0 {
		addr = addr[:i]
	}
	if len(addr) == 0 {
		return "", 0, fmt.Errorf("voice: ip discovery response has empty address")
	}
	port := binary.BigEndian.Uint16(b[discoveryPacketSize-2 : discoveryPacketSize])
	return string(addr), port, nil
}
