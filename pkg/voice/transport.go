package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/coder/websocket"
)

// MessageTransport is the control channel: ordered, message-oriented.
type MessageTransport interface {
	// ReadMessage blocks until a message arrives or ctx is done.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage sends one message. Implementations must allow concurrent
	// calls.
	WriteMessage(ctx context.Context, b []byte) error

	Close() error
}

// DatagramTransport is the media channel: unreliable and unordered.
type DatagramTransport interface {
	// ReadDatagram reads one datagram into p. It returns an error once the
	// transport is closed.
	ReadDatagram(p []byte) (int, error)

	// WriteDatagram sends one datagram.
	WriteDatagram(p []byte) error

	Close() error
}

// ControlDialer opens a control channel to url.
type ControlDialer func(ctx context.Context, url string) (MessageTransport, error)

// MediaDialer opens a media channel to addr (host:port).
type MediaDialer func(ctx context.Context, addr string) (DatagramTransport, error)

// ─── WebSocket control channel ────────────────────────────────────────────────

// controlReadLimit bounds a single control message.
const controlReadLimit = 1 << 20

var _ MessageTransport = (*WebsocketTransport)(nil)

// WebsocketTransport is a [MessageTransport] over a coder/websocket
// connection.
type WebsocketTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an established connection.
func NewWebsocketTransport(conn *websocket.Conn) *WebsocketTransport {
	conn.SetReadLimit(controlReadLimit)
	return &WebsocketTransport{conn: conn}
}

// DialWebsocket is the default [ControlDialer].
func DialWebsocket(ctx context.Context, url string) (MessageTransport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("voice: dial control %s: %w", url, err)
	}
	return NewWebsocketTransport(conn), nil
}

// ReadMessage implements [MessageTransport]. Cancelling ctx closes the
// connection.
func (t *WebsocketTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	_, b, err := t.conn.Read(ctx)
	return b, err
}

// WriteMessage implements [MessageTransport].
func (t *WebsocketTransport) WriteMessage(ctx context.Context, b []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, b)
}

// Close implements [MessageTransport].
func (t *WebsocketTransport) Close() error {
	err := t.conn.Close(websocket.StatusNormalClosure, "")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}

// ─── UDP media channel ────────────────────────────────────────────────────────

var _ DatagramTransport = (*UDPTransport)(nil)

// UDPTransport is a [DatagramTransport] over a connected UDP socket.
type UDPTransport struct {
	conn *net.UDPConn
}

// DialUDP is the default [MediaDialer].
func DialUDP(ctx context.Context, addr string) (DatagramTransport, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("voice: dial media %s: %w", addr, err)
	}
	return &UDPTransport{conn: c.(*net.UDPConn)}, nil
}

// ReadDatagram implements [DatagramTransport].
func (t *UDPTransport) ReadDatagram(p []byte) (int, error) {
	return t.conn.Read(p)
}

// WriteDatagram implements [DatagramTransport].
func (t *UDPTransport) WriteDatagram(p []byte) error {
	_, err := t.conn.Write(p)
	return err
}

// SetReadDeadline bounds the next read; used during IP discovery.
func (t *UDPTransport) SetReadDeadline(d time.Time) error {
	return t.conn.SetReadDeadline(d)
}

// Close implements [DatagramTransport].
func (t *UDPTransport) Close() error {
	err := t.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
