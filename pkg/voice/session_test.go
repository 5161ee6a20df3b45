package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/mock"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

var errFakeClosed = errors.New("fake transport closed")

type fakeControl struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	once       sync.Once
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		toClient:   make(chan []byte, 16),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (c *fakeControl) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case b := <-c.toClient:
		return b, nil
	case <-c.closed:
		return nil, errFakeClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeControl) WriteMessage(ctx context.Context, b []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	select {
	case c.fromClient <- b:
		return nil
	case <-c.closed:
		return errFakeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeControl) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// send queues a server message.
func (c *fakeControl) send(t *testing.T, op Opcode, payload any) {
	t.Helper()
	b, err := encodeMessage(op, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", op, err)
	}
	c.toClient <- b
}

// expect waits for the next client message and checks its opcode, skipping
// heartbeats and speaking updates.
func (c *fakeControl) expect(t *testing.T, want Opcode) Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case b := <-c.fromClient:
			m, err := decodeMessage(b)
			if err != nil {
				t.Fatalf("client sent malformed message: %v", err)
			}
			if m.Op != want && (m.Op == OpHeartbeat || m.Op == OpSpeaking) {
				continue
			}
			if m.Op != want {
				t.Fatalf("client sent %s, want %s", m.Op, want)
			}
			return m
		case <-timeout:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

type fakeMedia struct {
	ssrc     uint32
	toClient chan []byte
	sent     chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeMedia(ssrc uint32) *fakeMedia {
	return &fakeMedia{
		ssrc:     ssrc,
		toClient: make(chan []byte, 64),
		sent:     make(chan []byte, 4096),
		closed:   make(chan struct{}),
	}
}

func (m *fakeMedia) ReadDatagram(p []byte) (int, error) {
	select {
	case b := <-m.toClient:
		return copy(p, b), nil
	case <-m.closed:
		return 0, net.ErrClosed
	}
}

func (m *fakeMedia) WriteDatagram(p []byte) error {
	select {
	case <-m.closed:
		return net.ErrClosed
	default:
	}
	if len(p) == discoveryPacketSize && binary.BigEndian.Uint16(p) == discoveryRequest {
		m.toClient <- buildDiscoveryResponse(binary.BigEndian.Uint32(p[4:8]), "198.51.100.7", 40000)
		return nil
	}
	select {
	case m.sent <- append([]byte(nil), p...):
	default:
	}
	return nil
}

func (m *fakeMedia) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func buildDiscoveryResponse(ssrc uint32, addr string, port uint16) []byte {
	b := make([]byte, discoveryPacketSize)
	binary.BigEndian.PutUint16(b[0:2], discoveryResponse)
	binary.BigEndian.PutUint16(b[2:4], discoveryPacketSize-4)
	binary.BigEndian.PutUint32(b[4:8], ssrc)
	copy(b[8:discoveryPacketSize-2], addr)
	binary.BigEndian.PutUint16(b[discoveryPacketSize-2:], port)
	return b
}

// harness hands out a new fake transport per dial.
type harness struct {
	urls     chan string
	controls chan *fakeControl
	medias   chan *fakeMedia
	events   chan Event
	key      [KeySize]byte
}

const testSSRC = 4242

func newHarness() *harness {
	return &harness{
		urls:     make(chan string, 16),
		controls: make(chan *fakeControl, 8),
		medias:   make(chan *fakeMedia, 8),
		events:   make(chan Event, 32),
		key:      testKey(),
	}
}

func (h *harness) options() []Option {
	return []Option{
		WithEncoder(&mock.Encoder{}),
		WithDecoderFactory(mock.Factory()),
		WithControlDialer(func(ctx context.Context, url string) (MessageTransport, error) {
			select {
			case h.urls <- url:
			default:
			}
			c := newFakeControl()
			h.controls <- c
			return c, nil
		}),
		WithMediaDialer(func(ctx context.Context, addr string) (DatagramTransport, error) {
			m := newFakeMedia(testSSRC)
			h.medias <- m
			return m, nil
		}),
		WithReconnect(ReconnectorConfig{MaxRetries: 2, Backoff: time.Millisecond, MaxBackoff: time.Millisecond}),
		WithSilenceFrames(2),
		WithGainRampSamples(4),
	}
}

func (h *harness) nextControl(t *testing.T) *fakeControl {
	t.Helper()
	select {
	case c := <-h.controls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no control dial")
		return nil
	}
}

func (h *harness) nextMedia(t *testing.T) *fakeMedia {
	t.Helper()
	select {
	case m := <-h.medias:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no media dial")
		return nil
	}
}

func (h *harness) waitEvent(t *testing.T, want EventType) Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Type == want {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event %s", want)
			return Event{}
		}
	}
}

// serveHandshake plays the server side of a full handshake.
func (h *harness) serveHandshake(t *testing.T, heartbeatMS float64) (*fakeControl, *fakeMedia) {
	t.Helper()
	c := h.nextControl(t)
	c.send(t, OpHello, Hello{HeartbeatInterval: heartbeatMS})
	id := c.expect(t, OpIdentify)
	var ident Identify
	if err := json.Unmarshal(id.Data, &ident); err != nil || ident.Token != "tok" || ident.ServerID != "g1" {
		t.Errorf("identify = %+v (%v)", ident, err)
	}
	c.send(t, OpReady, Ready{SSRC: testSSRC, IP: "127.0.0.1", Port: 5000, Modes: []string{"aead_aes256_gcm", ModeXSalsa20Poly1305}})
	m := h.nextMedia(t)
	h.serveMedia(t, c)
	return c, m
}

// serveMedia plays SelectProtocol → SessionDescription.
func (h *harness) serveMedia(t *testing.T, c *fakeControl) {
	t.Helper()
	sp := c.expect(t, OpSelectProtocol)
	var sel SelectProtocol
	if err := json.Unmarshal(sp.Data, &sel); err != nil {
		t.Fatalf("select protocol: %v", err)
	}
	if sel.Data.Address != "198.51.100.7" || sel.Data.Port != 40000 || sel.Data.Mode != ModeXSalsa20Poly1305 {
		t.Errorf("select protocol data = %+v", sel.Data)
	}
	c.send(t, OpSessionDescription, SessionDescription{Mode: ModeXSalsa20Poly1305, SecretKey: h.key})
}

var testInit = InitData{
	GuildID:   "g1",
	ChannelID: "c1",
	UserID:    "u1",
	SessionID: "s1",
	Token:     "tok",
	Endpoint:  "voice.example",
}

func newTestSession(t *testing.T, h *harness) *Session {
	t.Helper()
	s, err := New(testInit, h.options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.OnEvent(func(ev Event) {
		select {
		case h.events <- ev:
		default:
		}
	})
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

// connect runs Connect against the scripted server.
func connect(t *testing.T, h *harness, s *Session, heartbeatMS float64) (*fakeControl, *fakeMedia) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()
	c, m := h.serveHandshake(t, heartbeatMS)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}
	return c, m
}

// nextPacket waits for an outbound datagram and decrypts it.
func nextPacket(t *testing.T, m *fakeMedia, key [KeySize]byte) Packet {
	t.Helper()
	select {
	case b := <-m.sent:
		pkt, err := Open(b, &key)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return pkt
	case <-time.After(2 * time.Second):
		t.Fatal("no datagram sent")
		return Packet{}
	}
}

// ─── Tests ────────────────────────────────────────────────────────────────────

func TestSession_ConnectReachesReady(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	connect(t, h, s, 60000)

	if s.State() != StateReady {
		t.Fatalf("state = %s, want ready", s.State())
	}
	if s.Framer().SSRC() != testSSRC {
		t.Errorf("ssrc = %d", s.Framer().SSRC())
	}
	h.waitEvent(t, EventReady)
}

func TestSession_ConnectRequiresInitData(t *testing.T) {
	t.Parallel()
	s, err := New(InitData{GuildID: "g"}, newHarness().options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrIncompleteInitData) {
		t.Errorf("err = %v, want ErrIncompleteInitData", err)
	}
	if s.State() != StateCollectingInitData {
		t.Errorf("state = %s", s.State())
	}
}

func TestSession_OutOfOrderHandshakeStartsOver(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()
	first := h.nextControl(t)
	// Ready before Hello.
	first.send(t, OpReady, Ready{SSRC: 1, IP: "127.0.0.1", Port: 1, Modes: []string{ModeXSalsa20Poly1305}})

	// A new control connection must see a fresh Identify.
	h.serveHandshake(t, 60000)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Connect: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return")
	}
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestSession_OutOfOrderHandshakeFails(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()
	// The first handshake plus two retries, all answered out of order.
	for range 3 {
		c := h.nextControl(t)
		c.send(t, OpReady, Ready{SSRC: 1, IP: "127.0.0.1", Port: 1, Modes: []string{ModeXSalsa20Poly1305}})
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrProtocolViolation) {
			t.Fatalf("err = %v, want ErrProtocolViolation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not fail")
	}
	if s.State() != StateCollectingInitData {
		t.Errorf("state after failed handshake = %s, want reset", s.State())
	}
}

func TestSession_UnsupportedMode(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()
	c := h.nextControl(t)
	c.send(t, OpHello, Hello{HeartbeatInterval: 60000})
	c.expect(t, OpIdentify)
	c.send(t, OpReady, Ready{SSRC: 1, IP: "127.0.0.1", Port: 1, Modes: []string{"aead_aes256_gcm"}})

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrUnsupportedMode) {
			t.Fatalf("err = %v, want ErrUnsupportedMode", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not fail")
	}
}

func TestSession_SendsEncryptedMonotonicPackets(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	c, m := connect(t, h, s, 60000)

	for i := range 3 {
		s.Push(audio.AudioFrame{Type: audio.FramePCM, Data: mock.PCM(int16(100 + i))})
	}
	s.SetActive(ActivePlaying)

	c.expect(t, OpSpeaking)
	var prev Packet
	for i := range 3 {
		pkt := nextPacket(t, m, h.key)
		if string(pkt.Payload) != string(mock.Frame(int16(100+i))) {
			t.Errorf("packet %d payload = %x", i, pkt.Payload)
		}
		if i > 0 {
			if pkt.Header.SequenceNumber != prev.Header.SequenceNumber+1 {
				t.Errorf("sequence %d after %d", pkt.Header.SequenceNumber, prev.Header.SequenceNumber)
			}
			if pkt.Header.Timestamp != prev.Header.Timestamp+audio.SamplesPerFrame {
				t.Errorf("timestamp %d after %d", pkt.Header.Timestamp, prev.Header.Timestamp)
			}
		}
		prev = pkt
	}
}

func TestSession_PauseResumeKeepsCountersAndSendsSilence(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	_, m := connect(t, h, s, 60000)

	s.SetActive(ActivePlaying)
	first := nextPacket(t, m, h.key) // underrun silence

	s.SetActive(ActivePaused)
	time.Sleep(100 * time.Millisecond)
	for len(m.sent) > 0 {
		<-m.sent
	}
	seqBefore, tsBefore := s.Framer().Counters()

	s.SetActive(ActivePlaying)
	s.Push(audio.AudioFrame{Type: audio.FramePCM, Data: mock.PCM(7)})

	for i := range 2 {
		pkt := nextPacket(t, m, h.key)
		if string(pkt.Payload) != string(audio.SilenceFrame) {
			t.Errorf("post-resume packet %d = %x, want silence", i, pkt.Payload)
		}
		if i == 0 && (pkt.Header.SequenceNumber != seqBefore || pkt.Header.Timestamp != tsBefore) {
			t.Errorf("counters reset across pause: seq %d ts %d, want %d %d",
				pkt.Header.SequenceNumber, pkt.Header.Timestamp, seqBefore, tsBefore)
		}
		if pkt.Header.SequenceNumber <= first.Header.SequenceNumber {
			t.Errorf("sequence went backwards: %d <= %d", pkt.Header.SequenceNumber, first.Header.SequenceNumber)
		}
	}
	pkt := nextPacket(t, m, h.key)
	if len(pkt.Payload) != 2 {
		t.Errorf("audio after silence = %x", pkt.Payload)
	}
}

func TestSession_InboundMixing(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	c, m := connect(t, h, s, 60000)

	remote := NewFramer(99)
	remote.SetKey(h.key)
	dgram, err := remote.Seal(mock.Frame(1234))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	m.toClient <- dgram

	select {
	case frame := <-s.Inbound():
		if got := audio.BytesToInt16s(frame.Data)[0]; got != 1234 {
			t.Errorf("mixed sample = %d, want 1234", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no mixed frame")
	}

	// A garbage datagram is dropped without disturbing the session.
	bad := append([]byte(nil), dgram...)
	bad[len(bad)-1] ^= 0xFF
	m.toClient <- bad

	c.send(t, OpSpeaking, SpeakingUpdate{UserID: "alice", SSRC: 99})
	c.send(t, OpClientDisconnect, ClientDisconnect{UserID: "alice"})
	ev := h.waitEvent(t, EventSpeakerLeft)
	if ev.SSRC != 99 || ev.UserID != "alice" {
		t.Errorf("speaker left event = %+v", ev)
	}
	if s.State() != StateReady {
		t.Errorf("state = %s", s.State())
	}
}

func TestSession_HeartbeatMissReconnects(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	connect(t, h, s, 10) // never acked

	h.waitEvent(t, EventReconnecting)

	// Resume on a fresh control channel.
	c := h.nextControl(t)
	c.send(t, OpHello, Hello{HeartbeatInterval: 60000})
	c.expect(t, OpResume)
	c.send(t, OpResumed, struct{}{})
	h.nextMedia(t)
	h.serveMedia(t, c)

	h.waitEvent(t, EventReconnected)
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestSession_HeartbeatAckKeepsSessionAlive(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	c, _ := connect(t, h, s, 10)

	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case b := <-c.fromClient:
			m, _ := decodeMessage(b)
			if m.Op == OpHeartbeat {
				c.toClient <- mustEncode(t, OpHeartbeatAck, json.RawMessage(m.Data))
			}
		case ev := <-h.events:
			if ev.Type == EventReconnecting {
				t.Fatalf("acked session reconnected: %v", ev.Err)
			}
		case <-deadline:
			return
		}
	}
}

func mustEncode(t *testing.T, op Opcode, payload any) []byte {
	t.Helper()
	b, err := encodeMessage(op, payload)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSession_ProtocolViolationAfterReadyRestartsHandshake(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	c, _ := connect(t, h, s, 60000)

	c.send(t, OpHello, Hello{HeartbeatInterval: 60000})
	ev := h.waitEvent(t, EventReconnecting)
	if !errors.Is(ev.Err, ErrProtocolViolation) {
		t.Fatalf("reconnect cause = %v", ev.Err)
	}
	// From scratch: identify, not resume.
	h.serveHandshake(t, 60000)
	h.waitEvent(t, EventReconnected)
}

func TestSession_RelocateMovesToNewServer(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	old, _ := connect(t, h, s, 60000)
	<-h.urls

	if err := s.Relocate("", "voice2.example"); !errors.Is(err, ErrIncompleteInitData) {
		t.Errorf("Relocate without token = %v", err)
	}
	if err := s.Relocate("tok2", "voice2.example:80"); err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	ev := h.waitEvent(t, EventReconnecting)
	if !errors.Is(ev.Err, ErrServerMoved) {
		t.Fatalf("reconnect cause = %v", ev.Err)
	}
	select {
	case <-old.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("old control channel left open")
	}

	// The new server gets a fresh Identify with the new token.
	c := h.nextControl(t)
	if url := <-h.urls; url != "wss://voice2.example?v=4" {
		t.Errorf("control url = %q", url)
	}
	c.send(t, OpHello, Hello{HeartbeatInterval: 60000})
	var ident Identify
	if err := json.Unmarshal(c.expect(t, OpIdentify).Data, &ident); err != nil {
		t.Fatal(err)
	}
	if ident.Token != "tok2" || ident.SessionID != "s1" {
		t.Errorf("identify = %+v", ident)
	}
	c.send(t, OpReady, Ready{SSRC: testSSRC, IP: "127.0.0.1", Port: 5000, Modes: []string{ModeXSalsa20Poly1305}})
	h.nextMedia(t)
	h.serveMedia(t, c)

	h.waitEvent(t, EventReconnected)
	if s.State() != StateReady {
		t.Errorf("state = %s, want ready", s.State())
	}
}

func TestSession_RelocateAfterDisconnect(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Relocate("tok2", "voice2.example"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Relocate = %v, want ErrSessionClosed", err)
	}
}

func TestSession_GivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	c, _ := connect(t, h, s, 60000)

	// Kill the control channel; every recovery dial then gets a server
	// that hangs up immediately.
	go func() {
		for c := range h.controls {
			_ = c.Close()
		}
	}()
	_ = c.Close()

	ev := h.waitEvent(t, EventDisconnected)
	if ev.Err == nil {
		t.Error("terminal disconnect without error")
	}
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session not done")
	}
	if s.Active() != ActiveExiting {
		t.Errorf("active = %s", s.Active())
	}
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness()
	s := newTestSession(t, h)
	connect(t, h, s, 60000)

	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := s.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s", s.State())
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Connect after Disconnect = %v", err)
	}
	ev := h.waitEvent(t, EventDisconnected)
	if ev.Err != nil {
		t.Errorf("requested disconnect carried error %v", ev.Err)
	}
}

func TestSession_MediaRefusedBeforeReady(t *testing.T) {
	t.Parallel()
	s, err := New(testInit, newHarness().options()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := testKey()
	s.key.Store(&key)
	remote := NewFramer(5)
	remote.SetKey(key)
	dgram, _ := remote.Seal(mock.Frame(1))
	s.handleDatagram(dgram, time.Now())
	if s.in.len() != 0 {
		t.Error("datagram accepted before ready")
	}
	if err := s.send(newFakeMedia(1), []byte{1}); !errors.Is(err, ErrNotReady) {
		t.Errorf("send before ready = %v", err)
	}
}
