package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/audio/opus"
)

const (
	tracerName        = "github.com/MrWong99/voxbridge/pkg/voice"
	controlWriteLimit = 10 * time.Second
	handshakeTimeout  = 30 * time.Second
	sweepInterval     = 50 // ticks, about one second
	maxDatagramSize   = 1500
)

// InitData is what the main gateway hands out for a voice join.
type InitData struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
	Token     string
	Endpoint  string
}

func (d InitData) complete() bool {
	return d.GuildID != "" && d.UserID != "" && d.SessionID != "" && d.Token != "" && d.Endpoint != ""
}

// controlURL turns the gateway endpoint into a control-channel URL.
func (d InitData) controlURL() string {
	ep := strings.TrimSuffix(d.Endpoint, ":80")
	if !strings.Contains(ep, "://") {
		ep = "wss://" + ep
	}
	sep := "?"
	if strings.Contains(ep, "?") {
		sep = "&"
	}
	return ep + sep + "v=" + strconv.Itoa(GatewayVersion)
}

// Session is one voice channel join: the handshake state machine, both
// transports and the audio pipelines.
//
// Connection state and active state are atomics readable from any
// goroutine. All exported methods are safe for concurrent use.
type Session struct {
	init        InitData
	opts        options
	log         *slog.Logger
	hs          *handshake
	framer      *Framer
	out         *outbound
	in          *inbound
	reconnector *Reconnector
	inboundCh   chan audio.AudioFrame

	active atomic.Int32 // ActiveState
	quit   atomic.Bool
	key    atomic.Pointer[[KeySize]byte]

	hbNonce  atomic.Int64
	hbSentAt atomic.Int64
	hbMissed atomic.Int32

	speakingReq chan bool
	moveReq     chan struct{}

	mu        sync.Mutex // guards the fields below, and init's Token and Endpoint
	control   MessageTransport
	media     DatagramTransport
	ready     Ready
	interval  time.Duration
	onEvent   func(Event)
	cancel    context.CancelFunc
	done      chan struct{}
	writeMu   sync.Mutex // serialises control writes
	closeOnce sync.Once
}

// New creates a session in [StateCollectingInitData]. Call
// [Session.Connect] to run the handshake.
func New(init InitData, opts ...Option) (*Session, error) {
	o := options{
		dialControl:        DialWebsocket,
		dialMedia:          DialUDP,
		observer:           NopObserver{},
		heartbeatMissLimit: DefaultHeartbeatMissLimit,
		silenceFrames:      DefaultSilenceFrames,
		gainRampSamples:    audio.DefaultRampSamples,
		speakerIdleTimeout: DefaultSpeakerIdleTimeout,
		outputBuffer:       DefaultOutputBuffer,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.encoder == nil {
		enc, err := opus.NewEncoder(0)
		if err != nil {
			return nil, fmt.Errorf("voice: %w", err)
		}
		o.encoder = enc
	}
	if o.newDecoder == nil {
		o.newDecoder = opus.DecoderFactory
	}

	log := o.logger.With("guild_id", init.GuildID, "channel_id", init.ChannelID)
	s := &Session{
		init:        init,
		opts:        o,
		log:         log,
		hs:          newHandshake(log),
		framer:      NewFramer(0),
		out:         newOutbound(o.encoder, o.gainRampSamples),
		in:          newInbound(o.newDecoder),
		reconnector: NewReconnector(o.reconnect, log),
		inboundCh:   make(chan audio.AudioFrame, o.outputBuffer),
		speakingReq: make(chan bool, 1),
		moveReq:     make(chan struct{}, 1),
	}
	s.active.Store(int32(ActiveConnecting))
	return s, nil
}

// ─── Accessors ────────────────────────────────────────────────────────────────

// State returns the handshake state.
func (s *Session) State() ConnState { return s.hs.Current() }

// Active returns the playback sub-state.
func (s *Session) Active() ActiveState { return ActiveState(s.active.Load()) }

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string { return s.init.GuildID }

// Framer exposes the RTP state, mainly for diagnostics.
func (s *Session) Framer() *Framer { return s.framer }

// Inbound returns the channel of mixed remote audio, one frame per tick
// while any remote speaker is known. Frames are dropped when the consumer
// falls behind.
func (s *Session) Inbound() <-chan audio.AudioFrame { return s.inboundCh }

// OnEvent registers the lifecycle callback, replacing any previous one. The
// callback runs on session goroutines and must not block.
func (s *Session) OnEvent(cb func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvent = cb
}

// Done is closed once the session has ended for good.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = make(chan struct{})
	}
	return s.done
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	cb := s.onEvent
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// ─── Playback contract ────────────────────────────────────────────────────────

// Push queues an outbound frame. It never blocks. Frames pushed after
// Disconnect are dropped.
func (s *Session) Push(f audio.AudioFrame) {
	if s.quit.Load() {
		return
	}
	s.out.push(f)
}

// SetActive changes the playback sub-state. Leaving Paused or Stopped for
// Playing schedules silence frames and fades in; entering Paused or Stopped
// fades out. RTP counters are never touched. Exiting is reserved for
// Disconnect.
func (s *Session) SetActive(next ActiveState) {
	if next == ActiveExiting || s.quit.Load() {
		return
	}
	prev := ActiveState(s.active.Swap(int32(next)))
	if prev == next {
		return
	}
	switch next {
	case ActivePlaying:
		if prev == ActivePaused || prev == ActiveStopped {
			s.out.resume(s.opts.silenceFrames)
		}
	case ActivePaused, ActiveStopped:
		s.out.fadeOut()
	}
	s.log.Debug("voice: active state", "from", prev, "to", next)
}

// credentials returns a consistent copy of the init data.
func (s *Session) credentials() InitData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.init
}

// ─── Lifecycle ────────────────────────────────────────────────────────────────

// Relocate points the session at a new voice server, as announced by a
// VOICE_SERVER_UPDATE for a channel the bot is already in. The running
// connection is dropped and a fresh handshake is made against endpoint;
// playback state and RTP counters carry over. It does not block.
func (s *Session) Relocate(token, endpoint string) error {
	if s.quit.Load() {
		return ErrSessionClosed
	}
	if token == "" || endpoint == "" {
		return ErrIncompleteInitData
	}
	s.mu.Lock()
	s.init.Token = token
	s.init.Endpoint = endpoint
	s.mu.Unlock()

	select {
	case s.moveReq <- struct{}{}:
	default:
	}
	s.log.Info("voice: voice server moved", "endpoint", endpoint)
	return nil
}

// Connect runs the full handshake and, once the session is ready, starts
// the background goroutines. A handshake the server answers out of order is
// abandoned and redone from scratch under the reconnect policy. Connect
// returns after the handshake; later failures are handled by reconnecting
// and finally reported as [EventDisconnected].
func (s *Session) Connect(ctx context.Context) error {
	if s.quit.Load() {
		return ErrSessionClosed
	}
	if !s.credentials().complete() {
		return ErrIncompleteInitData
	}
	err := s.establish(ctx)
	if errors.Is(err, ErrProtocolViolation) {
		s.log.Warn("voice: handshake out of order, starting over", "error", err)
		err = s.reconnector.Retry(ctx, func(ctx context.Context, _ int) error {
			s.closeTransports()
			return s.establish(ctx)
		})
	}
	if err != nil {
		s.closeTransports()
		_ = s.hs.fire(context.Background(), evReset)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	if s.done == nil {
		s.done = make(chan struct{})
	}
	done := s.done
	s.mu.Unlock()

	s.emit(Event{Type: EventReady})
	go s.run(runCtx, done)
	return nil
}

// Disconnect terminates both channels, flushes all buffers and ends the
// session. It is safe to call more than once.
func (s *Session) Disconnect(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.quit.Store(true)
		s.active.Store(int32(ActiveExiting))

		s.mu.Lock()
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		s.teardown()
		if cancel == nil && done != nil {
			close(done)
		}
		s.emit(Event{Type: EventDisconnected})
		s.log.Info("voice: disconnected")
	})
	return err
}

// teardown releases everything the session holds.
func (s *Session) teardown() {
	s.closeTransports()
	s.out.flush()
	s.in.reset()
	_ = s.hs.fire(context.Background(), evClose)
}

func (s *Session) closeTransports() {
	s.mu.Lock()
	control, media := s.control, s.media
	s.control, s.media = nil, nil
	s.mu.Unlock()
	if control != nil {
		_ = control.Close()
	}
	if media != nil {
		_ = media.Close()
	}
}

// run serves the session and recovers from failures until Disconnect or
// until recovery gives up.
func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		cause := s.serve(ctx)
		if s.quit.Load() || ctx.Err() != nil {
			return
		}

		s.log.Warn("voice: connection lost", "error", cause)
		s.emit(Event{Type: EventReconnecting, Err: cause})

		err := s.reconnector.Retry(ctx, func(ctx context.Context, attempt int) error {
			return s.reestablish(ctx, attempt, cause)
		})
		if s.quit.Load() || ctx.Err() != nil {
			return
		}
		if err != nil {
			s.opts.observer.Reconnect(false)
			s.closeOnce.Do(func() {
				s.quit.Store(true)
				s.active.Store(int32(ActiveExiting))
				s.teardown()
				s.log.Error("voice: giving up on session", "error", err)
				s.emit(Event{Type: EventDisconnected, Err: err})
			})
			return
		}
		s.opts.observer.Reconnect(true)
		s.emit(Event{Type: EventReconnected})
	}
}

// reestablish re-establishes a ready session. The first attempt resumes the
// existing session unless the failure was a protocol violation or a server
// move; later
// attempts, and failed resumes, redo the handshake from scratch.
func (s *Session) reestablish(ctx context.Context, attempt int, cause error) error {
	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	s.closeTransports()
	if attempt == 1 && !errors.Is(cause, ErrProtocolViolation) && !errors.Is(cause, ErrServerMoved) {
		err := s.resume(ctx)
		if err == nil {
			return nil
		}
		s.log.Warn("voice: resume failed, starting over", "error", err)
		s.closeTransports()
	}
	return s.establish(ctx)
}

// ─── Handshake ────────────────────────────────────────────────────────────────

func (s *Session) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithAttributes(attribute.String("guild_id", s.init.GuildID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// establish walks the full handshake from CollectingInitData to Ready.
func (s *Session) establish(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "voice.handshake")
	defer func() { endSpan(span, err) }()
	start := time.Now()

	if err := s.hs.fire(ctx, evReset); err != nil {
		return err
	}
	if err := s.hs.fire(ctx, evInitCollected); err != nil {
		return err
	}

	init := s.credentials()
	control, err := s.opts.dialControl(ctx, init.controlURL())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.control = control
	s.mu.Unlock()
	if err := s.hs.fire(ctx, evControlOpened); err != nil {
		return err
	}

	var hello Hello
	if err := s.await(ctx, control, OpHello, &hello); err != nil {
		return err
	}
	if err := s.hs.fire(ctx, evHello); err != nil {
		return err
	}
	s.setInterval(hello)

	if err := s.write(ctx, control, OpIdentify, Identify{
		ServerID:  init.GuildID,
		UserID:    init.UserID,
		SessionID: init.SessionID,
		Token:     init.Token,
	}); err != nil {
		return err
	}
	if err := s.hs.fire(ctx, evIdentified); err != nil {
		return err
	}

	var ready Ready
	if err := s.await(ctx, control, OpReady, &ready); err != nil {
		return err
	}
	if !slices.Contains(ready.Modes, ModeXSalsa20Poly1305) {
		return fmt.Errorf("%w: server offers %v", ErrUnsupportedMode, ready.Modes)
	}
	if err := s.hs.fire(ctx, evReady); err != nil {
		return err
	}
	s.mu.Lock()
	s.ready = ready
	s.mu.Unlock()
	s.framer.SetSSRC(ready.SSRC)

	if err := s.openMedia(ctx, control, ready); err != nil {
		return err
	}

	d := time.Since(start)
	s.opts.observer.HandshakeCompleted(d)
	s.log.Info("voice: session ready", "ssrc", ready.SSRC, "duration", d)
	return nil
}

// openMedia runs the InitializingMediaChannel → Ready part of the
// handshake.
func (s *Session) openMedia(ctx context.Context, control MessageTransport, ready Ready) error {
	addr := net.JoinHostPort(ready.IP, strconv.Itoa(ready.Port))
	media, err := s.opts.dialMedia(ctx, addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.media = media
	s.mu.Unlock()

	ip, port, err := discoverIP(media, ready.SSRC)
	if err != nil {
		return err
	}
	if err := s.hs.fire(ctx, evMediaOpened); err != nil {
		return err
	}

	if err := s.write(ctx, control, OpSelectProtocol, SelectProtocol{
		Protocol: "udp",
		Data:     SelectProtocolData{Address: ip, Port: port, Mode: ModeXSalsa20Poly1305},
	}); err != nil {
		return err
	}
	if err := s.hs.fire(ctx, evProtocolSelected); err != nil {
		return err
	}

	var desc SessionDescription
	if err := s.await(ctx, control, OpSessionDescription, &desc); err != nil {
		return err
	}
	if desc.Mode != ModeXSalsa20Poly1305 {
		return fmt.Errorf("%w: server selected %q", ErrUnsupportedMode, desc.Mode)
	}
	key := desc.SecretKey
	s.key.Store(&key)
	s.framer.SetKey(key)
	return s.hs.fire(ctx, evSessionDescription)
}

// resume reattaches to the existing voice session: a fresh control channel
// sends Resume and waits for Resumed, then the media channel restarts from
// InitializingMediaChannel. The key stays valid until the new session
// description replaces it.
func (s *Session) resume(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "voice.resume")
	defer func() { endSpan(span, err) }()

	if err := s.hs.fire(ctx, evReconnect); err != nil {
		return err
	}

	init := s.credentials()
	control, err := s.opts.dialControl(ctx, init.controlURL())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.control = control
	ready := s.ready
	s.mu.Unlock()

	var hello Hello
	if err := s.await(ctx, control, OpHello, &hello); err != nil {
		return err
	}
	s.setInterval(hello)
	if err := s.write(ctx, control, OpResume, Resume{
		ServerID:  init.GuildID,
		SessionID: init.SessionID,
		Token:     init.Token,
	}); err != nil {
		return err
	}
	if err := s.await(ctx, control, OpResumed, nil); err != nil {
		return err
	}
	return s.openMedia(ctx, control, ready)
}

func (s *Session) setInterval(h Hello) {
	d := time.Duration(h.HeartbeatInterval * float64(time.Millisecond))
	if d <= 0 {
		d = 5 * time.Second
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

// await reads the next known control message and requires it to be want.
// Anything else is a protocol violation; the state is not advanced.
func (s *Session) await(ctx context.Context, control MessageTransport, want Opcode, v any) error {
	for {
		b, err := control.ReadMessage(ctx)
		if err != nil {
			return fmt.Errorf("voice: awaiting %s: %w", want, err)
		}
		m, err := decodeMessage(b)
		if err != nil {
			return err
		}
		if !m.Op.known() {
			s.log.Debug("voice: skipping unknown opcode", "op", int(m.Op))
			continue
		}
		if m.Op != want {
			return fmt.Errorf("%w: got %s, want %s in state %s", ErrProtocolViolation, m.Op, want, s.hs.Current())
		}
		if v == nil {
			return nil
		}
		return decodePayload(m, v)
	}
}

// write sends one control message.
func (s *Session) write(ctx context.Context, control MessageTransport, op Opcode, payload any) error {
	b, err := encodeMessage(op, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, controlWriteLimit)
	defer cancel()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := control.WriteMessage(ctx, b); err != nil {
		return fmt.Errorf("voice: write %s: %w", op, err)
	}
	return nil
}

// ─── Serving ──────────────────────────────────────────────────────────────────

// serve runs the control reader, media reader, keepalive and tick driver
// until one of them fails or ctx is cancelled. Both transports are closed
// on return so blocked reads unwind.
func (s *Session) serve(ctx context.Context) error {
	s.mu.Lock()
	control, media, interval := s.control, s.media, s.interval
	s.mu.Unlock()
	if control == nil || media == nil {
		return ErrNotReady
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() {
		_ = control.Close()
		_ = media.Close()
	})
	defer stop()

	s.hbMissed.Store(0)
	g.Go(func() error { return s.readControl(gctx, control) })
	g.Go(func() error { return s.readMedia(gctx, media) })
	g.Go(func() error { return s.keepalive(gctx, control, interval) })
	g.Go(func() error { return s.tick(gctx, media) })
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-s.moveReq:
			return ErrServerMoved
		}
	})
	return g.Wait()
}

// readControl handles control messages once the session is ready.
func (s *Session) readControl(ctx context.Context, control MessageTransport) error {
	for {
		b, err := control.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("voice: read control: %w", err)
		}
		m, err := decodeMessage(b)
		if err != nil {
			s.log.Warn("voice: protocol violation", "error", err)
			return err
		}
		if !m.Op.known() {
			continue
		}
		if err := s.hs.accept(ctx, m.Op); err != nil {
			s.log.Warn("voice: protocol violation", "op", m.Op.String(), "error", err)
			return err
		}
		if err := s.handleControl(m); err != nil {
			return err
		}
	}
}

func (s *Session) handleControl(m Message) error {
	switch m.Op {
	case OpHeartbeatAck:
		s.hbMissed.Store(0)
		var nonce int64
		if json.Unmarshal(m.Data, &nonce) == nil && nonce == s.hbNonce.Load() {
			s.opts.observer.HeartbeatRTT(time.Since(time.Unix(0, s.hbSentAt.Load())))
		}
	case OpSpeaking:
		var su SpeakingUpdate
		if err := decodePayload(m, &su); err != nil {
			return err
		}
		if su.UserID != "" {
			s.in.bindUser(su.UserID, su.SSRC)
		}
	case OpClientDisconnect:
		var cd ClientDisconnect
		if err := decodePayload(m, &cd); err != nil {
			return err
		}
		if ssrc, ok := s.in.removeUser(cd.UserID); ok {
			s.log.Debug("voice: speaker left", "user_id", cd.UserID, "ssrc", ssrc)
			s.emit(Event{Type: EventSpeakerLeft, SSRC: ssrc, UserID: cd.UserID})
		}
	}
	return nil
}

// readMedia feeds received datagrams to the inbound pipeline.
func (s *Session) readMedia(ctx context.Context, media DatagramTransport) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := media.ReadDatagram(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("voice: read media: %w", err)
		}
		s.handleDatagram(buf[:n], time.Now())
	}
}

// handleDatagram decrypts one datagram and buffers it for its speaker.
// Nothing is accepted before Ready; bad packets are dropped silently.
func (s *Session) handleDatagram(b []byte, now time.Time) {
	if s.hs.Current() != StateReady {
		return
	}
	key := s.key.Load()
	if key == nil {
		return
	}
	pkt, err := Open(b, key)
	switch {
	case errors.Is(err, ErrDecrypt):
		s.opts.observer.DecryptFailed()
		return
	case err != nil:
		return
	}
	if pkt.Header.SSRC == s.framer.SSRC() {
		return
	}
	s.in.receive(pkt.Header.SSRC, pkt.Payload, now)
}

// keepalive owns control writes while serving: heartbeats on the Hello
// interval and speaking notifications requested by the tick driver.
func (s *Session) keepalive(ctx context.Context, control MessageTransport, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	limit := int32(s.opts.heartbeatMissLimit)

	for {
		select {
		case <-ctx.Done():
			return nil
		case speaking := <-s.speakingReq:
			if err := s.write(ctx, control, OpSpeaking, Speaking{Speaking: speaking, SSRC: s.framer.SSRC()}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		case now := <-ticker.C:
			if s.hbMissed.Load() >= limit {
				s.log.Warn("voice: heartbeat ack missed", "missed", s.hbMissed.Load())
				return errHeartbeatTimeout
			}
			nonce := now.UnixMilli()
			s.hbNonce.Store(nonce)
			s.hbSentAt.Store(now.UnixNano())
			s.hbMissed.Add(1)
			if err := s.write(ctx, control, OpHeartbeat, nonce); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// requestSpeaking hands a speaking change to the keepalive, replacing any
// request it has not picked up yet. Only the tick driver calls it.
func (s *Session) requestSpeaking(v bool) {
	select {
	case <-s.speakingReq:
	default:
	}
	s.speakingReq <- v
}

// tick is the fixed-cadence audio driver: one outbound packet and one mix
// per 20 ms.
func (s *Session) tick(ctx context.Context, media DatagramTransport) error {
	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	speaking := false
	n := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			speaking = s.sendTick(media, speaking)
			s.mixTick()
			if n++; n%sweepInterval == 0 {
				for _, ssrc := range s.in.sweep(now, s.opts.speakerIdleTimeout) {
					s.log.Debug("voice: evicted idle speaker", "ssrc", ssrc)
				}
			}
		}
	}
}

// sendTick sends this tick's outbound packet, if any, and returns the new
// speaking flag.
func (s *Session) sendTick(media DatagramTransport, speaking bool) bool {
	state := s.Active()
	payload, underrun, ok, err := s.out.next(state)
	if err != nil {
		s.opts.observer.PacketDropped("encode")
		return speaking
	}
	if !ok {
		if speaking && state != ActivePlaying {
			s.requestSpeaking(false)
			return false
		}
		return speaking
	}
	if underrun {
		s.opts.observer.Underrun()
	}
	if !speaking {
		s.requestSpeaking(true)
		speaking = true
	}
	if err := s.send(media, payload); err != nil {
		s.opts.observer.PacketDropped("send")
	}
	return speaking
}

// send frames, seals and writes one payload. Counters advance only after a
// successful write.
func (s *Session) send(media DatagramTransport, payload []byte) error {
	if s.hs.Current() != StateReady {
		return ErrNotReady
	}
	pkt, err := s.framer.Seal(payload)
	if err != nil {
		return err
	}
	if err := media.WriteDatagram(pkt); err != nil {
		return err
	}
	s.framer.Advance()
	s.opts.observer.PacketSent()
	return nil
}

// mixTick mixes inbound audio and offers it to the consumer without
// blocking.
func (s *Session) mixTick() {
	frame, _, decodeErrs, ok := s.in.mix()
	for range decodeErrs {
		s.opts.observer.PacketDropped("decode")
	}
	s.opts.observer.ActiveSpeakers(s.in.avg.Value())
	if !ok {
		return
	}
	select {
	case s.inboundCh <- frame:
	default:
		s.opts.observer.PacketDropped("inbound_full")
	}
}
