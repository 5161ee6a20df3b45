package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/looplab/fsm"
)

// Handshake events.
const (
	evInitCollected      = "init_collected"
	evControlOpened      = "control_opened"
	evHello              = "hello"
	evIdentified         = "identified"
	evReady              = "ready"
	evMediaOpened        = "media_opened"
	evProtocolSelected   = "protocol_selected"
	evSessionDescription = "session_description"
	evReconnect          = "reconnect"
	evReset              = "reset"
	evClose              = "close"
)

var allStates = []string{
	string(StateCollectingInitData),
	string(StateInitializingControlChannel),
	string(StateCollectingHello),
	string(StateSendingIdentify),
	string(StateCollectingReady),
	string(StateInitializingMediaChannel),
	string(StateSendingSelectProtocol),
	string(StateCollectingSessionDescription),
	string(StateReady),
}

// inboundEvents maps the control messages that drive the handshake to their
// fsm event.
var inboundEvents = map[Opcode]string{
	OpHello:              evHello,
	OpReady:              evReady,
	OpSessionDescription: evSessionDescription,
}

// handshake is the connection state machine. The current state is mirrored
// into an atomic so any goroutine can read it without touching the fsm lock.
type handshake struct {
	fsm   *fsm.FSM
	state atomic.Value // ConnState
	log   *slog.Logger
}

func newHandshake(log *slog.Logger) *handshake {
	h := &handshake{log: log}
	h.state.Store(StateCollectingInitData)
	h.fsm = fsm.NewFSM(
		string(StateCollectingInitData),
		fsm.Events{
			{Name: evInitCollected, Src: []string{string(StateCollectingInitData)}, Dst: string(StateInitializingControlChannel)},
			{Name: evControlOpened, Src: []string{string(StateInitializingControlChannel)}, Dst: string(StateCollectingHello)},
			{Name: evHello, Src: []string{string(StateCollectingHello)}, Dst: string(StateSendingIdentify)},
			{Name: evIdentified, Src: []string{string(StateSendingIdentify)}, Dst: string(StateCollectingReady)},
			{Name: evReady, Src: []string{string(StateCollectingReady)}, Dst: string(StateInitializingMediaChannel)},
			{Name: evMediaOpened, Src: []string{string(StateInitializingMediaChannel)}, Dst: string(StateSendingSelectProtocol)},
			{Name: evProtocolSelected, Src: []string{string(StateSendingSelectProtocol)}, Dst: string(StateCollectingSessionDescription)},
			{Name: evSessionDescription, Src: []string{string(StateCollectingSessionDescription)}, Dst: string(StateReady)},
			{Name: evReconnect, Src: []string{
				string(StateReady),
				string(StateSendingSelectProtocol),
				string(StateCollectingSessionDescription),
			}, Dst: string(StateInitializingMediaChannel)},
			{Name: evReset, Src: allStates, Dst: string(StateCollectingInitData)},
			{Name: evClose, Src: allStates, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				h.state.Store(ConnState(e.Dst))
				h.log.Debug("voice: state transition", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
	return h
}

// Current returns the current state.
func (h *handshake) Current() ConnState {
	return h.state.Load().(ConnState)
}

// fire triggers event. A transition that is not allowed from the current
// state is a protocol violation and leaves the state unchanged. Firing an
// event whose destination is the current state is a no-op.
func (h *handshake) fire(ctx context.Context, event string) error {
	err := h.fsm.Event(ctx, event)
	if err == nil {
		return nil
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	var invalid fsm.InvalidEventError
	if errors.As(err, &invalid) {
		return fmt.Errorf("%w: event %q in state %s", ErrProtocolViolation, event, h.Current())
	}
	return fmt.Errorf("voice: state machine: %w", err)
}

// accept advances the machine for an inbound control message. Only Hello,
// Ready and SessionDescription move the handshake; any other known opcode
// before Ready is out of order.
func (h *handshake) accept(ctx context.Context, op Opcode) error {
	if ev, ok := inboundEvents[op]; ok {
		return h.fire(ctx, ev)
	}
	if h.Current() != StateReady {
		return fmt.Errorf("%w: %s in state %s", ErrProtocolViolation, op, h.Current())
	}
	return nil
}
