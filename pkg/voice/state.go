package voice

// ConnState is a step of the handshake state machine. The string values are
// the looplab/fsm state names.
type ConnState string

// Handshake states, in the only order the machine accepts.
const (
	StateCollectingInitData           ConnState = "collecting_init_data"
	StateInitializingControlChannel   ConnState = "initializing_control_channel"
	StateCollectingHello              ConnState = "collecting_hello"
	StateSendingIdentify              ConnState = "sending_identify"
	StateCollectingReady              ConnState = "collecting_ready"
	StateInitializingMediaChannel     ConnState = "initializing_media_channel"
	StateSendingSelectProtocol        ConnState = "sending_select_protocol"
	StateCollectingSessionDescription ConnState = "collecting_session_description"
	StateReady                        ConnState = "ready"

	// StateClosed is entered by Disconnect and never left.
	StateClosed ConnState = "closed"
)

// String implements fmt.Stringer.
func (s ConnState) String() string { return string(s) }

// ActiveState is the playback sub-state, orthogonal to [ConnState].
type ActiveState int32

const (
	ActiveConnecting ActiveState = iota
	ActivePlaying
	ActiveStopped
	ActivePaused
	ActiveExiting
)

// String implements fmt.Stringer.
func (a ActiveState) String() string {
	switch a {
	case ActiveConnecting:
		return "connecting"
	case ActivePlaying:
		return "playing"
	case ActiveStopped:
		return "stopped"
	case ActivePaused:
		return "paused"
	case ActiveExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// EventType classifies a session [Event].
type EventType int

const (
	// EventReady fires when the first handshake completes.
	EventReady EventType = iota

	// EventReconnecting fires when a serve cycle failed and recovery starts.
	EventReconnecting

	// EventReconnected fires after a successful recovery.
	EventReconnected

	// EventDisconnected is terminal: either Disconnect was called or
	// recovery gave up. Err is nil for a requested disconnect.
	EventDisconnected

	// EventSpeakerLeft fires when a remote user left and their buffer was
	// released.
	EventSpeakerLeft
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventReconnecting:
		return "reconnecting"
	case EventReconnected:
		return "reconnected"
	case EventDisconnected:
		return "disconnected"
	case EventSpeakerLeft:
		return "speaker_left"
	default:
		return "unknown"
	}
}

// Event is delivered to the callback registered with [Session.OnEvent].
type Event struct {
	Type   EventType
	Err    error
	SSRC   uint32
	UserID string
}
