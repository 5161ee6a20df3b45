package voice

import "errors"

var (
	// ErrProtocolViolation is returned when the voice server sends a control
	// message the handshake does not expect in its current state, or a
	// malformed payload. The connection state is left unchanged.
	ErrProtocolViolation = errors.New("voice: protocol violation")

	// ErrNotReady is returned by operations that need a keyed media session.
	ErrNotReady = errors.New("voice: session not ready")

	// ErrSessionClosed is returned once [Session.Disconnect] has run.
	ErrSessionClosed = errors.New("voice: session closed")

	// ErrDecrypt is returned by [Open] when a datagram fails authentication.
	ErrDecrypt = errors.New("voice: decrypt failed")

	// ErrIncompleteInitData is returned by [Session.Connect] when the token,
	// endpoint or session id is missing.
	ErrIncompleteInitData = errors.New("voice: incomplete init data")

	// ErrUnsupportedMode is returned when the server offers no encryption
	// mode this package implements.
	ErrUnsupportedMode = errors.New("voice: unsupported encryption mode")

	// ErrServerMoved ends a serve cycle after [Session.Relocate] handed the
	// session a new voice server. Recovery skips Resume.
	ErrServerMoved = errors.New("voice: voice server moved")

	// errHeartbeatTimeout ends a serve cycle when too many acks were missed.
	errHeartbeatTimeout = errors.New("voice: heartbeat acknowledgements missed")
)
