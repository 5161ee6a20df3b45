package voice

import (
	"encoding/json"
	"fmt"
)

// Opcode identifies a control-channel message.
type Opcode int

// Voice gateway opcodes (gateway version 4).
const (
	OpIdentify           Opcode = 0
	OpSelectProtocol     Opcode = 1
	OpReady              Opcode = 2
	OpHeartbeat          Opcode = 3
	OpSessionDescription Opcode = 4
	OpSpeaking           Opcode = 5
	OpHeartbeatAck       Opcode = 6
	OpResume             Opcode = 7
	OpHello              Opcode = 8
	OpResumed            Opcode = 9
	OpClientDisconnect   Opcode = 13
)

// GatewayVersion is appended to the endpoint as ?v=N.
const GatewayVersion = 4

// ModeXSalsa20Poly1305 is the only encryption mode implemented.
const ModeXSalsa20Poly1305 = "xsalsa20_poly1305"

func (o Opcode) String() string {
	switch o {
	case OpIdentify:
		return "identify"
	case OpSelectProtocol:
		return "select_protocol"
	case OpReady:
		return "ready"
	case OpHeartbeat:
		return "heartbeat"
	case OpSessionDescription:
		return "session_description"
	case OpSpeaking:
		return "speaking"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	case OpResume:
		return "resume"
	case OpHello:
		return "hello"
	case OpResumed:
		return "resumed"
	case OpClientDisconnect:
		return "client_disconnect"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// known reports whether o is part of the protocol this package speaks.
// Unknown opcodes are skipped rather than treated as violations so newer
// server messages do not break old clients.
func (o Opcode) known() bool {
	switch o {
	case OpIdentify, OpSelectProtocol, OpReady, OpHeartbeat, OpSessionDescription,
		OpSpeaking, OpHeartbeatAck, OpResume, OpHello, OpResumed, OpClientDisconnect:
		return true
	}
	return false
}

// Message is the control-channel envelope.
type Message struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
}

// ─── Inbound payloads ─────────────────────────────────────────────────────────

// Hello starts the heartbeat.
type Hello struct {
	HeartbeatInterval float64 `json:"heartbeat_interval"` // milliseconds
}

// Ready carries the media endpoint and our SSRC.
type Ready struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  int      `json:"port"`
	Modes []string `json:"modes"`
}

// SessionDescription carries the negotiated mode and key.
type SessionDescription struct {
	Mode      string   `json:"mode"`
	SecretKey [32]byte `json:"secret_key"`
}

// SpeakingUpdate maps a remote SSRC to a user.
type SpeakingUpdate struct {
	UserID string `json:"user_id"`
	SSRC   uint32 `json:"ssrc"`
}

// ClientDisconnect reports a user leaving the channel.
type ClientDisconnect struct {
	UserID string `json:"user_id"`
}

// ─── Outbound payloads ────────────────────────────────────────────────────────

// Identify authenticates the control channel.
type Identify struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// SelectProtocol tells the server our external media address.
type SelectProtocol struct {
	Protocol string             `json:"protocol"`
	Data     SelectProtocolData `json:"data"`
}

// SelectProtocolData is the inner object of [SelectProtocol].
type SelectProtocolData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// Speaking announces that we start or stop sending audio.
type Speaking struct {
	Speaking bool   `json:"speaking"`
	Delay    int    `json:"delay"`
	SSRC     uint32 `json:"ssrc"`
}

// Resume re-attaches a new control connection to an existing session.
type Resume struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// encodeMessage wraps payload in an envelope.
func encodeMessage(op Opcode, payload any) ([]byte, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("voice: encode %s: %w", op, err)
	}
	return json.Marshal(Message{Op: op, Data: d})
}

// decodeMessage parses an envelope. Malformed JSON is a protocol violation.
func decodeMessage(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: malformed message: %v", ErrProtocolViolation, err)
	}
	return m, nil
}

// decodePayload unmarshals m.Data into v.
func decodePayload(m Message, v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", ErrProtocolViolation, m.Op, err)
	}
	return nil
}
