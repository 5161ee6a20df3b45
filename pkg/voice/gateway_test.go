package voice

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeMessage_Envelope(t *testing.T) {
	t.Parallel()
	b, err := encodeMessage(OpSelectProtocol, SelectProtocol{
		Protocol: "udp",
		Data:     SelectProtocolData{Address: "1.2.3.4", Port: 5000, Mode: ModeXSalsa20Poly1305},
	})
	if err != nil {
		t.Fatalf("encodeMessage: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"op": float64(1),
		"d": map[string]any{
			"protocol": "udp",
			"data": map[string]any{
				"address": "1.2.3.4",
				"port":    float64(5000),
				"mode":    "xsalsa20_poly1305",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMessage_SessionDescription(t *testing.T) {
	t.Parallel()
	raw := `{"op":4,"d":{"mode":"xsalsa20_poly1305","secret_key":[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25,26,27,28,29,30,31,32]}}`
	m, err := decodeMessage([]byte(raw))
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	if m.Op != OpSessionDescription {
		t.Fatalf("op = %s", m.Op)
	}
	var sd SessionDescription
	if err := decodePayload(m, &sd); err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if sd.SecretKey[0] != 1 || sd.SecretKey[31] != 32 {
		t.Errorf("key = %v", sd.SecretKey)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	t.Parallel()
	if _, err := decodeMessage([]byte(`{"op":`)); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("err = %v, want ErrProtocolViolation", err)
	}
	m, err := decodeMessage([]byte(`{"op":2,"d":"nope"}`))
	if err != nil {
		t.Fatalf("decodeMessage: %v", err)
	}
	var r Ready
	if err := decodePayload(m, &r); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("payload err = %v, want ErrProtocolViolation", err)
	}
}

func TestOpcode_Known(t *testing.T) {
	t.Parallel()
	if Opcode(12).known() || Opcode(18).known() {
		t.Error("unassigned opcodes reported as known")
	}
	if !OpClientDisconnect.known() || !OpHello.known() {
		t.Error("assigned opcodes reported as unknown")
	}
	if OpHello.String() != "hello" || Opcode(99).String() != "op(99)" {
		t.Errorf("String: %q %q", OpHello.String(), Opcode(99).String())
	}
}

func TestInitData_ControlURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		endpoint, want string
	}{
		{"eu-west1.discord.media:80", "wss://eu-west1.discord.media?v=4"},
		{"eu-west1.discord.media", "wss://eu-west1.discord.media?v=4"},
		{"ws://127.0.0.1:9999/voice", "ws://127.0.0.1:9999/voice?v=4"},
		{"ws://127.0.0.1:9999/voice?x=1", "ws://127.0.0.1:9999/voice?x=1&v=4"},
	}
	for _, tt := range tests {
		if got := (InitData{Endpoint: tt.endpoint}).controlURL(); got != tt.want {
			t.Errorf("controlURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestParseDiscoveryResponse(t *testing.T) {
	t.Parallel()
	ip, port, err := parseDiscoveryResponse(buildDiscoveryResponse(7, "203.0.113.9", 50123))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ip != "203.0.113.9" || port != 50123 {
		t.Errorf("got %s:%d", ip, port)
	}
	if _, _, err := parseDiscoveryResponse(make([]byte, 10)); err == nil {
		t.Error("short response accepted")
	}
	if _, _, err := parseDiscoveryResponse(buildDiscoveryResponse(7, "", 1)); err == nil {
		t.Error("empty address accepted")
	}
}
