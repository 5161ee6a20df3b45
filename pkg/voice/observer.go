package voice

import "time"

// Observer receives pipeline measurements. internal/observe provides the
// OpenTelemetry-backed implementation; the default discards everything.
//
// Methods are called from hot paths and must not block.
type Observer interface {
	PacketSent()
	PacketDropped(reason string)
	DecryptFailed()
	Underrun()
	HeartbeatRTT(d time.Duration)
	HandshakeCompleted(d time.Duration)
	Reconnect(ok bool)
	ActiveSpeakers(avg float64)
}

// NopObserver is an [Observer] that does nothing.
type NopObserver struct{}

var _ Observer = NopObserver{}

func (NopObserver) PacketSent()                      {}
func (NopObserver) PacketDropped(string)             {}
func (NopObserver) DecryptFailed()                   {}
func (NopObserver) Underrun()                        {}
func (NopObserver) HeartbeatRTT(time.Duration)       {}
func (NopObserver) HandshakeCompleted(time.Duration) {}
func (NopObserver) Reconnect(bool)                   {}
func (NopObserver) ActiveSpeakers(float64)           {}
