// Package voice implements the client side of a Discord-compatible voice
// session: the control-channel handshake, heartbeats and reconnects, the
// encrypted RTP media channel, and the per-tick outbound and inbound audio
// pipelines.
//
// A [Session] is created from the init data collected on the main gateway
// (see audio/discord) and driven through the handshake by [Session.Connect].
// Once ready, three goroutines run until [Session.Disconnect]: the control
// reader, the media reader and the 20 ms tick driver, plus a keepalive that
// owns all control-channel writes after the handshake.
//
// Callers feed audio with [Session.Push] and steer playback through
// [Session.SetActive]; mixed audio from remote speakers is available on
// [Session.Inbound].
package voice
