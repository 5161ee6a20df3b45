// Package audio defines the frame types, codec capability interfaces and
// sample-level helpers shared by the voice transport and the playback layer.
//
// The codec is deliberately opaque: an [Encoder] turns one packet's worth of
// PCM into a compressed frame and a [Decoder] does the inverse. Concrete
// implementations live in audio/opus; tests use trivial fakes.
//
// PCM everywhere in this module is signed 16-bit little-endian, interleaved,
// 48 kHz stereo unless an [AudioFrame] says otherwise.
package audio
