// Package playback implements the per-guild playback controller: the queue
// of tracks, the cursor to the track that is playing, loop flags, and the
// feeder that streams the current track's audio into a voice session.
//
// The controller never touches a session's connection state. It drives
// playback through the narrow [Sink] contract: push outbound frames and set
// the active sub-state.
//
// Typical usage:
//
//	c := playback.New(library)
//	c.Attach(guildID, session)
//	c.Enqueue(guildID, track)
//	c.Play(guildID)
package playback
