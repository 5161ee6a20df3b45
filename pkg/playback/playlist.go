package playback

import "slices"

// NoTrack is the cursor value of a playlist with nothing selected.
const NoTrack = -1

// Playlist is an ordered queue of tracks with a cursor to the current one
// and two loop flags. The zero value is not valid; use [NewPlaylist].
type Playlist struct {
	Tracks  []Track
	Current int // index into Tracks, or NoTrack
	LoopOne bool
	LoopAll bool
}

// NewPlaylist returns an empty playlist.
func NewPlaylist() Playlist {
	return Playlist{Current: NoTrack}
}

// Clone returns a deep copy of p.
func (p Playlist) Clone() Playlist {
	p.Tracks = slices.Clone(p.Tracks)
	return p
}

// CurrentTrack returns the track under the cursor.
func (p *Playlist) CurrentTrack() (Track, bool) {
	if !p.valid(p.Current) {
		return Track{}, false
	}
	return p.Tracks[p.Current], true
}

// Upcoming returns the tracks after the cursor.
func (p *Playlist) Upcoming() []Track {
	return slices.Clone(p.Tracks[p.Current+1:])
}

// HasPlayable reports whether there is a current track or one to start.
func (p *Playlist) HasPlayable() bool {
	return len(p.Tracks) > 0
}

func (p *Playlist) valid(i int) bool {
	return i >= 0 && i < len(p.Tracks)
}

// enqueue appends t.
func (p *Playlist) enqueue(t Track) {
	p.Tracks = append(p.Tracks, t)
}

// start points the cursor at the first track if nothing is selected.
func (p *Playlist) start() bool {
	if p.valid(p.Current) {
		return true
	}
	if len(p.Tracks) == 0 {
		p.Current = NoTrack
		return false
	}
	p.Current = 0
	return true
}

// advance moves past the current track. With LoopOne the cursor stays; with
// LoopAll it wraps to the first track. Otherwise, running off the end drops
// the played tracks and leaves the cursor at NoTrack. It reports whether a
// track is selected afterwards.
func (p *Playlist) advance() bool {
	if len(p.Tracks) == 0 {
		p.Current = NoTrack
		return false
	}
	if p.LoopOne && p.valid(p.Current) {
		return true
	}
	next := p.Current + 1
	if next < len(p.Tracks) {
		p.Current = next
		return true
	}
	if p.LoopAll {
		p.Current = 0
		return true
	}
	p.Tracks = nil
	p.Current = NoTrack
	return false
}

// move repositions the track at from to index to, keeping the cursor on
// the same track.
func (p *Playlist) move(from, to int) bool {
	if !p.valid(from) || !p.valid(to) {
		return false
	}
	if from == to {
		return true
	}
	t := p.Tracks[from]
	p.Tracks = slices.Delete(p.Tracks, from, from+1)
	p.Tracks = slices.Insert(p.Tracks, to, t)

	switch {
	case p.Current == from:
		p.Current = to
	case from < p.Current && to >= p.Current:
		p.Current--
	case from > p.Current && to <= p.Current:
		p.Current++
	}
	return true
}

// setCurrent replaces the track under the cursor, or selects t as a new
// first track when nothing is selected.
func (p *Playlist) setCurrent(t Track) {
	if p.valid(p.Current) {
		p.Tracks[p.Current] = t
		return
	}
	p.Tracks = slices.Insert(p.Tracks, 0, t)
	p.Current = 0
}

// normalize repairs a cursor that does not point into Tracks.
func (p *Playlist) normalize() {
	if !p.valid(p.Current) {
		p.Current = NoTrack
	}
}
