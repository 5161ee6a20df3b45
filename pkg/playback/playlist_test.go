package playback

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func tracks(ids ...string) []Track {
	out := make([]Track, len(ids))
	for i, id := range ids {
		out[i] = Track{ID: id, Title: id}
	}
	return out
}

func ids(ts []Track) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}

func TestPlaylist_Advance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		current   int
		loopOne   bool
		loopAll   bool
		wantOK    bool
		wantIndex int
		wantLen   int
	}{
		{name: "middle", current: 0, wantOK: true, wantIndex: 1, wantLen: 3},
		{name: "last without loop stops", current: 2, wantOK: false, wantIndex: NoTrack, wantLen: 0},
		{name: "last with loop-all wraps", current: 2, loopAll: true, wantOK: true, wantIndex: 0, wantLen: 3},
		{name: "loop-one stays", current: 1, loopOne: true, wantOK: true, wantIndex: 1, wantLen: 3},
		{name: "loop-one beats loop-all", current: 2, loopOne: true, loopAll: true, wantOK: true, wantIndex: 2, wantLen: 3},
		{name: "no selection starts at first", current: NoTrack, wantOK: true, wantIndex: 0, wantLen: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Playlist{Tracks: tracks("a", "b", "c"), Current: tt.current, LoopOne: tt.loopOne, LoopAll: tt.loopAll}
			if got := p.advance(); got != tt.wantOK {
				t.Errorf("advance = %v, want %v", got, tt.wantOK)
			}
			if p.Current != tt.wantIndex {
				t.Errorf("Current = %d, want %d", p.Current, tt.wantIndex)
			}
			if len(p.Tracks) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(p.Tracks), tt.wantLen)
			}
		})
	}
}

func TestPlaylist_AdvanceEmpty(t *testing.T) {
	t.Parallel()
	p := NewPlaylist()
	p.LoopAll = true
	if p.advance() {
		t.Error("advance on empty playlist reported a track")
	}
	if p.start() {
		t.Error("start on empty playlist reported a track")
	}
	if _, ok := p.CurrentTrack(); ok {
		t.Error("empty playlist has a current track")
	}
}

// TestPlaylist_CursorAlwaysValid drives random operation sequences and checks
// that the cursor is always an index into Tracks or NoTrack.
func TestPlaylist_CursorAlwaysValid(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))

	for run := range 200 {
		p := NewPlaylist()
		for step := range 100 {
			switch r.IntN(6) {
			case 0, 1:
				p.enqueue(Track{ID: "t"})
			case 2:
				p.advance()
			case 3:
				p.start()
			case 4:
				p.move(r.IntN(5), r.IntN(5))
			case 5:
				p.LoopAll = !p.LoopAll
			}
			if p.Current != NoTrack && (p.Current < 0 || p.Current >= len(p.Tracks)) {
				t.Fatalf("run %d step %d: cursor %d with %d tracks", run, step, p.Current, len(p.Tracks))
			}
		}
	}
}

func TestPlaylist_Move(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		from, to    int
		want        []string
		wantCurrent string
		wantOK      bool
	}{
		{name: "current forward", from: 1, to: 3, want: []string{"a", "c", "d", "b"}, wantCurrent: "b", wantOK: true},
		{name: "before current to after", from: 0, to: 2, want: []string{"b", "c", "a", "d"}, wantCurrent: "b", wantOK: true},
		{name: "after current to before", from: 3, to: 0, want: []string{"d", "a", "b", "c"}, wantCurrent: "b", wantOK: true},
		{name: "after current stays after", from: 2, to: 3, want: []string{"a", "b", "d", "c"}, wantCurrent: "b", wantOK: true},
		{name: "same index", from: 2, to: 2, want: []string{"a", "b", "c", "d"}, wantCurrent: "b", wantOK: true},
		{name: "out of range", from: 4, to: 0, want: []string{"a", "b", "c", "d"}, wantCurrent: "b"},
		{name: "negative", from: -1, to: 0, want: []string{"a", "b", "c", "d"}, wantCurrent: "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := Playlist{Tracks: tracks("a", "b", "c", "d"), Current: 1}
			if got := p.move(tt.from, tt.to); got != tt.wantOK {
				t.Errorf("move = %v, want %v", got, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, ids(p.Tracks)); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
			cur, _ := p.CurrentTrack()
			if cur.ID != tt.wantCurrent {
				t.Errorf("current = %q, want %q", cur.ID, tt.wantCurrent)
			}
		})
	}
}

func TestPlaylist_SetCurrent(t *testing.T) {
	t.Parallel()

	p := NewPlaylist()
	p.enqueue(Track{ID: "b"})
	p.setCurrent(Track{ID: "a"})
	if diff := cmp.Diff([]string{"a", "b"}, ids(p.Tracks)); diff != "" {
		t.Errorf("insert mismatch (-want +got):\n%s", diff)
	}
	if p.Current != 0 {
		t.Errorf("Current = %d", p.Current)
	}

	p.setCurrent(Track{ID: "z"})
	if diff := cmp.Diff([]string{"z", "b"}, ids(p.Tracks)); diff != "" {
		t.Errorf("replace mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaylist_CloneAndUpcoming(t *testing.T) {
	t.Parallel()

	p := Playlist{Tracks: tracks("a", "b", "c"), Current: 0}
	cp := p.Clone()
	cp.Tracks[0].ID = "x"
	if p.Tracks[0].ID != "a" {
		t.Error("Clone shares the track slice")
	}
	if diff := cmp.Diff([]string{"b", "c"}, ids(p.Upcoming())); diff != "" {
		t.Errorf("Upcoming mismatch (-want +got):\n%s", diff)
	}
	p.Current = NoTrack
	if got := len(p.Upcoming()); got != 3 {
		t.Errorf("Upcoming with no selection = %d tracks, want 3", got)
	}
}
