package app_test

import (
	"context"
	"sync"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// fakeSession is a voice session that ends when its Done channel closes.
type fakeSession struct {
	mu     sync.Mutex
	frames int
	states []voice.ActiveState
	done   chan struct{}
	once   sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (s *fakeSession) Push(audio.AudioFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
}

func (s *fakeSession) SetActive(st voice.ActiveState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) end() { s.once.Do(func() { close(s.done) }) }

// fakeConnector records calls and hands out fakeSessions.
type fakeConnector struct {
	mu       sync.Mutex
	err      error
	entered  chan struct{} // receives once per Connect call, if set
	release  chan struct{} // Connect blocks on it, if set
	connects []string
	leaves   int
	closed   bool
	sessions []*fakeSession
}

func (c *fakeConnector) Connect(ctx context.Context, channelID string) (app.Session, error) {
	c.mu.Lock()
	c.connects = append(c.connects, channelID)
	err, entered, release := c.err, c.entered, c.release
	c.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s := newFakeSession()
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *fakeConnector) Leave(_ context.Context, sess app.Session) error {
	c.mu.Lock()
	c.leaves++
	c.mu.Unlock()
	if s, ok := sess.(*fakeSession); ok {
		s.end()
	}
	return nil
}

func (c *fakeConnector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConnector) counts() (connects, leaves int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.connects), c.leaves
}

func (c *fakeConnector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnector) last() *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return nil
	}
	return c.sessions[len(c.sessions)-1]
}

// connectorSet hands out one fakeConnector per guild.
type connectorSet struct {
	mu    sync.Mutex
	err   error
	conns map[string]*fakeConnector
}

func newConnectorSet() *connectorSet {
	return &connectorSet{conns: make(map[string]*fakeConnector)}
}

func (cs *connectorSet) factory(guildID string) (app.Connector, error) {
	return cs.get(guildID), cs.err
}

func (cs *connectorSet) get(guildID string) *fakeConnector {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	c, ok := cs.conns[guildID]
	if !ok {
		c = &fakeConnector{}
		cs.conns[guildID] = c
	}
	return c
}
