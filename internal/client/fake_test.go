package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/boardsync/internal/client"
	"github.com/gosuda/boardsync/internal/domain"
	"github.com/gosuda/boardsync/internal/realtime"
)

const waitFor = 2 * time.Second

var errSocketClosed = errors.New("fake socket closed")

// fakeSocket is the client end of an in-memory connection.
type fakeSocket struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan []byte, 64), closed: make(chan struct{})}
}

func (s *fakeSocket) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-s.in:
		return f, nil
	case <-s.closed:
		return nil, errSocketClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSocket) Write(_ context.Context, frame []byte) error {
	select {
	case <-s.closed:
		return errSocketClosed
	default:
	}
	s.mu.Lock()
	s.sent = append(s.sent, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// push delivers env to the client as if the server sent it.
func (s *fakeSocket) push(t *testing.T, env realtime.Envelope) {
	t.Helper()
	frame, err := realtime.Encode(env)
	require.NoError(t, err)
	s.in <- frame
}

func (s *fakeSocket) envelopes(t *testing.T) []realtime.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Envelope, 0, len(s.sent))
	for _, f := range s.sent {
		env, err := realtime.Decode(f)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (s *fakeSocket) types(t *testing.T) []realtime.MessageType {
	t.Helper()
	envs := s.envelopes(t)
	out := make([]realtime.MessageType, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

func (s *fakeSocket) count(t *testing.T, typ realtime.MessageType) int {
	t.Helper()
	n := 0
	for _, got := range s.types(t) {
		if got == typ {
			n++
		}
	}
	return n
}

// fakeServer hands out fakeSockets and can fail or hold dials.
type fakeServer struct {
	mu       sync.Mutex
	started  int
	dials    int
	urls     []string
	sockets  []*fakeSocket
	failures int
	failErr  error
	gate     chan struct{}
}

func (s *fakeServer) dial(ctx context.Context, url string) (client.Socket, error) {
	s.mu.Lock()
	s.started++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	s.urls = append(s.urls, url)
	if s.failures > 0 {
		s.failures--
		return nil, s.failErr
	}
	sock := newFakeSocket()
	s.sockets = append(s.sockets, sock)
	return sock, nil
}

func (s *fakeServer) hold() {
	s.mu.Lock()
	s.gate = make(chan struct{})
	s.mu.Unlock()
}

func (s *fakeServer) release() {
	s.mu.Lock()
	close(s.gate)
	s.gate = nil
	s.mu.Unlock()
}

func (s *fakeServer) fail(n int, err error) {
	s.mu.Lock()
	s.failures, s.failErr = n, err
	s.mu.Unlock()
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) socketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

func (s *fakeServer) socket(i int) *fakeSocket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sockets[i]
}

func (s *fakeServer) last() *fakeSocket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sockets[len(s.sockets)-1]
}

func newTransport(t *testing.T, srv *fakeServer, opts ...func(*client.TransportConfig)) *client.Transport {
	t.Helper()
	cfg := client.TransportConfig{
		Endpoint:             "ws://boardsync.test/ws",
		Credentials:          client.StaticToken("tok"),
		Backoff:              func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		Dialer:               srv.dial,
		MaxReconnectAttempts: 3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	tr, err := client.NewTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

// statusLog records every state reported to status listeners.
type statusLog struct {
	mu     sync.Mutex
	states []client.State
}

func watchStatus(tr *client.Transport) *statusLog {
	l := &statusLog{}
	tr.OnStatus(func(s client.State) {
		l.mu.Lock()
		l.states = append(l.states, s)
		l.mu.Unlock()
	})
	return l
}

func (l *statusLog) saw(s client.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.states {
		if got == s {
			return true
		}
	}
	return false
}

func waitState(t *testing.T, tr *client.Transport, want client.State) {
	t.Helper()
	assert.Eventually(t, func() bool { return tr.State() == want }, waitFor, 5*time.Millisecond,
		"transport never reached %s", want)
}

func boardEnvelope(t *testing.T, typ realtime.MessageType, projectID uuid.UUID, tasks []realtime.TaskSummary) realtime.Envelope {
	t.Helper()
	env, err := realtime.NewEnvelope(typ, realtime.BoardPayload{ProjectID: projectID, Tasks: tasks})
	require.NoError(t, err)
	return env
}

func summary(title string, status domain.TaskStatus) realtime.TaskSummary {
	return realtime.TaskSummary{
		ID:       uuid.New(),
		Title:    title,
		Status:   status,
		Priority: domain.TaskPriorityMedium,
		Tags:     []string{},
	}
}
