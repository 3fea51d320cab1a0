// Package client is the board sync client: a reconnecting duplex transport,
// ref-counted topic subscriptions and the optimistic board coordinator.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/realtime"
)

// State is the lifecycle state of a Transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateReconnectScheduled
	// StateGaveUp is only reported to status listeners. The transport itself
	// is DISCONNECTED once reconnection has been abandoned.
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateReconnectScheduled:
		return "RECONNECT_SCHEDULED"
	case StateGaveUp:
		return "GAVE_UP"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrDisconnected = errors.New("client: transport disconnected")
	ErrClosed       = errors.New("client: transport closed")
)

// CredentialFunc returns the bearer token presented when a connection opens.
type CredentialFunc func(ctx context.Context) (string, error)

// StaticToken always presents the same token.
func StaticToken(token string) CredentialFunc {
	return func(context.Context) (string, error) { return token, nil }
}

const (
	defaultQueueSize            = 256
	defaultMaxReconnectAttempts = 10
	defaultWriteTimeout         = 10 * time.Second
	inboundBuffer               = 256
)

// TransportConfig is everything a Transport needs from its environment.
type TransportConfig struct {
	// Endpoint is the websocket URL, e.g. ws://localhost:8080/ws.
	Endpoint    string
	Credentials CredentialFunc
	// Backoff builds a fresh policy for each reconnect episode.
	Backoff func() backoff.BackOff
	Dialer  Dialer

	QueueSize            int
	MaxReconnectAttempts int
	WriteTimeout         time.Duration
}

// DefaultBackoff is exponential from 500ms up to 30s between attempts.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.Backoff == nil {
		c.Backoff = DefaultBackoff
	}
	if c.Dialer == nil {
		c.Dialer = WebSocketDialer(nil, 0)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Listener receives inbound envelopes of one type.
type Listener func(realtime.Envelope)

// StatusListener receives transport state changes.
type StatusListener func(State)

type listenerEntry struct {
	id uint64
	fn Listener
}

type statusEntry struct {
	id uint64
	fn StatusListener
}

// event is either an inbound envelope or a state change. Both travel the
// same channel so listeners observe them in order.
type event struct {
	env    realtime.Envelope
	state  State
	status bool
}

// attempt is one in-flight connect shared by every concurrent caller.
type attempt struct {
	done chan struct{}
	err  error
}

func newAttempt() *attempt { return &attempt{done: make(chan struct{})} }

func (a *attempt) finish(err error) {
	a.err = err
	close(a.done)
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transport owns one logical connection to the board sync server. It queues
// outbound envelopes while not open, reconnects after unexpected drops and
// delivers inbound envelopes to listeners from a single dispatch goroutine.
//
// Lock order: Transport.mu before SubscriptionManager.mu.
type Transport struct {
	cfg      TransportConfig
	endpoint *url.URL
	subs     *SubscriptionManager

	mu        sync.Mutex
	state     State
	sock      Socket
	epoch     uint64
	runCtx    context.Context //nolint:containedctx // lifetime of the current connect/reconnect cycle
	runCancel context.CancelFunc
	inflight  *attempt
	queue     *queue
	notes     []State
	closed    bool

	lmu       sync.RWMutex
	listeners map[realtime.MessageType][]listenerEntry
	statuses  []statusEntry
	nextID    uint64

	inbound   chan event
	quit      chan struct{}
	closeOnce sync.Once
}

// NewTransport validates cfg and starts the dispatch goroutine. Call Close
// when done with the transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("client.NewTransport: endpoint is required")
	}
	if cfg.Credentials == nil {
		return nil, errors.New("client.NewTransport: credentials are required")
	}
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("client.NewTransport: endpoint: %w", err)
	}
	cfg = cfg.withDefaults()

	t := &Transport{
		cfg:       cfg,
		endpoint:  endpoint,
		queue:     newQueue(cfg.QueueSize),
		listeners: make(map[realtime.MessageType][]listenerEntry),
		inbound:   make(chan event, inboundBuffer),
		quit:      make(chan struct{}),
	}
	t.subs = newSubscriptionManager(t)
	go t.dispatchLoop()
	return t, nil
}

// Subscriptions returns the ref-counting manager bound to this transport.
func (t *Transport) Subscriptions() *SubscriptionManager { return t.subs }

// State returns the current lifecycle state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// QueueLen reports how many frames wait for the next open.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue.len()
}

// Connect opens the connection. It returns immediately when already open and
// joins the in-flight attempt when one is running, including a reconnect.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.state == StateOpen {
		t.mu.Unlock()
		return nil
	}
	if a := t.inflight; a != nil {
		t.mu.Unlock()
		return a.wait(ctx)
	}
	if t.runCtx == nil {
		t.runCtx, t.runCancel = context.WithCancel(context.Background())
	}
	a := newAttempt()
	t.inflight = a
	epoch, runCtx := t.epoch, t.runCtx
	t.setStateLocked(StateConnecting)
	t.unlockAndNotify()

	err := t.open(ctx, runCtx, epoch)

	t.mu.Lock()
	if t.inflight == a {
		t.inflight = nil
	}
	if err != nil && t.epoch == epoch && t.state == StateConnecting {
		t.setStateLocked(StateDisconnected)
	}
	t.unlockAndNotify()
	a.finish(err)
	return err
}

// Disconnect closes the connection without reconnecting and discards every
// queued frame. Subscriptions held in the manager survive and are re-sent by
// the next Connect.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.epoch++
	if t.runCancel != nil {
		t.runCancel()
		t.runCtx, t.runCancel = nil, nil
	}
	t.inflight = nil
	t.queue.reset()
	sock := t.sock
	t.sock = nil
	if sock != nil {
		t.setStateLocked(StateClosing)
	}
	t.setStateLocked(StateDisconnected)
	t.unlockAndNotify()

	if sock != nil {
		_ = sock.Close()
	}
}

// Close disconnects and stops the dispatch goroutine. The transport cannot
// be reused.
func (t *Transport) Close() {
	t.Disconnect()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeOnce.Do(func() { close(t.quit) })
}

// Send writes env when open and queues it otherwise. ErrQueueFull is
// returned when the queue is at capacity.
func (t *Transport) Send(env realtime.Envelope) error {
	frame, err := realtime.Encode(env)
	if err != nil {
		return fmt.Errorf("client.Transport.Send: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.state == StateOpen && t.sock != nil {
		werr := t.write(t.runCtx, t.sock, frame)
		if werr == nil {
			return nil
		}
		// the reader sees the closed socket and schedules the reconnect
		log.Warn().Err(werr).Str("type", string(env.Type)).Msg("client: write failed, queueing")
		_ = t.sock.Close()
	}
	if err := t.queue.push(frame); err != nil {
		return fmt.Errorf("client.Transport.Send %s: %w", env.Type, err)
	}
	return nil
}

// sendIfOpen writes env only when the connection is open. Nothing is queued.
// still, when set, is checked under t.mu right before the write; the frame is
// skipped when it reports false. Writes are serialized by t.mu, so a check
// made there sees every state change that reached the wire before it.
func (t *Transport) sendIfOpen(env realtime.Envelope, still func() bool) (bool, error) {
	frame, err := realtime.Encode(env)
	if err != nil {
		return false, fmt.Errorf("client.Transport.sendIfOpen: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen || t.sock == nil {
		return false, nil
	}
	if still != nil && !still() {
		return false, nil
	}
	if err := t.write(t.runCtx, t.sock, frame); err != nil {
		_ = t.sock.Close()
		return false, fmt.Errorf("client.Transport.sendIfOpen: %w", err)
	}
	return true, nil
}

// On registers fn for inbound envelopes of typ. The returned func removes it.
func (t *Transport) On(typ realtime.MessageType, fn Listener) func() {
	t.lmu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners[typ] = append(t.listeners[typ], listenerEntry{id: id, fn: fn})
	t.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.lmu.Lock()
			t.listeners[typ] = slices.DeleteFunc(t.listeners[typ], func(e listenerEntry) bool { return e.id == id })
			t.lmu.Unlock()
		})
	}
}

// OnStatus registers fn for state changes. The returned func removes it.
func (t *Transport) OnStatus(fn StatusListener) func() {
	t.lmu.Lock()
	t.nextID++
	id := t.nextID
	t.statuses = append(t.statuses, statusEntry{id: id, fn: fn})
	t.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.lmu.Lock()
			t.statuses = slices.DeleteFunc(t.statuses, func(e statusEntry) bool { return e.id == id })
			t.lmu.Unlock()
		})
	}
}

// open dials, re-subscribes, flushes the queue and starts the reader. The
// caller has already moved the state to CONNECTING.
func (t *Transport) open(ctx, runCtx context.Context, epoch uint64) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(runCtx, cancel)
	defer stop()

	token, err := t.cfg.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("client.Transport.open: credentials: %w", err)
	}
	sock, err := t.cfg.Dialer(ctx, t.dialURL(token))
	if err != nil {
		return fmt.Errorf("client.Transport.open: %w", err)
	}

	t.mu.Lock()
	if t.epoch != epoch {
		t.mu.Unlock()
		_ = sock.Close()
		return ErrDisconnected
	}
	if err := t.flushLocked(runCtx, sock); err != nil {
		t.mu.Unlock()
		_ = sock.Close()
		return fmt.Errorf("client.Transport.open: flush: %w", err)
	}
	t.sock = sock
	t.setStateLocked(StateOpen)
	t.unlockAndNotify()

	log.Debug().Str("endpoint", t.endpoint.Redacted()).Msg("client: connection open")
	go t.readLoop(runCtx, sock, epoch)
	return nil
}

// flushLocked sends SUBSCRIBE for every active topic, then the queued frames
// in FIFO order. A frame leaves the queue only once written.
func (t *Transport) flushLocked(ctx context.Context, sock Socket) error {
	for _, topic := range t.subs.Active() {
		env, err := realtime.SubscribeEnvelope(topic)
		if err != nil {
			log.Warn().Err(err).Str("topic", string(topic)).Msg("client: skipping resubscribe")
			continue
		}
		frame, err := realtime.Encode(env)
		if err != nil {
			return err
		}
		if err := t.write(ctx, sock, frame); err != nil {
			return err
		}
	}
	for {
		frame, ok := t.queue.peek()
		if !ok {
			return nil
		}
		if err := t.write(ctx, sock, frame); err != nil {
			return err
		}
		t.queue.pop()
	}
}

func (t *Transport) write(ctx context.Context, sock Socket, frame []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.WriteTimeout)
	defer cancel()
	return sock.Write(ctx, frame)
}

func (t *Transport) dialURL(token string) string {
	u := *t.endpoint
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (t *Transport) readLoop(ctx context.Context, sock Socket, epoch uint64) {
	for {
		data, err := sock.Read(ctx)
		if err != nil {
			t.dropped(sock, epoch, err)
			return
		}
		env, err := realtime.Decode(data)
		if err != nil {
			log.Debug().Err(err).Msg("client: ignoring malformed frame")
			continue
		}
		select {
		case t.inbound <- event{env: env}:
		case <-ctx.Done():
			return
		case <-t.quit:
			return
		}
	}
}

// dropped handles the end of a reader. Only an unexpected loss of the
// current socket schedules a reconnect.
func (t *Transport) dropped(sock Socket, epoch uint64, cause error) {
	t.mu.Lock()
	if t.sock != sock || t.epoch != epoch {
		t.mu.Unlock()
		return
	}
	t.sock = nil
	a := newAttempt()
	t.inflight = a
	runCtx := t.runCtx
	t.setStateLocked(StateReconnectScheduled)
	t.unlockAndNotify()

	_ = sock.Close()
	log.Warn().Err(cause).Msg("client: connection lost, reconnecting")
	go t.reconnect(runCtx, epoch, a)
}

func (t *Transport) reconnect(ctx context.Context, epoch uint64, a *attempt) {
	op := func() error {
		t.mu.Lock()
		if t.epoch != epoch {
			t.mu.Unlock()
			return backoff.Permanent(ErrDisconnected)
		}
		t.setStateLocked(StateConnecting)
		t.unlockAndNotify()

		err := t.open(ctx, ctx, epoch)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrDisconnected) {
			return backoff.Permanent(err)
		}
		t.mu.Lock()
		if t.epoch == epoch {
			t.setStateLocked(StateReconnectScheduled)
		}
		t.unlockAndNotify()
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("client: reconnect failed")
	}

	policy := backoff.WithMaxRetries(t.cfg.Backoff(), uint64(t.cfg.MaxReconnectAttempts-1)) //nolint:gosec // positive after defaults
	err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify)

	t.mu.Lock()
	if t.inflight == a {
		t.inflight = nil
	}
	if err != nil && t.epoch == epoch {
		t.setStateLocked(StateDisconnected)
		t.notes = append(t.notes, StateGaveUp)
		log.Error().Err(err).Int("attempts", t.cfg.MaxReconnectAttempts).Msg("client: giving up on reconnect")
	}
	t.unlockAndNotify()
	a.finish(err)
}

func (t *Transport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	t.notes = append(t.notes, s)
}

// unlockAndNotify releases t.mu and then posts the state changes recorded
// while it was held.
func (t *Transport) unlockAndNotify() {
	notes := t.notes
	t.notes = nil
	t.mu.Unlock()
	for _, s := range notes {
		select {
		case t.inbound <- event{state: s, status: true}:
		case <-t.quit:
			return
		}
	}
}

func (t *Transport) dispatchLoop() {
	for {
		select {
		case ev := <-t.inbound:
			t.dispatch(ev)
		case <-t.quit:
			return
		}
	}
}

func (t *Transport) dispatch(ev event) {
	t.lmu.RLock()
	if ev.status {
		fns := slices.Clone(t.statuses)
		t.lmu.RUnlock()
		for _, e := range fns {
			safeCall(ev.state.String(), func() { e.fn(ev.state) })
		}
		return
	}
	fns := slices.Clone(t.listeners[ev.env.Type])
	t.lmu.RUnlock()
	for _, e := range fns {
		safeCall(string(ev.env.Type), func() { e.fn(ev.env) })
	}
}

// safeCall isolates listeners from each other.
func safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", what).Msg("client: listener panicked")
		}
	}()
	fn()
}
