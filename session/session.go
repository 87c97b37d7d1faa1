// Package session is the client side of a room: it owns one WebSocket to
// the relay, sends encoded messages and publishes what it receives.
//
// A Session never reconnects by itself. When the transport fails it moves
// to Disconnected and stays there until the caller calls Connect again.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"phone-party/gesture"
	"phone-party/protocol"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Active reports whether the state is Connecting or Connected.
func (s State) Active() bool {
	return s == Connecting || s == Connected
}

var (
	ErrNotConnected = errors.New("session: not connected")
	ErrClosed       = errors.New("session: closed")
	ErrInvalidRoom  = errors.New("session: invalid room name")
)

const (
	closeWait       = time.Second
	inboxSize       = 64
	subscriberQueue = 64
)

// Update is published once per received text message. Seq increases by one
// for every message, so identical consecutive payloads stay distinct.
// Event is nil unless the message decoded as a circle; treat it as read-only.
type Update struct {
	Seq        uint64
	Raw        string
	ReceivedAt time.Time
	Event      *gesture.Event
}

type Snapshot struct {
	State        State
	LastMessage  string
	LastReceived time.Time
	Event        *gesture.Event
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

type Session struct {
	base   *url.URL
	dialer *websocket.Dialer
	log    *slog.Logger
	now    func() time.Time

	// lifecycle serializes Connect, Disconnect and Close.
	lifecycle sync.Mutex

	mu         sync.Mutex
	state      State
	stateCh    chan struct{}
	conn       *websocket.Conn
	room       string
	gen        uint64
	cancelDial context.CancelFunc
	loopDone   chan struct{}
	closed     bool

	writeMu sync.Mutex

	inbox       chan Update
	quit        chan struct{}
	updaterDone chan struct{}

	snapMu       sync.Mutex
	seq          uint64
	lastMessage  string
	lastReceived time.Time
	event        *gesture.Event
	subs         map[int]chan Update
	nextSub      int
}

// New creates a disconnected session for a relay whose rooms live under
// baseURL, e.g. wss://relay.example.com/party.
func New(baseURL string, opts ...Option) (*Session, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("relay url %q: scheme must be ws or wss", baseURL)
	}

	s := &Session{
		base:        u,
		dialer:      websocket.DefaultDialer,
		log:         slog.Default(),
		now:         time.Now,
		stateCh:     make(chan struct{}),
		inbox:       make(chan Update, inboxSize),
		quit:        make(chan struct{}),
		updaterDone: make(chan struct{}),
		subs:        make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.dispatch()
	return s, nil
}

// RoomURL returns the address of the named room on this session's relay.
func (s *Session) RoomURL(room string) (string, error) {
	if room == "" || strings.Contains(room, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoom, room)
	}
	return s.base.JoinPath(url.PathEscape(room)).String(), nil
}

// Connect starts joining room and returns without waiting for the
// handshake. An active connection is closed first and its receive loop
// awaited, so a session never holds two connections.
func (s *Session) Connect(room string) error {
	target, err := s.RoomURL(room)
	if err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	s.disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.room = room
	s.cancelDial = cancel
	s.loopDone = done
	s.setStateLocked(Connecting)
	s.mu.Unlock()

	s.log.Info("connecting", "room", room, "url", target)
	go s.run(ctx, gen, target, done)
	return nil
}

// Disconnect closes the connection with a going-away close frame and waits
// for the receive loop to stop. It is a no-op when already disconnected.
func (s *Session) Disconnect() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.disconnect()
}

// Close disconnects and stops publishing. Subscriber channels are closed
// and every later Connect or Send fails with ErrClosed.
func (s *Session) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.disconnect()
	close(s.quit)
	<-s.updaterDone

	s.snapMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.snapMu.Unlock()
}

// Send writes one text message. It may run concurrently with the receive
// loop. Sending while not connected is logged and returns ErrNotConnected.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	conn, state, closed, room := s.conn, s.state, s.closed, s.room
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil || state != Connected {
		s.log.Warn("send while not connected", "state", state.String())
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		s.log.Error("send failed", "room", room, "error", err)
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// SendEvent encodes e and sends it.
func (s *Session) SendEvent(e gesture.Event) error {
	msg, err := gesture.Encode(e)
	if err != nil {
		return err
	}
	return s.Send(msg)
}

func (s *Session) Ping() error {
	return s.Send(protocol.Ping)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// WaitState blocks until the session reaches want or ctx is done.
func (s *Session) WaitState(ctx context.Context, want State) error {
	for {
		s.mu.Lock()
		state, changed := s.state, s.stateCh
		s.mu.Unlock()

		if state == want {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AwaitConnect waits for a pending Connect to settle. It returns nil once
// connected and ErrNotConnected if the handshake failed or the session was
// disconnected meanwhile.
func (s *Session) AwaitConnect(ctx context.Context) error {
	for {
		s.mu.Lock()
		state, changed := s.state, s.stateCh
		s.mu.Unlock()

		switch state {
		case Connected:
			return nil
		case Disconnected:
			return ErrNotConnected
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) Snapshot() Snapshot {
	state := s.State()

	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	snap := Snapshot{
		State:        state,
		LastMessage:  s.lastMessage,
		LastReceived: s.lastReceived,
	}
	if s.event != nil {
		ev := *s.event
		snap.Event = &ev
	}
	return snap
}

// TakeEvent returns the pending decoded event and clears it.
func (s *Session) TakeEvent() (gesture.Event, bool) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.event == nil {
		return gesture.Event{}, false
	}
	ev := *s.event
	s.event = nil
	return ev, true
}

// Subscribe returns a channel receiving every Update from now on and a
// function that cancels the subscription. A subscriber that falls more than
// its buffer behind loses updates rather than stalling the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberQueue)

	s.snapMu.Lock()
	if s.isClosed() {
		s.snapMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.snapMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.snapMu.Lock()
			defer s.snapMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// disconnect must be called with the lifecycle lock held.
func (s *Session) disconnect() {
	s.mu.Lock()
	if s.loopDone == nil {
		s.mu.Unlock()
		return
	}
	s.gen++
	conn, cancel, done, room := s.conn, s.cancelDial, s.loopDone, s.room
	s.conn = nil
	s.cancelDial = nil
	s.loopDone = nil
	s.setStateLocked(Disconnected)
	s.mu.Unlock()

	cancel()
	if conn != nil {
		err := conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(closeWait))
		if err != nil {
			s.log.Debug("close frame not sent", "room", room, "error", err)
		}
		conn.Close()
	}
	<-done
	s.log.Info("disconnected", "room", room)
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	close(s.stateCh)
	s.stateCh = make(chan struct{})
}

func (s *Session) run(ctx context.Context, gen uint64, target string, done chan struct{}) {
	defer close(done)

	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		s.mu.Lock()
		current := s.gen == gen
		if current {
			s.setStateLocked(Disconnected)
		}
		s.mu.Unlock()
		if current {
			s.log.Error("connect failed", "url", target, "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.setStateLocked(Connected)
	s.mu.Unlock()

	s.log.Info("connected", "url", target)
	s.readLoop(gen, conn)
}

// readLoop owns reads on conn. Each message is timestamped and decoded here,
// then handed to the dispatch goroutine which applies it.
func (s *Session) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			current := s.gen == gen
			if current {
				s.conn = nil
				s.setStateLocked(Disconnected)
			}
			s.mu.Unlock()

			if current {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.log.Info("connection closed by relay", "error", err)
				} else {
					s.log.Error("receive failed", "error", err)
				}
				conn.Close()
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		u := Update{Raw: string(data), ReceivedAt: s.now()}
		if ev, ok := s.decode(u.Raw); ok {
			u.Event = &ev
		}

		select {
		case s.inbox <- u:
		case <-s.quit:
			return
		}
	}
}

func (s *Session) decode(raw string) (gesture.Event, bool) {
	if raw == protocol.Ping || raw == protocol.Pong {
		return gesture.Event{}, false
	}
	ev, err := gesture.Decode(raw)
	if err != nil {
		if !errors.Is(err, gesture.ErrNotCircle) {
			s.log.Debug("dropping invalid circle", "error", err)
		}
		return gesture.Event{}, false
	}
	return ev, true
}

func (s *Session) dispatch() {
	defer close(s.updaterDone)
	for {
		select {
		case u := <-s.inbox:
			s.apply(u)
		case <-s.quit:
			return
		}
	}
}

func (s *Session) apply(u Update) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	s.seq++
	u.Seq = s.seq
	s.lastMessage = u.Raw
	s.lastReceived = u.ReceivedAt
	if u.Event != nil {
		ev := *u.Event
		s.event = &ev
	}

	for id, ch := range s.subs {
		select {
		case ch <- u:
		default:
			s.log.Warn("subscriber lagging, update dropped", "subscriber", id, "seq", u.Seq)
		}
	}
}
