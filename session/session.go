package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/channel"
	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/event"
	"github.com/mqy/minichat/metrics"
	"github.com/mqy/minichat/notify"
	"github.com/mqy/minichat/typing"
)

var (
	ErrNotConnected     = errors.New("session: not connected")
	ErrSessionClosed    = errors.New("session: closed")
	ErrEmptyName        = errors.New("session: display name is required")
	ErrEmptyBody        = errors.New("session: message body is empty")
	ErrUnknownRecipient = errors.New("session: recipient is not in the roster")
	ErrInvalidReaction  = errors.New("session: reaction requires a message id and a symbol")
)

const (
	defaultSubscriberBuffer = 64
	maxPendingRequests      = 128
)

type Config struct {
	// SubscriberBuffer is the capacity of each subscription channel.
	SubscriberBuffer int

	// Scheduler drives the typing debouncer; nil means runtime timers.
	Scheduler typing.Scheduler

	// NewBackoff returns the reconnect policy; nil means channel.NewBackoff.
	NewBackoff func() *channel.Backoff

	// Now stamps messages that arrive without a timestamp; nil means time.Now.
	Now func() time.Time
}

func (c *Config) withDefaults() *Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.SubscriberBuffer <= 0 {
		out.SubscriberBuffer = defaultSubscriberBuffer
	}
	if out.Scheduler == nil {
		out.Scheduler = typing.RealScheduler
	}
	if out.NewBackoff == nil {
		out.NewBackoff = channel.NewBackoff
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return &out
}

// State is a copy of the derived state of a session.
type State struct {
	Self         chat.Identity
	Connectivity chat.Connectivity
	Roster       []chat.Participant
	Typing       []string
	Timeline     []chat.Message
	Reactions    map[string]chat.Tally

	// local compose state
	Input     string
	Recipient string
}

// inbound is an event read from connection generation gen; a nil msg marks
// the end of that connection.
type inbound struct {
	gen uint64
	msg *event.ServerMsg
	err error
}

// Session is the client side of one chat session, from join to leave.
//
// All state is owned by one event loop goroutine: local intents, inbound
// events, typing timer fires and reconnect results are serialized through
// it, so none of the state below needs locking.
type Session struct {
	conf     *Config
	self     chat.Identity
	dialer   channel.Dialer
	notifier *notify.Notifier

	actions chan func()
	inbound chan inbound
	done    chan struct{}

	state        chat.Connectivity
	conn         channel.Conn
	gen          uint64
	rejoin       bool             // the current join follows a transport failure
	backoff      *channel.Backoff // reconnect policy, kept until Connected
	redialCancel context.CancelFunc
	closed       bool

	timeline *Timeline
	tallies  Tallies
	presence *Presence
	typing   *typing.Debouncer
	compose  compose
	focused  bool // the view has focus

	pending      map[string]string // request id -> intent kind
	pendingOrder []string
	subs         map[*Subscription]struct{}
}

type compose struct {
	input     string
	recipient string
	active    bool // the input has focus
}

// Join dials the remote session and announces self. The session is
// Connecting until the server acknowledges with a presence snapshot.
func Join(ctx context.Context, self chat.Identity, dialer channel.Dialer, notifier *notify.Notifier, conf *Config) (*Session, error) {
	self.Name = strings.TrimSpace(self.Name)
	if self.Name == "" {
		return nil, ErrEmptyName
	}
	if notifier == nil {
		notifier = notify.NewNotifier(notify.LogSink{}, nil)
	}

	s := &Session{
		conf:     conf.withDefaults(),
		self:     self,
		dialer:   dialer,
		notifier: notifier,
		actions:  make(chan func()),
		inbound:  make(chan inbound),
		done:     make(chan struct{}),
		timeline: NewTimeline(),
		tallies:  make(Tallies),
		presence: NewPresence(self.Name),
		pending:  make(map[string]string),
		subs:     make(map[*Subscription]struct{}),
	}
	s.typing = typing.NewDebouncer(s.conf.Scheduler, s.post, s.emitTyping)

	s.setState(chat.Connecting)
	conn, err := dialer.Dial(ctx)
	if err != nil {
		s.setState(chat.Disconnected)
		return nil, fmt.Errorf("join %q: %w", self.Name, err)
	}

	glog.Infof("session: joining as %q", self.Name)
	s.notifier.OnJoin(self)
	s.install(conn, false)
	go s.loop()
	return s, nil
}

func (s *Session) loop() {
	defer func() {
		close(s.done)
		glog.V(5).Infof("session: loop exited, self: %q", s.self.Name)
	}()

	for !s.closed {
		select {
		case fn := <-s.actions:
			fn()
		case in := <-s.inbound:
			s.handleInbound(in)
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.actions <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrSessionClosed
	}
	<-ran
	return nil
}

// post queues fn on the event loop without waiting for it to run; fn is
// dropped when the session is gone.
func (s *Session) post(fn func()) {
	select {
	case s.actions <- fn:
	case <-s.done:
	}
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Self() chat.Identity {
	return s.self
}

// Disconnect sends leave once and tears the session down. It is idempotent.
func (s *Session) Disconnect() {
	_ = s.do(func() {
		s.teardown(true)
	})
}

// Snapshot returns a copy of the current state. It stays readable after the
// session is torn down.
func (s *Session) Snapshot() State {
	var out State
	if err := s.do(func() { out = s.snapshot() }); err != nil {
		// the loop has exited, nothing mutates the state any more.
		out = s.snapshot()
	}
	return out
}

func (s *Session) Connectivity() chat.Connectivity {
	return s.Snapshot().Connectivity
}

// Subscribe registers for updates. Subscriptions are released when the
// session is torn down.
func (s *Session) Subscribe() *Subscription {
	c := make(chan Update, s.conf.SubscriberBuffer)
	sub := &Subscription{C: c, c: c, s: s}
	if err := s.do(func() { s.subs[sub] = struct{}{} }); err != nil {
		sub.closed = true
		close(c)
	}
	return sub
}

func (s *Session) snapshot() State {
	return State{
		Self:         s.self,
		Connectivity: s.state,
		Roster:       s.presence.Roster(),
		Typing:       s.presence.Typing(),
		Timeline:     s.timeline.Messages(),
		Reactions:    s.tallies.Clone(),
		Input:        s.compose.input,
		Recipient:    s.compose.recipient,
	}
}

func (s *Session) setState(state chat.Connectivity) {
	if s.state == state {
		return
	}
	glog.Infof("session: %s -> %s", s.state, state)
	s.state = state
	metrics.Connectivity.Set(float64(state))
	s.publish(Update{Kind: ConnectivityChanged, Connectivity: state})
}

// install makes conn the current connection and announces self on it.
func (s *Session) install(conn channel.Conn, rejoin bool) {
	s.gen++
	s.conn = conn
	s.rejoin = rejoin
	if err := s.transmit(&event.ClientMsg{Join: &event.JoinReq{Username: s.self.Name}}); err != nil {
		glog.Errorf("session: send join error: %v", err)
	}
	go s.pump(s.gen, conn)
}

// pump forwards the events of one connection to the loop.
func (s *Session) pump(gen uint64, conn channel.Conn) {
	for msg := range conn.Recv() {
		select {
		case s.inbound <- inbound{gen: gen, msg: msg}:
		case <-s.done:
			return
		}
	}
	select {
	case s.inbound <- inbound{gen: gen, err: conn.Err()}:
	case <-s.done:
	}
}

// transmit stamps msg with a request id and queues it on the connection.
func (s *Session) transmit(msg *event.ClientMsg) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	kind := msg.Kind()
	msg.RequestId = strings.ReplaceAll(uuid.New(), "-", "")
	if err := s.conn.Send(msg); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	s.track(msg.RequestId, kind)
	metrics.OutboundIntents.WithLabelValues(kind).Inc()
	glog.V(5).Infof("session: sent %s, request id: %s", kind, msg.RequestId)
	return nil
}

// track remembers the kind of the latest requests, so that a rejection can
// be attributed to its intent.
func (s *Session) track(requestId, kind string) {
	s.pending[requestId] = kind
	s.pendingOrder = append(s.pendingOrder, requestId)
	if len(s.pendingOrder) > maxPendingRequests {
		delete(s.pending, s.pendingOrder[0])
		s.pendingOrder = s.pendingOrder[1:]
	}
}

func (s *Session) onTransportFailure(err error) {
	glog.Errorf("session: transport failure, reconnecting: %v", err)
	s.conn = nil
	s.typing.Stop()
	s.presence.Clear()
	s.publish(Update{Kind: RosterChanged})
	s.publish(Update{Kind: TypingChanged})
	s.setState(chat.Connecting)

	if s.backoff == nil {
		s.backoff = s.conf.NewBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.redialCancel = cancel
	go s.redial(ctx, s.backoff)
}

// retry drops the current connection and dials again, as after a transport
// failure.
func (s *Session) retry(err error) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.gen++
	s.onTransportFailure(err)
}

// connected ends a reconnect episode.
func (s *Session) connected() {
	s.rejoin = false
	s.backoff = nil
	s.setState(chat.Connected)
}

// redial runs off the loop; b is only touched by this goroutine until the
// result is handed back.
func (s *Session) redial(ctx context.Context, b *channel.Backoff) {
	conn, err := channel.Redial(ctx, s.dialer, b, func(err error) {
		if err != nil {
			metrics.Reconnects.WithLabelValues("error").Inc()
		} else {
			metrics.Reconnects.WithLabelValues("ok").Inc()
		}
	})
	if err != nil {
		return
	}

	installed := false
	err = s.do(func() {
		s.redialCancel = nil
		if s.closed || s.state != chat.Connecting || s.conn != nil {
			return
		}
		installed = true
		glog.Infof("session: reconnected, re-joining as %q", s.self.Name)
		s.install(conn, true)
	})
	if err != nil || !installed {
		_ = conn.Close()
	}
}

// teardown ends the session: the connection, the reconnect attempt and the
// typing timer are cancelled, roster and typing set are cleared, and every
// subscription is released.
func (s *Session) teardown(sendLeave bool) {
	if s.closed {
		return
	}
	s.closed = true

	if sendLeave && s.conn != nil {
		if err := s.transmit(&event.ClientMsg{Leave: &event.LeaveReq{}}); err != nil {
			glog.Errorf("session: send leave error: %v", err)
		}
	}
	if s.redialCancel != nil {
		s.redialCancel()
		s.redialCancel = nil
	}
	s.typing.Stop()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.gen++

	s.presence.Clear()
	s.publish(Update{Kind: RosterChanged})
	s.publish(Update{Kind: TypingChanged})
	s.setState(chat.Disconnected)

	for sub := range s.subs {
		s.release(sub)
	}
	glog.Infof("session: %q left", s.self.Name)
}
