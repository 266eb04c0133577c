package session

import (
	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
)

type UpdateKind int

const (
	ConnectivityChanged UpdateKind = iota + 1
	MessageAppended
	RosterChanged
	TypingChanged
	ReactionsChanged
	IntentRejected
)

// Update tells a subscriber what part of the session state changed.
// Read the new state with Session.Snapshot.
type Update struct {
	Kind         UpdateKind
	Connectivity chat.Connectivity // ConnectivityChanged
	Message      *chat.Message     // MessageAppended
	MessageId    string            // ReactionsChanged
	Rejection    *Rejection        // IntentRejected
}

// Rejection is an intent declined by the server.
type Rejection struct {
	Intent string // intent kind, e.g. "join"
	Code   int32
	Reason string
}

// Subscription delivers updates on C until it is unsubscribed or the
// session is torn down, then C is closed.
type Subscription struct {
	C <-chan Update

	c      chan Update
	s      *Session
	closed bool // owned by the session loop
}

// Unsubscribe releases the subscription. It is idempotent.
func (sub *Subscription) Unsubscribe() {
	_ = sub.s.do(func() {
		sub.s.release(sub)
	})
}

func (s *Session) release(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(s.subs, sub)
	close(sub.c)
}

func (s *Session) publish(u Update) {
	for sub := range s.subs {
		select {
		case sub.c <- u:
		default:
			glog.Errorf("session: subscriber is full, dropped update kind %d", u.Kind)
		}
	}
}
