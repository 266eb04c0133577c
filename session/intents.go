package session

import (
	"strings"

	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/event"
)

// emitTyping is the debouncer's output. Intents raised while the channel is
// down are dropped: the server forgets typing state with the connection.
func (s *Session) emitTyping(v bool) {
	if s.state != chat.Connected {
		glog.V(5).Infof("session: dropped typing=%t while %s", v, s.state)
		return
	}
	if err := s.transmit(&event.ClientMsg{SetTyping: &event.SetTypingReq{Typing: v}}); err != nil {
		glog.Errorf("session: send typing=%t error: %v", v, err)
	}
}

// pulseTyping feeds local activity to the debouncer once Connected. Activity
// while the channel is down is not tracked, so the first pulse after
// (re)connecting starts typing.
func (s *Session) pulseTyping() {
	if s.state != chat.Connected {
		return
	}
	s.typing.Pulse()
}

// intent runs fn on the loop once the session is Connected.
func (s *Session) intent(fn func() error) error {
	var err error
	if e := s.do(func() {
		if s.closed {
			err = ErrSessionClosed
			return
		}
		if s.state != chat.Connected {
			err = ErrNotConnected
			return
		}
		err = fn()
	}); e != nil {
		return e
	}
	return err
}

// Send transmits a public message. The timeline is only updated when the
// server echoes it back.
func (s *Session) Send(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	return s.intent(func() error {
		return s.sendMessage(body, "")
	})
}

// SendPrivate transmits a message visible to the recipient only.
func (s *Session) SendPrivate(recipientId, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	return s.intent(func() error {
		if !s.presence.Has(recipientId) {
			return ErrUnknownRecipient
		}
		return s.sendMessage(body, recipientId)
	})
}

func (s *Session) sendMessage(body, to string) error {
	return s.transmit(&event.ClientMsg{SendMessage: &event.SendMessageReq{Message: body, To: to}})
}

// React asks the server to add a reaction. Tallies change only on the
// following reaction_update.
func (s *Session) React(messageId, symbol string) error {
	if messageId == "" || symbol == "" {
		return ErrInvalidReaction
	}
	return s.intent(func() error {
		return s.transmit(&event.ClientMsg{AddReaction: &event.AddReactionReq{
			MessageId: messageId,
			Reaction:  symbol,
		}})
	})
}

// FocusInput is called when the input gains focus.
func (s *Session) FocusInput() {
	_ = s.do(func() {
		s.compose.active = true
		s.pulseTyping()
	})
}

// BlurInput is called when the input loses focus; typing stops at once.
func (s *Session) BlurInput() {
	_ = s.do(func() {
		s.compose.active = false
		s.typing.Cancel()
	})
}

// SetInput replaces the input buffer. Each edit is an activity pulse;
// emptying the buffer stops typing at once.
func (s *Session) SetInput(text string) {
	_ = s.do(func() {
		s.compose.input = text
		if text == "" {
			s.typing.Cancel()
		} else {
			s.pulseTyping()
		}
	})
}

// SetRecipient picks the recipient of the next Submit, "" for public.
func (s *Session) SetRecipient(recipientId string) {
	_ = s.do(func() {
		s.compose.recipient = recipientId
	})
}

// Submit sends the input buffer to the chosen recipient, or publicly when
// none is chosen. The buffer is cleared only when the send succeeds.
func (s *Session) Submit() error {
	return s.intent(func() error {
		body := s.compose.input
		if strings.TrimSpace(body) == "" {
			return ErrEmptyBody
		}
		to := s.compose.recipient
		if to != "" && !s.presence.Has(to) {
			return ErrUnknownRecipient
		}
		if err := s.sendMessage(body, to); err != nil {
			return err
		}
		s.compose.input = ""
		s.typing.Cancel()
		return nil
	})
}

// SetWindowFocus records whether the view has focus; alerts are suppressed
// while it does.
func (s *Session) SetWindowFocus(focused bool) {
	_ = s.do(func() {
		s.focused = focused
	})
}
