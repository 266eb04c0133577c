package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mqy/minichat/chat"
)

// ErrMalformed wraps every validation failure of an inbound frame.
var ErrMalformed = errors.New("malformed event")

func malformed(kind string, errs ...string) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformed, kind, strings.Join(errs, "; "))
}

// Validate checks that m carries exactly one payload with its required fields.
func Validate(m *ServerMsg) error {
	if m == nil {
		return malformed("nil", "empty frame")
	}

	var n int
	for _, set := range []bool{
		m.Message != nil, m.PresenceSnapshot != nil, m.ParticipantJoined != nil,
		m.ParticipantLeft != nil, m.TypingStarted != nil, m.TypingStopped != nil,
		m.ReactionUpdate != nil, m.Error != nil,
	} {
		if set {
			n++
		}
	}
	if n == 0 {
		return malformed("unknown", "no payload")
	} else if n > 1 {
		return malformed(m.Kind(), fmt.Sprintf("%d payloads in one frame", n))
	}

	if v := m.Message; v != nil {
		return validateMessage(v)
	} else if v := m.PresenceSnapshot; v != nil {
		for i, p := range v.Participants {
			if err := validateParticipant(p); err != nil {
				return malformed("presence_snapshot", fmt.Sprintf("participants[%d]: %v", i, err))
			}
		}
	} else if v := m.ParticipantJoined; v != nil {
		if err := validateParticipant(v); err != nil {
			return malformed("participant_joined", err.Error())
		}
	} else if v := m.ParticipantLeft; v != nil {
		if err := validateParticipant(v); err != nil {
			return malformed("participant_left", err.Error())
		}
	} else if v := m.TypingStarted; v != nil {
		if v.Username == "" {
			return malformed("typing_started", "username: required")
		}
	} else if v := m.TypingStopped; v != nil {
		if v.Username == "" {
			return malformed("typing_stopped", "username: required")
		}
	} else if v := m.ReactionUpdate; v != nil {
		var errs []string
		if v.MessageId == "" {
			errs = append(errs, "message_id: required")
		}
		for symbol, count := range v.Reactions {
			if symbol == "" {
				errs = append(errs, "reactions: empty symbol")
			}
			if count < 0 {
				errs = append(errs, fmt.Sprintf("reactions[%s]: negative count", symbol))
			}
		}
		if len(errs) > 0 {
			return malformed("reaction_update", errs...)
		}
	}
	return nil
}

func validateMessage(v *Message) error {
	var errs []string
	if v.Id == "" {
		errs = append(errs, "id: required")
	}
	if !v.System && v.Sender == "" {
		errs = append(errs, "sender: required for user messages")
	}
	if v.IsPrivate && v.To == "" {
		errs = append(errs, "to: required for private messages")
	}
	if len(errs) > 0 {
		return malformed("message", errs...)
	}
	return nil
}

func validateParticipant(p *Participant) error {
	if p == nil {
		return errors.New("null participant")
	}
	if p.Id == "" {
		return errors.New("id: required")
	}
	if p.Username == "" {
		return errors.New("username: required")
	}
	return nil
}

// ToMessage converts a validated wire message into a timeline entry.
func ToMessage(v *Message) chat.Message {
	out := chat.Message{
		Id:        v.Id,
		Sender:    v.Sender,
		SenderId:  v.SenderId,
		Body:      v.Message,
		Timestamp: v.Timestamp,
	}
	if v.System {
		out.Provenance = chat.System
	}
	if v.IsPrivate {
		out.Visibility = chat.PrivateTo(v.To)
	}
	return out
}

func ToParticipant(p *Participant) chat.Participant {
	return chat.Participant{Id: p.Id, Name: p.Username}
}

// Reason renders the params of a rejection for display.
func (e *Error) Reason() string {
	if e == nil {
		return ""
	}
	if len(e.Params) == 0 {
		return fmt.Sprintf("error code %d", e.Code)
	}
	return strings.Join(e.Params, "; ")
}
