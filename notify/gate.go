package notify

import (
	"github.com/mqy/minichat/chat"
)

// ShouldNotify decides whether a message newly appended to the timeline
// raises an alert for self.
//
// Public messages alert even when self is the sender; only the private echo
// of one's own message is suppressed.
func ShouldNotify(msg chat.Message, focused bool, self chat.Identity) bool {
	if focused {
		return false
	}
	if msg.Provenance == chat.System {
		return false
	}
	if msg.Visibility.Private {
		return msg.Sender != self.Name
	}
	return true
}

// Alert is what a Sink surfaces to the user.
type Alert struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	MessageId string `json:"message_id"`
	Private   bool   `json:"private,omitempty"`
}

func NewAlert(msg chat.Message) Alert {
	title := msg.Sender
	if msg.Visibility.Private {
		title = "[Private] " + msg.Sender
	}
	return Alert{
		Title:     title,
		Body:      msg.Body,
		MessageId: msg.Id,
		Private:   msg.Visibility.Private,
	}
}
