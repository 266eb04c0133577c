package session

import (
	"github.com/mqy/minichat/chat"
)

// Tallies holds the reaction tally of each message, as last reported by the
// server. Updates replace a message's tally; they are never merged.
type Tallies map[string]chat.Tally

func (t Tallies) Replace(messageId string, tally chat.Tally) {
	if tally == nil {
		tally = chat.Tally{}
	}
	t[messageId] = tally.Clone()
}

// Get returns a copy of the tally of messageId, nil when none was reported.
func (t Tallies) Get(messageId string) chat.Tally {
	v, ok := t[messageId]
	if !ok {
		return nil
	}
	return v.Clone()
}

func (t Tallies) Clone() map[string]chat.Tally {
	out := make(map[string]chat.Tally, len(t))
	for id, v := range t {
		out[id] = v.Clone()
	}
	return out
}
