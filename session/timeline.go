package session

import (
	"github.com/mqy/minichat/chat"
)

// Timeline is the append-only, arrival-ordered message sequence of a
// session, deduplicated by message id.
type Timeline struct {
	msgs []chat.Message
	seen map[string]int // id -> index in msgs
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[string]int)}
}

// Append adds m unless a message with the same id is already present.
// It reports whether m was appended.
func (t *Timeline) Append(m chat.Message) bool {
	if _, ok := t.seen[m.Id]; ok {
		return false
	}
	t.seen[m.Id] = len(t.msgs)
	t.msgs = append(t.msgs, m)
	return true
}

func (t *Timeline) Len() int {
	return len(t.msgs)
}

func (t *Timeline) Get(id string) (chat.Message, bool) {
	i, ok := t.seen[id]
	if !ok {
		return chat.Message{}, false
	}
	return t.msgs[i], true
}

// Messages returns a copy of the timeline.
func (t *Timeline) Messages() []chat.Message {
	out := make([]chat.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}
