package session

import (
	"sort"

	"github.com/mqy/minichat/chat"
)

// Presence tracks the roster and the typing set. Both are driven only by
// inbound events; the local user never appears in the typing set.
type Presence struct {
	self   string
	roster map[string]chat.Participant // id -> participant
	typing map[string]struct{}         // display names
}

func NewPresence(self string) *Presence {
	return &Presence{
		self:   self,
		roster: make(map[string]chat.Participant),
		typing: make(map[string]struct{}),
	}
}

// Snapshot replaces the roster wholesale.
func (p *Presence) Snapshot(participants []chat.Participant) {
	p.roster = make(map[string]chat.Participant, len(participants))
	for _, v := range participants {
		p.roster[v.Id] = v
	}
}

func (p *Presence) Joined(v chat.Participant) {
	p.roster[v.Id] = v
}

// Left removes v from the roster, and its name from the typing set.
// It reports whether the typing set changed.
func (p *Presence) Left(v chat.Participant) bool {
	delete(p.roster, v.Id)
	return p.TypingStopped(v.Name)
}

// TypingStarted reports whether the typing set changed.
func (p *Presence) TypingStarted(name string) bool {
	if name == p.self {
		return false
	}
	if _, ok := p.typing[name]; ok {
		return false
	}
	p.typing[name] = struct{}{}
	return true
}

// TypingStopped reports whether the typing set changed.
func (p *Presence) TypingStopped(name string) bool {
	if _, ok := p.typing[name]; !ok {
		return false
	}
	delete(p.typing, name)
	return true
}

func (p *Presence) Clear() {
	p.roster = make(map[string]chat.Participant)
	p.typing = make(map[string]struct{})
}

func (p *Presence) Has(id string) bool {
	_, ok := p.roster[id]
	return ok
}

// Roster returns the participants ordered by name, then id.
func (p *Presence) Roster() []chat.Participant {
	out := make([]chat.Participant, 0, len(p.roster))
	for _, v := range p.roster {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Id < out[j].Id
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Typing returns the sorted names of typing participants.
func (p *Presence) Typing() []string {
	out := make([]string, 0, len(p.typing))
	for name := range p.typing {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
