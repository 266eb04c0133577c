package chat

import (
	"fmt"
	"sort"
	"time"
)

// Connectivity is the state of the channel to the remote session.
type Connectivity int

const (
	Disconnected Connectivity = iota
	Connecting
	Connected
)

func (c Connectivity) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("connectivity(%d)", int(c))
}

type Provenance int

const (
	User Provenance = iota
	System
)

func (p Provenance) String() string {
	if p == System {
		return "system"
	}
	return "user"
}

// ReactionPalette is the default set of reactions offered to users.
// The server accepts any symbol.
var ReactionPalette = []string{"👍", "❤️", "😂", "😮", "🎉"}

// Identity is the local user as announced on join.
type Identity struct {
	Name string
}

// Participant is a connected user, unique by Id.
type Participant struct {
	Id   string
	Name string
}

// Visibility of a message. A zero value is public.
type Visibility struct {
	Private   bool
	Recipient string // recipient participant id, set only when Private
}

func Public() Visibility {
	return Visibility{}
}

func PrivateTo(recipient string) Visibility {
	return Visibility{Private: true, Recipient: recipient}
}

func (v Visibility) String() string {
	if v.Private {
		return "private(" + v.Recipient + ")"
	}
	return "public"
}

// Message is one entry of the timeline. It is immutable once appended.
type Message struct {
	Id         string
	Sender     string // display name
	SenderId   string
	Body       string
	Timestamp  time.Time
	Visibility Visibility
	Provenance Provenance
}

// Tally counts each reaction symbol attached to one message.
type Tally map[string]int

func (t Tally) Clone() Tally {
	out := make(Tally, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Symbols returns the reaction symbols in t, sorted.
func (t Tally) Symbols() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
