package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/session"
)

const timeFormat = "15:04:05"

type chatSession interface {
	Send(body string) error
	SendPrivate(recipientId, body string) error
	React(messageId, symbol string) error
	SetInput(text string)
	SetWindowFocus(focused bool)
	Snapshot() session.State
	Disconnect()
}

// console is a line oriented front end: each input line is a message or a
// slash command, updates are printed as they arrive.
type console struct {
	sync.Mutex
	s   chatSession
	out io.Writer
}

func newConsole(s chatSession, out io.Writer) *console {
	return &console{s: s, out: out}
}

func (c *console) printf(format string, args ...interface{}) {
	c.Lock()
	defer c.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// readLoop executes lines from r until EOF or /quit.
func (c *console) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if quit := c.exec(scanner.Text()); quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		glog.Errorf("read input error: %v", err)
	}
	c.s.Disconnect()
}

// exec runs one input line. It reports whether the user asked to quit.
func (c *console) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		c.report("send", c.s.Send(line))
		return false
	}

	cmd, args := line, ""
	if i := strings.IndexByte(line, ' '); i > 0 {
		cmd, args = line[:i], strings.TrimSpace(line[i+1:])
	}

	switch cmd {
	case "/pm":
		name, body := splitFirst(args)
		if name == "" || body == "" {
			c.printf("usage: /pm <name> <text>\n")
			return false
		}
		p, ok := findByName(c.s.Snapshot().Roster, name)
		if !ok {
			c.printf("! %s is not here\n", name)
			return false
		}
		c.report("private message", c.s.SendPrivate(p.Id, body))
	case "/react":
		ref, symbol := splitFirst(args)
		if ref == "" || symbol == "" {
			c.printf("usage: /react <message #> <symbol or palette #> (palette: %s)\n", strings.Join(chat.ReactionPalette, " "))
			return false
		}
		id, ok := c.messageId(ref)
		if !ok {
			c.printf("! no message %s\n", ref)
			return false
		}
		c.report("reaction", c.s.React(id, paletteSymbol(symbol)))
	case "/draft":
		c.s.SetInput(args)
	case "/focus":
		switch args {
		case "on":
			c.s.SetWindowFocus(true)
		case "off":
			c.s.SetWindowFocus(false)
		default:
			c.printf("usage: /focus on|off\n")
		}
	case "/who":
		st := c.s.Snapshot()
		var names []string
		for _, p := range st.Roster {
			names = append(names, p.Name)
		}
		c.printf("-- %s, online: %s\n", st.Connectivity, strings.Join(names, ", "))
		if len(st.Typing) > 0 {
			c.printf("-- typing: %s\n", strings.Join(st.Typing, ", "))
		}
	case "/quit", "/leave":
		c.s.Disconnect()
		return true
	case "/help":
		c.printf("text sends to everyone; /pm <name> <text>; /react <#> <symbol>; /draft <text>; /focus on|off; /who; /quit\n")
	default:
		c.printf("! unknown command %s, try /help\n", cmd)
	}
	return false
}

func (c *console) report(what string, err error) {
	if err != nil {
		c.printf("! %s failed: %v\n", what, err)
	}
}

// messageId resolves a 1-based timeline position, or a message id.
func (c *console) messageId(ref string) (string, bool) {
	timeline := c.s.Snapshot().Timeline
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(timeline) {
			return "", false
		}
		return timeline[n-1].Id, true
	}
	for _, m := range timeline {
		if m.Id == ref {
			return ref, true
		}
	}
	return "", false
}

// printLoop renders updates until the subscription is released.
func (c *console) printLoop(sub *session.Subscription) {
	for u := range sub.C {
		c.render(u)
	}
}

func (c *console) render(u session.Update) {
	switch u.Kind {
	case session.ConnectivityChanged:
		c.printf("-- %s\n", u.Connectivity)
	case session.MessageAppended:
		c.renderMessage(u.Message)
	case session.TypingChanged:
		if typing := c.s.Snapshot().Typing; len(typing) > 0 {
			c.printf("-- %s typing...\n", strings.Join(typing, ", "))
		}
	case session.ReactionsChanged:
		st := c.s.Snapshot()
		pos := position(st.Timeline, u.MessageId)
		tally := st.Reactions[u.MessageId]
		var parts []string
		for _, symbol := range tally.Symbols() {
			parts = append(parts, fmt.Sprintf("%s %d", symbol, tally[symbol]))
		}
		c.printf("-- #%d reactions: %s\n", pos, strings.Join(parts, " "))
	case session.IntentRejected:
		c.printf("! %s rejected: %s\n", u.Rejection.Intent, u.Rejection.Reason)
	}
}

func (c *console) renderMessage(m *chat.Message) {
	pos := position(c.s.Snapshot().Timeline, m.Id)
	ts := m.Timestamp.Local().Format(timeFormat)
	switch {
	case m.Provenance == chat.System:
		c.printf("#%d [%s] * %s\n", pos, ts, m.Body)
	case m.Visibility.Private:
		to := m.Visibility.Recipient
		for _, p := range c.s.Snapshot().Roster {
			if p.Id == to {
				to = p.Name
			}
		}
		c.printf("#%d [%s] %s -> %s (private): %s\n", pos, ts, m.Sender, to, m.Body)
	default:
		c.printf("#%d [%s] %s: %s\n", pos, ts, m.Sender, m.Body)
	}
}

// position is the 1-based timeline position of id, 0 when absent.
func position(timeline []chat.Message, id string) int {
	for i, m := range timeline {
		if m.Id == id {
			return i + 1
		}
	}
	return 0
}

// findByName returns the first participant of the roster with the given
// name; the roster is ordered by name, then id.
func findByName(roster []chat.Participant, name string) (chat.Participant, bool) {
	for _, p := range roster {
		if p.Name == name {
			return p, true
		}
	}
	return chat.Participant{}, false
}

// paletteSymbol maps "1".."5" to the reaction palette, anything else is
// taken as a symbol.
func paletteSymbol(s string) string {
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(chat.ReactionPalette) {
		return chat.ReactionPalette[n-1]
	}
	return s
}

func splitFirst(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}
