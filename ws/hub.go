// Package ws is a development chat room server speaking the minichat wire
// protocol. It keeps everything in memory and serves one room.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/pborman/uuid"

	"github.com/mqy/minichat/event"
)

// Hub works as a hub that manages and serves sessions of one room.
type Hub struct {
	hstore *HandlerStore

	// room state, guarded by mu.
	mu        sync.Mutex
	members   map[string]*Handler // joined handlers by participant id
	typing    map[string]bool     // participant id
	messages  map[string][]string // message id -> audience ids, nil for public
	order     []string            // message ids, oldest first
	reactions map[string]map[string]int
}

// NewHub creates a `Hub`.
func NewHub() *Hub {
	return &Hub{
		hstore:    newHandlerStore(),
		members:   make(map[string]*Handler),
		typing:    make(map[string]bool),
		messages:  make(map[string][]string),
		reactions: make(map[string]map[string]int),
	}
}

// Run serves until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context, stopDoneNotifyC chan<- struct{}) {
	<-ctx.Done()
	glog.Infof("close connections ...")
	h.hstore.close()
	glog.Infof("close connections done")
	stopDoneNotifyC <- struct{}{}
}

// ServeHTTP handles websocket requests from the peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// If the upgrade fails, then Upgrade replies to the client with an HTTP error response.
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("ServeHTTP(): upgrader.Upgrade error: %v", err)
		return
	}

	handler := &Handler{
		hub:      h,
		conn:     conn,
		id:       strings.ReplaceAll(uuid.New(), "-", ""),
		ip:       getRemoteIP(r),
		dataChan: make(chan *SessionData, dataChanSize),
	}
	h.hstore.add(handler)
	glog.V(5).Infof("ServeHTTP(): session connected: %s", handler)

	go handler.recvLoop()
	go handler.sendLoop()
}

// Sessions counts open connections, joined or not.
func (h *Hub) Sessions() int {
	return h.hstore.size()
}

// Announce posts a system message to the whole room.
func (h *Hub) Announce(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.post(&event.Message{System: true, Message: text}, nil)
}

func (h *Hub) join(s *Handler, req *event.ClientMsg) *event.Error {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := strings.TrimSpace(req.Join.Username)
	if s.username != "" {
		return newFailedPreconditionError(strip(req), fmt.Sprintf("already joined as %s", s.username))
	}
	if name == "" {
		return newInvalidArgumentError(strip(req), "username: required")
	}
	for _, m := range h.members {
		if m.username == name {
			return newAlreadyExistsError(strip(req), fmt.Sprintf("username %s is taken", name))
		}
	}

	s.username = name
	h.members[s.id] = s
	glog.Infof("join: %s as %q", s, name)

	s.send(&event.ServerMsg{RequestId: req.RequestId, PresenceSnapshot: h.snapshot()})
	h.broadcast(&event.ServerMsg{ParticipantJoined: participantOf(s)}, s.id)
	h.post(&event.Message{System: true, Message: name + " joined the chat"}, nil)
	return nil
}

// leave removes s from the room. It is a no-op for a session that never
// joined.
func (h *Hub) leave(s *Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[s.id]; !ok {
		return
	}
	delete(h.members, s.id)
	glog.Infof("leave: %s as %q", s, s.username)

	if h.typing[s.id] {
		delete(h.typing, s.id)
		h.broadcast(&event.ServerMsg{TypingStopped: &event.Typing{Username: s.username}}, "")
	}
	h.broadcast(&event.ServerMsg{ParticipantLeft: participantOf(s)}, "")
	h.post(&event.Message{System: true, Message: s.username + " left the chat"}, nil)
}

func (h *Hub) sendMessage(s *Handler, req *event.ClientMsg) *event.Error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := req.SendMessage
	if s.username == "" {
		return newFailedPreconditionError(strip(req), "join first")
	}
	if strings.TrimSpace(v.Message) == "" {
		return newInvalidArgumentError(strip(req), "message: required")
	}
	if len(v.Message) > MaxBodyBytes {
		return newInvalidArgumentError(strip(req), fmt.Sprintf("message: exceeds %d bytes", MaxBodyBytes))
	}

	msg := &event.Message{Sender: s.username, SenderId: s.id, Message: v.Message}
	if v.To == "" {
		h.post(msg, nil)
		return nil
	}

	if _, ok := h.members[v.To]; !ok {
		return newInvalidArgumentError(strip(req), "to: no such participant")
	}
	msg.IsPrivate = true
	msg.To = v.To
	audience := []string{s.id}
	if v.To != s.id {
		audience = append(audience, v.To)
	}
	h.post(msg, audience)
	return nil
}

func (h *Hub) setTyping(s *Handler, req *event.ClientMsg) *event.Error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.username == "" {
		return newFailedPreconditionError(strip(req), "join first")
	}
	typing := req.SetTyping.Typing
	if h.typing[s.id] == typing {
		return nil
	}

	if typing {
		h.typing[s.id] = true
		h.broadcast(&event.ServerMsg{TypingStarted: &event.Typing{Username: s.username}}, s.id)
	} else {
		delete(h.typing, s.id)
		h.broadcast(&event.ServerMsg{TypingStopped: &event.Typing{Username: s.username}}, s.id)
	}
	return nil
}

func (h *Hub) addReaction(s *Handler, req *event.ClientMsg) *event.Error {
	h.mu.Lock()
	defer h.mu.Unlock()

	v := req.AddReaction
	if s.username == "" {
		return newFailedPreconditionError(strip(req), "join first")
	}
	if v.MessageId == "" || v.Reaction == "" {
		return newInvalidArgumentError(strip(req), "message_id and reaction: required")
	}
	audience, ok := h.messages[v.MessageId]
	if !ok || (audience != nil && !contains(audience, s.id)) {
		return newInvalidArgumentError(strip(req), "message_id: no such message")
	}

	tally := h.reactions[v.MessageId]
	if tally == nil {
		tally = make(map[string]int)
		h.reactions[v.MessageId] = tally
	}
	tally[v.Reaction]++

	out := make(map[string]int, len(tally))
	for k, n := range tally {
		out[k] = n
	}
	h.deliver(&event.ServerMsg{ReactionUpdate: &event.ReactionUpdate{MessageId: v.MessageId, Reactions: out}}, audience)
	return nil
}

// post assigns msg an id and a timestamp, remembers it and delivers it to
// audience, or to every member when audience is nil. Callers hold mu.
func (h *Hub) post(msg *event.Message, audience []string) {
	msg.Id = strings.ReplaceAll(uuid.New(), "-", "")
	msg.Timestamp = time.Now().UTC()

	h.messages[msg.Id] = audience
	h.order = append(h.order, msg.Id)
	if len(h.order) > maxMessages {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.messages, oldest)
		delete(h.reactions, oldest)
	}
	h.deliver(&event.ServerMsg{Message: msg}, audience)
}

func (h *Hub) deliver(msg *event.ServerMsg, audience []string) {
	if audience == nil {
		h.broadcast(msg, "")
		return
	}
	for _, id := range audience {
		if m := h.members[id]; m != nil {
			m.send(msg)
		}
	}
}

// broadcast sends msg to every member but except. Callers hold mu.
func (h *Hub) broadcast(msg *event.ServerMsg, except string) {
	for id, m := range h.members {
		if id != except {
			m.send(msg)
		}
	}
}

func (h *Hub) snapshot() *event.PresenceSnapshot {
	out := &event.PresenceSnapshot{Participants: make([]*event.Participant, 0, len(h.members))}
	for _, m := range h.members {
		out.Participants = append(out.Participants, participantOf(m))
	}
	sort.Slice(out.Participants, func(i, j int) bool {
		return out.Participants[i].Username < out.Participants[j].Username
	})
	return out
}

func participantOf(s *Handler) *event.Participant {
	return &event.Participant{Id: s.id, Username: s.username}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func getRemoteIP(r *http.Request) string {
	ip := r.Header.Get("X-REAL-IP")
	if ip == "" {
		if ips := r.Header.Get("X-FORWARDED-FOR"); ips != "" {
			slice := strings.Split(ips, ",")
			for _, x := range slice {
				if x != "" {
					ip = x
				}
			}
		}
	}
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	return ip
}
