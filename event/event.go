package event

import (
	"time"
)

// Error codes carried by `Error.Code`, gRPC numbering.
const (
	ErrorCodeInvalidArguments   = 3
	ErrorCodeAlreadyExists      = 6
	ErrorCodeFailedPrecondition = 9
	ErrorCodeInternal           = 13
)

// ClientMsg is the outbound frame. Exactly one of the payload fields is set.
type ClientMsg struct {
	RequestId   string          `json:"request_id,omitempty"`
	Join        *JoinReq        `json:"join,omitempty"`
	Leave       *LeaveReq       `json:"leave,omitempty"`
	SendMessage *SendMessageReq `json:"send_message,omitempty"`
	SetTyping   *SetTypingReq   `json:"set_typing,omitempty"`
	AddReaction *AddReactionReq `json:"add_reaction,omitempty"`
}

type JoinReq struct {
	Username string `json:"username"`
}

type LeaveReq struct{}

type SendMessageReq struct {
	Message string `json:"message"`
	To      string `json:"to,omitempty"` // recipient participant id for private messages
}

type SetTypingReq struct {
	Typing bool `json:"typing"`
}

type AddReactionReq struct {
	MessageId string `json:"message_id"`
	Reaction  string `json:"reaction"`
}

// ServerMsg is the inbound frame. Exactly one of the payload fields is set.
type ServerMsg struct {
	RequestId         string            `json:"request_id,omitempty"`
	Message           *Message          `json:"message,omitempty"`
	PresenceSnapshot  *PresenceSnapshot `json:"presence_snapshot,omitempty"`
	ParticipantJoined *Participant      `json:"participant_joined,omitempty"`
	ParticipantLeft   *Participant      `json:"participant_left,omitempty"`
	TypingStarted     *Typing           `json:"typing_started,omitempty"`
	TypingStopped     *Typing           `json:"typing_stopped,omitempty"`
	ReactionUpdate    *ReactionUpdate   `json:"reaction_update,omitempty"`
	Error             *Error            `json:"error,omitempty"`
}

// Message is fired for public and private messages, including system announcements.
type Message struct {
	Id        string    `json:"id"`
	Sender    string    `json:"sender,omitempty"`
	SenderId  string    `json:"sender_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	System    bool      `json:"system,omitempty"`
	IsPrivate bool      `json:"is_private,omitempty"`
	To        string    `json:"to,omitempty"`
}

type Participant struct {
	Id       string `json:"id"`
	Username string `json:"username"`
}

type PresenceSnapshot struct {
	Participants []*Participant `json:"participants"`
}

type Typing struct {
	Username string `json:"username"`
}

type ReactionUpdate struct {
	MessageId string         `json:"message_id"`
	Reactions map[string]int `json:"reactions"`
}

// Error is sent by the server when it declines an intent.
type Error struct {
	Code   int32      `json:"code"`
	Params []string   `json:"params,omitempty"`
	Req    *ClientMsg `json:"req,omitempty"`
}

// Kind names the payload carried by m, "" when none is set.
func (m *ClientMsg) Kind() string {
	switch {
	case m == nil:
		return ""
	case m.Join != nil:
		return "join"
	case m.Leave != nil:
		return "leave"
	case m.SendMessage != nil:
		return "send_message"
	case m.SetTyping != nil:
		return "set_typing"
	case m.AddReaction != nil:
		return "add_reaction"
	}
	return ""
}

// Kind names the payload carried by m, "" when none is set.
func (m *ServerMsg) Kind() string {
	switch {
	case m == nil:
		return ""
	case m.Message != nil:
		return "message"
	case m.PresenceSnapshot != nil:
		return "presence_snapshot"
	case m.ParticipantJoined != nil:
		return "participant_joined"
	case m.ParticipantLeft != nil:
		return "participant_left"
	case m.TypingStarted != nil:
		return "typing_started"
	case m.TypingStopped != nil:
		return "typing_stopped"
	case m.ReactionUpdate != nil:
		return "reaction_update"
	case m.Error != nil:
		return "error"
	}
	return ""
}
