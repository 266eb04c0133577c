package event

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/chat"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"public message", `{"message":{"id":"1","sender":"alice","message":"hi"}}`, true},
		{"system message without sender", `{"message":{"id":"2","message":"bob joined","system":true}}`, true},
		{"message without id", `{"message":{"sender":"alice","message":"hi"}}`, false},
		{"user message without sender", `{"message":{"id":"3","message":"hi"}}`, false},
		{"private without recipient", `{"message":{"id":"4","sender":"a","message":"hi","is_private":true}}`, false},
		{"empty frame", `{}`, false},
		{"two payloads", `{"typing_started":{"username":"a"},"typing_stopped":{"username":"a"}}`, false},
		{"snapshot", `{"presence_snapshot":{"participants":[{"id":"s1","username":"alice"}]}}`, true},
		{"snapshot with null entry", `{"presence_snapshot":{"participants":[null]}}`, false},
		{"joined without id", `{"participant_joined":{"username":"bob"}}`, false},
		{"typing without username", `{"typing_started":{}}`, false},
		{"reaction update", `{"reaction_update":{"message_id":"1","reactions":{"👍":2}}}`, true},
		{"reaction update negative", `{"reaction_update":{"message_id":"1","reactions":{"👍":-1}}}`, false},
		{"reaction update without id", `{"reaction_update":{"reactions":{}}}`, false},
		{"error", `{"request_id":"r1","error":{"code":6,"params":["username taken"]}}`, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var m ServerMsg
			require.NoError(t, json.Unmarshal([]byte(c.raw), &m))
			err := Validate(&m)
			if c.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformed))
			}
		})
	}
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := ToMessage(&Message{
		Id:        "7",
		Sender:    "bob",
		SenderId:  "s2",
		Message:   "psst",
		Timestamp: ts,
		IsPrivate: true,
		To:        "s1",
	})
	assert.Equal(t, chat.Message{
		Id:         "7",
		Sender:     "bob",
		SenderId:   "s2",
		Body:       "psst",
		Timestamp:  ts,
		Visibility: chat.PrivateTo("s1"),
		Provenance: chat.User,
	}, m)

	sys := ToMessage(&Message{Id: "8", Message: "alice joined", System: true})
	assert.Equal(t, chat.System, sys.Provenance)
	assert.False(t, sys.Visibility.Private)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "add_reaction", (&ClientMsg{AddReaction: &AddReactionReq{}}).Kind())
	assert.Equal(t, "", (&ClientMsg{RequestId: "x"}).Kind())
	assert.Equal(t, "reaction_update", (&ServerMsg{ReactionUpdate: &ReactionUpdate{}}).Kind())
	assert.Equal(t, "", (*ServerMsg)(nil).Kind())
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "username taken", (&Error{Code: ErrorCodeAlreadyExists, Params: []string{"username taken"}}).Reason())
	assert.Equal(t, "error code 13", (&Error{Code: ErrorCodeInternal}).Reason())
}
