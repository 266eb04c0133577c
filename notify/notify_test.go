package notify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/chat"
	"github.com/mqy/minichat/notify"
	"github.com/mqy/minichat/notify/mock"
)

var alice = chat.Identity{Name: "alice"}

func TestShouldNotify(t *testing.T) {
	public := chat.Message{Id: "1", Sender: "bob", Body: "hi"}
	selfPublic := chat.Message{Id: "2", Sender: "alice", Body: "hi"}
	system := chat.Message{Id: "3", Body: "bob joined", Provenance: chat.System}
	privateIn := chat.Message{Id: "4", Sender: "bob", Body: "psst", Visibility: chat.PrivateTo("s1")}
	privateEcho := chat.Message{Id: "5", Sender: "alice", Body: "psst", Visibility: chat.PrivateTo("s2")}

	for _, m := range []chat.Message{public, selfPublic, system, privateIn, privateEcho} {
		assert.False(t, notify.ShouldNotify(m, true, alice), "focused: message %s", m.Id)
	}

	assert.True(t, notify.ShouldNotify(public, false, alice))
	assert.True(t, notify.ShouldNotify(selfPublic, false, alice))
	assert.False(t, notify.ShouldNotify(system, false, alice))
	assert.True(t, notify.ShouldNotify(privateIn, false, alice))
	assert.False(t, notify.ShouldNotify(privateEcho, false, alice))
}

func TestNewAlert(t *testing.T) {
	a := notify.NewAlert(chat.Message{Id: "4", Sender: "bob", Body: "psst", Visibility: chat.PrivateTo("s1")})
	assert.Equal(t, notify.Alert{Title: "[Private] bob", Body: "psst", MessageId: "4", Private: true}, a)

	a = notify.NewAlert(chat.Message{Id: "1", Sender: "bob", Body: "hi"})
	assert.Equal(t, "bob", a.Title)
}

func TestNotifierAsksPermissionOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mock.NewMockSink(ctrl)
	sink.EXPECT().RequestPermission().Return(true, nil).Times(1)
	sink.EXPECT().Notify(notify.Alert{Title: "bob", Body: "hi", MessageId: "1"}).Return(nil).Times(1)

	perms := notify.MemPermissions{}
	n := notify.NewNotifier(sink, perms)
	n.OnJoin(alice)
	n.OnJoin(alice) // reconnect
	assert.True(t, n.Granted())
	assert.Equal(t, notify.MemPermissions{"alice": true}, perms)

	assert.True(t, n.OnAppend(chat.Message{Id: "1", Sender: "bob", Body: "hi"}, false))
	assert.False(t, n.OnAppend(chat.Message{Id: "2", Sender: "bob", Body: "hi"}, true))
}

func TestNotifierRemembersDenial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no calls expected: the answer is remembered and it is a denial.
	sink := mock.NewMockSink(ctrl)

	n := notify.NewNotifier(sink, notify.MemPermissions{"alice": false})
	n.OnJoin(alice)
	assert.False(t, n.Granted())
	assert.False(t, n.OnAppend(chat.Message{Id: "1", Sender: "bob", Body: "hi"}, false))
}

func TestNotifierSinkError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mock.NewMockSink(ctrl)
	sink.EXPECT().RequestPermission().Return(true, nil)
	sink.EXPECT().Notify(gomock.Any()).Return(errors.New("display unavailable"))

	n := notify.NewNotifier(sink, nil)
	n.OnJoin(alice)
	assert.False(t, n.OnAppend(chat.Message{Id: "1", Sender: "bob", Body: "hi"}, false))
}

func TestKafkaSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	writer := mock.NewMockIKafkaWriter(ctrl)
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msgs ...kafka.Message) error {
		require.Len(t, msgs, 1)
		assert.Equal(t, []byte("alice"), msgs[0].Key)

		var v map[string]interface{}
		require.NoError(t, json.Unmarshal(msgs[0].Value, &v))
		assert.Equal(t, "alice", v["user"])
		assert.Equal(t, "[Private] bob", v["title"])
		assert.Equal(t, "psst", v["body"])
		assert.Equal(t, "4", v["message_id"])
		return nil
	})
	writer.EXPECT().WriteMessages(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	writer.EXPECT().Close().Return(nil)

	s := notify.NewKafkaSink(writer, "alice")
	ok, err := s.RequestPermission()
	assert.True(t, ok)
	assert.NoError(t, err)

	alert := notify.Alert{Title: "[Private] bob", Body: "psst", MessageId: "4", Private: true}
	assert.NoError(t, s.Notify(alert))
	assert.Error(t, s.Notify(alert))
	assert.NoError(t, s.Close())
}

func TestKafkaSinkTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := notify.NewKafkaSink(mock.NewMockIKafkaWriter(ctrl), "alice")
	err := s.Notify(notify.Alert{Title: "bob", Body: string(bytes.Repeat([]byte("x"), 5000))})
	assert.Error(t, err)
}

func TestTerminalAndMultiSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var buf bytes.Buffer
	failing := mock.NewMockSink(ctrl)
	failing.EXPECT().RequestPermission().Return(false, errors.New("no display"))
	failing.EXPECT().Notify(gomock.Any()).Return(errors.New("no display"))

	m := notify.MultiSink{failing, &notify.TerminalSink{W: &buf, Bell: true}}
	ok, err := m.RequestPermission()
	assert.True(t, ok)
	assert.NoError(t, err)

	assert.Error(t, m.Notify(notify.Alert{Title: "bob", Body: "hi"}))
	assert.Equal(t, "\a** bob: hi\n", buf.String())
}

func TestBoltPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := notify.OpenBoltPermissions(path)
	require.NoError(t, err)

	_, known, err := s.Get("alice")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, s.Put("alice", true))
	require.NoError(t, s.Put("bob", false))
	require.NoError(t, s.Close())

	// answers survive a reopen.
	s, err = notify.OpenBoltPermissions(path)
	require.NoError(t, err)
	defer s.Close()

	granted, known, err := s.Get("alice")
	require.NoError(t, err)
	assert.True(t, known)
	assert.True(t, granted)

	granted, known, err = s.Get("bob")
	require.NoError(t, err)
	assert.True(t, known)
	assert.False(t, granted)
}
