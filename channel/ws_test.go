package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/event"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeServer accepts one websocket, records client frames and lets the test
// push raw frames.
type fakeServer struct {
	*httptest.Server
	connC chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	s := &fakeServer{connC: make(chan *websocket.Conn, 1)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.connC <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *fakeServer) accept(t *testing.T) *websocket.Conn {
	select {
	case conn := <-s.connC:
		return conn
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func dial(t *testing.T, s *fakeServer) Conn {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, err := (&WSDialer{URL: s.url()}).Dial(ctx)
	require.NoError(t, err)
	return conn
}

func recv(t *testing.T, conn Conn) *event.ServerMsg {
	select {
	case msg, ok := <-conn.Recv():
		require.True(t, ok, "recv channel closed")
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server message")
		return nil
	}
}

func waitClosed(t *testing.T, conn Conn) {
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-conn.Recv():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("recv channel not closed")
		}
	}
}

func TestSendAndRecv(t *testing.T) {
	s := newFakeServer(t)
	conn := dial(t, s)
	defer conn.Close()
	peer := s.accept(t)
	defer peer.Close()

	require.NoError(t, conn.Send(&event.ClientMsg{RequestId: "r1", Join: &event.JoinReq{Username: "alice"}}))

	peer.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	var got event.ClientMsg
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "r1", got.RequestId)
	require.NotNil(t, got.Join)
	assert.Equal(t, "alice", got.Join.Username)

	// undecodable frames are dropped, the stream keeps going.
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, peer.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage, []byte(`{"message":5}`)))
	require.NoError(t, peer.WriteMessage(websocket.TextMessage,
		[]byte(`{"typing_started":{"username":"bob"}}`)))

	msg := recv(t, conn)
	require.NotNil(t, msg.TypingStarted)
	assert.Equal(t, "bob", msg.TypingStarted.Username)
}

func TestPeerDropReportsError(t *testing.T) {
	s := newFakeServer(t)
	conn := dial(t, s)
	peer := s.accept(t)

	require.NoError(t, peer.WriteMessage(websocket.TextMessage,
		[]byte(`{"participant_joined":{"id":"s2","username":"bob"}}`)))
	peer.Close()

	// events read before the drop are still delivered.
	msg := recv(t, conn)
	require.NotNil(t, msg.ParticipantJoined)

	waitClosed(t, conn)
	assert.Error(t, conn.Err())
	assert.True(t, errors.Is(conn.Send(&event.ClientMsg{Leave: &event.LeaveReq{}}), ErrClosed))
}

func TestLocalCloseIsClean(t *testing.T) {
	s := newFakeServer(t)
	conn := dial(t, s)
	peer := s.accept(t)
	defer peer.Close()

	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	waitClosed(t, conn)
	assert.NoError(t, conn.Err())
	assert.Equal(t, ErrClosed, conn.Send(&event.ClientMsg{Leave: &event.LeaveReq{}}))
}

func TestSendsAcceptedBeforeCloseAreWritten(t *testing.T) {
	s := newFakeServer(t)
	conn := dial(t, s)
	peer := s.accept(t)
	defer peer.Close()

	var (
		mu       sync.Mutex
		accepted int
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := conn.Send(&event.ClientMsg{SetTyping: &event.SetTypingReq{Typing: true}}); err != nil {
					assert.Equal(t, ErrClosed, err)
					return
				}
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	time.Sleep(time.Millisecond)
	assert.NoError(t, conn.Close())
	wg.Wait()

	written := 0
	peer.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := peer.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)
			break
		}
		written++
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, accepted, written)
}

func TestDialError(t *testing.T) {
	s := httptest.NewServer(http.NotFoundHandler())
	defer s.Close()

	_, err := (&WSDialer{URL: "ws" + strings.TrimPrefix(s.URL, "http")}).Dial(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
