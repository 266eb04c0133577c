package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/minichat/event"
)

type SessionError int

const (
	ReadError    SessionError = 1
	WriteError   SessionError = 2
	PingError    SessionError = 3
	BadRequest   SessionError = 4
	ServerStop   SessionError = 5
	SlowConsumer SessionError = 6
	Left         SessionError = 7
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 4096

	dataChanSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// dev server: accept any origin.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler manages an active connection to one chat client.
type Handler struct {
	sync.Mutex

	hub  *Hub
	conn *websocket.Conn
	id   string // participant id
	ip   string

	// set on join, guarded by the hub lock.
	username string

	dataChan chan *SessionData
	closing  bool
}

// SessionData is the data structure for `dataChan`.
type SessionData struct {
	Error     SessionError     `json:"error,omitempty"`
	ServerMsg *event.ServerMsg `json:"resp,omitempty"`
}

func (h *Handler) String() string {
	return fmt.Sprintf("%s@%s", h.id, h.ip)
}

func (h *Handler) close(cause SessionError) {
	h.Lock()
	if h.closing {
		h.Unlock()
		return
	}
	h.closing = true

	_ = h.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	h.conn.Close()
	close(h.dataChan)
	h.Unlock()

	glog.V(5).Infof("session closed, cause: %d, %s", cause, h)
	h.hub.hstore.del(h.id)
	if cause != ServerStop {
		h.hub.leave(h)
	}
}

// appendDataChan never blocks: a client that can not keep up is dropped.
func (h *Handler) appendDataChan(v *SessionData) {
	h.Lock()
	defer h.Unlock()
	if h.closing {
		return
	}
	select {
	case h.dataChan <- v:
	default:
		glog.Errorf("appendDataChan(): data chan is full, session: %s", h)
		go h.close(SlowConsumer)
	}
}

func (h *Handler) send(msg *event.ServerMsg) {
	h.appendDataChan(&SessionData{ServerMsg: msg})
}

func sendServerMsg(conn *websocket.Conn, msg *event.ServerMsg) error {
	out, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, out)
}

func (h *Handler) recvLoop() {
	defer func() { glog.V(5).Infof("recvLoop(): exited, session: %s", h) }()

	h.conn.SetReadLimit(readLimit)
	h.conn.SetReadDeadline(time.Now().Add(pongWait))
	h.conn.SetPongHandler(func(string) error {
		h.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, msg, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.V(5).Infof("recvLoop(): closed by peer, session: %s", h)
			} else {
				glog.Errorf("recvLoop(): read error: %v", err)
			}
			h.appendDataChan(&SessionData{Error: ReadError})
			return
		}

		glog.V(5).Infof("recvLoop(): incoming client message: %s", msg)

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): unexpected message type: %d", msgType)
			h.send(&event.ServerMsg{Error: newInvalidArgumentError(nil, "websocket only supports TextMessage")})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		req := event.ClientMsg{}
		if err := json.Unmarshal(msg, &req); err != nil {
			glog.Errorf("recvLoop(): message error: msg: %s, err: %v", msg, err)
			h.send(&event.ServerMsg{Error: newInvalidArgumentError(nil, fmt.Sprintf("unmarshal error: %v", err))})
			h.appendDataChan(&SessionData{Error: BadRequest})
			return
		}

		var e *event.Error
		if v := req.Join; v != nil {
			e = h.hub.join(h, &req)
		} else if v := req.Leave; v != nil {
			h.appendDataChan(&SessionData{Error: Left})
			return
		} else if v := req.SendMessage; v != nil {
			e = h.hub.sendMessage(h, &req)
		} else if v := req.SetTyping; v != nil {
			e = h.hub.setTyping(h, &req)
		} else if v := req.AddReaction; v != nil {
			e = h.hub.addReaction(h, &req)
		} else {
			glog.Errorf("recvLoop(): unsupported request: %s", msg)
			e = newInvalidArgumentError(strip(&req), "unsupported request")
		}

		if e != nil {
			glog.Errorf("recvLoop(): %s rejected: code: %d, params: %v, session: %s", req.Kind(), e.Code, e.Params, h)
			h.send(&event.ServerMsg{RequestId: req.RequestId, Error: e})
		}
	}
}

func (h *Handler) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, session: %s", h)
	}()

	for {
		select {
		case v, ok := <-h.dataChan:
			if !ok { // chan was closed
				glog.V(5).Infof("sendLoop(): data chan closed, session: %s", h)
				return
			}

			if v.Error > 0 {
				h.close(v.Error)
				return
			}

			if glog.V(5) {
				glog.Infof("sendLoop(): send %s, session: %s", v.ServerMsg.Kind(), h)
			}

			if err := sendServerMsg(h.conn, v.ServerMsg); err != nil {
				glog.Errorf("sendLoop(): error write message, session: %s, err: %v", h, err)
				h.close(WriteError)
				return
			}
		case <-pingTicker.C:
			h.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				glog.Errorf("sendLoop(): error write ping message, session: %s, err: %v", h, err)
				h.close(PingError)
				return
			}
		}
	}
}
