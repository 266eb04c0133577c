package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/mqy/minichat/event"
	"github.com/mqy/minichat/metrics"
)

type CloseCause int

const (
	ReadError  CloseCause = 1
	WriteError CloseCause = 2
	PingError  CloseCause = 3
	LocalClose CloseCause = 4
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	defaultPingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 25 * time.Second

	// websocket max message size to read. A presence snapshot of a busy
	// session is the largest inbound frame.
	readLimit = 64 * 1024

	sendQueueSize = 16
	recvQueueSize = 64
)

// WSDialer dials the remote session over a websocket.
type WSDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration

	// PingPeriod overrides the keep-alive period, the pong wait is derived from it.
	PingPeriod time.Duration
}

func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	pingPeriod, pongWait := defaultPingPeriod, defaultPongWait
	if d.PingPeriod > 0 {
		pingPeriod = d.PingPeriod
		pongWait = d.PingPeriod * 5 / 4
	}
	glog.V(5).Infof("channel: connected to %s", d.URL)
	return newWSConn(conn, pingPeriod, pongWait), nil
}

// wsConn adapts a websocket connection to Conn: one goroutine reads and
// decodes frames, another writes queued intents and keep-alive pings.
type wsConn struct {
	sync.Mutex

	conn       *websocket.Conn
	pingPeriod time.Duration
	pongWait   time.Duration

	sendChan chan *event.ClientMsg
	recvChan chan *event.ServerMsg
	flush    chan struct{}
	done     chan struct{}

	closing bool           // no more sends accepted
	closed  bool           // connection torn down, done closed
	sending sync.WaitGroup // Send calls past the closing check
	err     error
}

func newWSConn(conn *websocket.Conn, pingPeriod, pongWait time.Duration) *wsConn {
	c := &wsConn{
		conn:       conn,
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		sendChan:   make(chan *event.ClientMsg, sendQueueSize),
		recvChan:   make(chan *event.ServerMsg, recvQueueSize),
		flush:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.recvLoop()
	go c.sendLoop()
	return c
}

func (c *wsConn) String() string {
	return c.conn.RemoteAddr().String()
}

// Send queues msg. A nil error means msg is written before a local Close
// completes, unless the connection is lost first.
func (c *wsConn) Send(msg *event.ClientMsg) error {
	c.Lock()
	if c.closing {
		c.Unlock()
		return ErrClosed
	}
	c.sending.Add(1)
	c.Unlock()
	defer c.sending.Done()

	select {
	case c.sendChan <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *wsConn) Recv() <-chan *event.ServerMsg {
	return c.recvChan
}

func (c *wsConn) Err() error {
	c.Lock()
	defer c.Unlock()
	return c.err
}

// Close writes the intents already queued, then closes the connection.
func (c *wsConn) Close() error {
	c.Lock()
	if c.closing {
		c.Unlock()
		return nil
	}
	c.closing = true
	c.Unlock()

	// intents accepted before closing are in sendChan before the flush.
	c.sending.Wait()
	close(c.flush)
	select {
	case <-c.done:
	case <-time.After(2 * writeWait):
		c.close(LocalClose, nil)
	}
	return nil
}

func (c *wsConn) close(cause CloseCause, err error) {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return
	}

	c.closing = true
	c.closed = true
	if cause == LocalClose {
		// WriteControl may run concurrently with sendLoop.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	} else {
		c.err = fmt.Errorf("channel: connection lost (cause %d): %w", cause, err)
		glog.Errorf("channel: %v, peer: %s", c.err, c)
	}
	c.conn.Close()
	close(c.done)
}

func (c *wsConn) recvLoop() {
	defer func() {
		close(c.recvChan)
		glog.V(5).Infof("recvLoop(): exited, peer: %s", c)
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.close(ReadError, err)
			return
		}

		glog.V(5).Infof("recvLoop(): incoming server message: %s", data)

		if msgType != websocket.TextMessage {
			glog.Errorf("recvLoop(): dropped frame of unexpected message type: %d", msgType)
			metrics.MalformedEvents.WithLabelValues("decode").Inc()
			continue
		}

		msg := &event.ServerMsg{}
		if err := json.Unmarshal(data, msg); err != nil {
			glog.Errorf("recvLoop(): dropped undecodable frame: %s, err: %v", data, err)
			metrics.MalformedEvents.WithLabelValues("decode").Inc()
			continue
		}

		select {
		case c.recvChan <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) sendLoop() {
	pingTicker := time.NewTicker(c.pingPeriod)
	defer func() {
		pingTicker.Stop()
		glog.V(5).Infof("sendLoop(): exited, peer: %s", c)
	}()

	for {
		select {
		case <-c.done:
			return
		case <-c.flush:
			for {
				select {
				case msg := <-c.sendChan:
					if err := c.write(msg); err != nil {
						c.close(WriteError, err)
						return
					}
				default:
					c.close(LocalClose, nil)
					return
				}
			}
		case msg := <-c.sendChan:
			if err := c.write(msg); err != nil {
				c.close(WriteError, err)
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(PingError, err)
				return
			}
		}
	}
}

func (c *wsConn) write(msg *event.ClientMsg) error {
	data, err := json.Marshal(msg)
	if err != nil {
		// should not happen, all fields are plain values.
		glog.Errorf("sendLoop(): marshal %s error: %v", msg.Kind(), err)
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	glog.V(5).Infof("sendLoop(): sent %s", data)
	return nil
}
