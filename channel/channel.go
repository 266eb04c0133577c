package channel

import (
	"context"
	"errors"

	"github.com/mqy/minichat/event"
)

// ErrClosed is returned by Send after the connection has ended.
var ErrClosed = errors.New("channel: connection closed")

// Conn is one bidirectional event stream to the remote session.
// Events are delivered in the order the transport received them.
type Conn interface {
	// Send queues msg for transmission. It does not wait for the peer.
	Send(msg *event.ClientMsg) error

	// Recv is closed when the connection ends, after every event read before
	// the end has been delivered.
	Recv() <-chan *event.ServerMsg

	// Err reports why the connection ended: nil after a local Close,
	// otherwise the transport failure. Valid once Recv is closed.
	Err() error

	// Close tears down the connection. It is idempotent.
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
