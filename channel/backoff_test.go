package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqy/minichat/event"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff()
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 1500*time.Millisecond, b.Next())
	assert.Equal(t, 2250*time.Millisecond, b.Next())

	for i := 0; i < 20; i++ {
		b.Next()
	}
	assert.Equal(t, BackoffMaxInterval, b.Next())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

type nopConn struct{}

func (nopConn) Send(*event.ClientMsg) error   { return nil }
func (nopConn) Recv() <-chan *event.ServerMsg { return nil }
func (nopConn) Err() error                    { return nil }
func (nopConn) Close() error                  { return nil }

type flakyDialer struct {
	failures int
	calls    int
}

func (d *flakyDialer) Dial(ctx context.Context) (Conn, error) {
	d.calls++
	if d.calls <= d.failures {
		return nil, errors.New("connection refused")
	}
	return nopConn{}, nil
}

func fastBackoff() *Backoff {
	return &Backoff{Min: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2}
}

func TestRedial(t *testing.T) {
	d := &flakyDialer{failures: 2}
	var errs []error
	conn, err := Redial(context.Background(), d, fastBackoff(), func(err error) {
		errs = append(errs, err)
	})
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, d.calls)
	require.Len(t, errs, 3)
	assert.Error(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])
}

func TestRedialCancelled(t *testing.T) {
	d := &flakyDialer{failures: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := Redial(ctx, d, fastBackoff(), nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
