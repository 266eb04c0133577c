package channel

import (
	"context"
	"time"

	"github.com/golang/glog"
)

const (
	BackoffMinInterval = 1 * time.Second
	BackoffMaxInterval = 60 * time.Second
	BackoffMultiplier  = 1.5
)

// Backoff yields exponentially growing retry intervals, capped at Max.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64

	next time.Duration
}

func NewBackoff() *Backoff {
	return &Backoff{
		Min:        BackoffMinInterval,
		Max:        BackoffMaxInterval,
		Multiplier: BackoffMultiplier,
	}
}

// Next returns the interval to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	if b.next < b.Min {
		b.next = b.Min
	}
	out := b.next
	b.next = time.Duration(float64(b.next) * b.Multiplier)
	if b.next > b.Max {
		b.next = b.Max
	}
	return out
}

func (b *Backoff) Reset() {
	b.next = 0
}

// Redial dials until it succeeds or ctx is done, waiting b.Next() before
// each attempt. b is not reset on success: a dial that later turns out
// unusable keeps backing off until the caller calls b.Reset.
// onAttempt, when not nil, observes every attempt's error.
func Redial(ctx context.Context, dialer Dialer, b *Backoff, onAttempt func(error)) (Conn, error) {
	for attempt := 1; ; attempt++ {
		wait := b.Next()
		glog.V(5).Infof("channel: redial attempt %d in %s", attempt, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		conn, err := dialer.Dial(ctx)
		if onAttempt != nil {
			onAttempt(err)
		}
		if err == nil {
			return conn, nil
		}
		glog.Errorf("channel: redial attempt %d failed: %v", attempt, err)
	}
}
