package typing

import (
	"time"

	"github.com/golang/glog"
)

// Window is the trailing idle period after which typing is reported stopped.
const Window = time.Second

// Timer is a pending scheduled call.
type Timer interface {
	// Stop prevents the call from firing. It reports false if the call has
	// already fired or been stopped.
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler schedules on the runtime timers.
var RealScheduler Scheduler = realScheduler{}

// Debouncer turns a stream of activity pulses into pulsed typing intents:
// true on the first pulse after idle, false once after Window of silence or
// immediately on Cancel.
//
// Debouncer is not safe for concurrent use. Timer fires are handed to post,
// which must run them on the goroutine that owns the Debouncer.
type Debouncer struct {
	window time.Duration
	sched  Scheduler
	post   func(func())
	emit   func(typing bool)

	active  bool
	pending Timer
	gen     uint64
}

// NewDebouncer creates a Debouncer. A nil post runs fires directly on the
// timer goroutine, which is only safe with a synchronous Scheduler.
func NewDebouncer(sched Scheduler, post func(func()), emit func(typing bool)) *Debouncer {
	if sched == nil {
		sched = RealScheduler
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Debouncer{
		window: Window,
		sched:  sched,
		post:   post,
		emit:   emit,
	}
}

// Active reports whether typing=true is the last emitted intent.
func (d *Debouncer) Active() bool {
	return d.active
}

// Pulse records local activity.
func (d *Debouncer) Pulse() {
	if !d.active {
		d.active = true
		glog.V(5).Infof("typing: start")
		d.emit(true)
	}
	d.reschedule()
}

// Cancel forces typing=false now if active, and drops the pending timer.
func (d *Debouncer) Cancel() {
	d.stopTimer()
	if d.active {
		d.active = false
		glog.V(5).Infof("typing: cancelled")
		d.emit(false)
	}
}

// Stop drops the pending timer and resets to idle without emitting.
func (d *Debouncer) Stop() {
	d.stopTimer()
	d.active = false
}

func (d *Debouncer) reschedule() {
	d.stopTimer()
	gen := d.gen
	d.pending = d.sched.AfterFunc(d.window, func() {
		d.post(func() { d.fire(gen) })
	})
}

// stopTimer invalidates the pending handle: a fire already queued on the
// owner's loop carries a stale generation and is ignored.
func (d *Debouncer) stopTimer() {
	d.gen++
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	if gen != d.gen || !d.active {
		return
	}
	d.pending = nil
	d.active = false
	glog.V(5).Infof("typing: idle for %s", d.window)
	d.emit(false)
}
