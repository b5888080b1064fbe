// Package typing turns keystrokes into typing/stop-typing signals and tracks
// the typing state of peers.
package typing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTimeout is how long after the last keystroke stop-typing is sent.
const DefaultTimeout = time.Second

// Target is the conversation a typing signal belongs to.
type Target struct {
	To   string
	Kind string // "dm" or "channel"
}

// EmitFunc receives typing transitions. It is called with the debouncer's lock
// held, so it must not call back into the Debouncer.
type EmitFunc func(target Target, typing bool)

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(d *Debouncer) { d.clock = c }
}

// WithTimeout sets the inactivity window after which stop-typing is emitted.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Debouncer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

type state struct {
	timer        *clock.Timer
	gen          uint64
	lastSignalAt time.Time
}

// Debouncer emits one typing signal per burst of keystrokes and a stop signal
// once the burst has been quiet for the timeout.
type Debouncer struct {
	clock   clock.Clock
	timeout time.Duration
	emit    EmitFunc

	mu     sync.Mutex
	active map[Target]*state
	gen    uint64
	closed bool
}

// NewDebouncer creates a debouncer that reports transitions to emit.
func NewDebouncer(emit EmitFunc, opts ...Option) *Debouncer {
	d := &Debouncer{
		clock:   clock.New(),
		timeout: DefaultTimeout,
		emit:    emit,
		active:  make(map[Target]*state),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Keystroke records local typing activity in target.
func (d *Debouncer) Keystroke(target Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	st, ok := d.active[target]
	if !ok {
		st = &state{}
		d.active[target] = st
		d.emit(target, true)
	} else {
		st.timer.Stop()
	}

	d.gen++
	gen := d.gen
	st.gen = gen
	st.lastSignalAt = d.clock.Now()
	st.timer = d.clock.AfterFunc(d.timeout, func() { d.expire(target, gen) })
}

// Stop ends typing in target immediately, e.g. when the message is sent.
func (d *Debouncer) Stop(target Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(target)
}

// Close stops every active target and disables the debouncer.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for target := range d.active {
		d.stopLocked(target)
	}
	d.closed = true
}

// Active reports whether a typing signal is outstanding for target.
func (d *Debouncer) Active(target Target) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[target]
	return ok
}

// LastSignal returns when target last saw a keystroke.
func (d *Debouncer) LastSignal(target Target) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.active[target]
	if !ok {
		return time.Time{}, false
	}
	return st.lastSignalAt, true
}

func (d *Debouncer) expire(target Target, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A keystroke after the timer fired re-armed a newer generation.
	if st, ok := d.active[target]; !ok || st.gen != gen {
		return
	}
	delete(d.active, target)
	d.emit(target, false)
}

func (d *Debouncer) stopLocked(target Target) {
	st, ok := d.active[target]
	if !ok {
		return
	}
	st.timer.Stop()
	delete(d.active, target)
	d.emit(target, false)
}
