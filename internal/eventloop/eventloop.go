// Package eventloop implements the UI goroutine of a surface: a FIFO queue of
// closures that any goroutine may post to, drained by a single consumer that
// also fires page timers.
package eventloop

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// minInterval is the shortest period accepted for repeating timers.
const minInterval = 10 * time.Millisecond

// timerEntry is a pending setTimeout or setInterval. The JS callback itself
// lives on the script side; fire only receives the timer ID.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for one-shot timers
	id       int
	fire     func(id int)
}

// EventLoop is a single-consumer executor. Post is safe from any goroutine;
// everything else that touches page state runs inside Run.
type EventLoop struct {
	mu      sync.Mutex
	queue   []func()
	timers  map[int]*timerEntry
	nextID  int
	closed  bool
	started bool

	wake chan struct{}
	done chan struct{}
	log  *zap.Logger
}

// New creates an EventLoop. A nil logger disables logging.
func New(log *zap.Logger) *EventLoop {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLoop{
		timers: make(map[int]*timerEntry),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Post queues fn for execution on the loop goroutine. Closures run in the
// order they were posted. Once the loop has been terminated fn is dropped
// and Post returns false.
func (el *EventLoop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	el.mu.Lock()
	if el.closed {
		el.mu.Unlock()
		el.log.Debug("eventloop: dropping post after terminate")
		return false
	}
	el.queue = append(el.queue, fn)
	el.mu.Unlock()
	el.signal()
	return true
}

// RegisterTimer schedules fire to run on the loop goroutine after delay, and
// every delay thereafter when isInterval is set. It returns the timer ID.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool, fire func(id int)) int {
	if delay < 0 {
		delay = 0
	}
	el.mu.Lock()
	el.nextID++
	id := el.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
		fire:     fire,
	}
	if isInterval {
		if delay < minInterval {
			delay = minInterval
		}
		entry.interval = delay
	}
	if !el.closed {
		el.timers[id] = entry
	}
	el.mu.Unlock()
	el.signal()
	return id
}

// ClearTimer cancels a timer by ID. Unknown IDs are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	delete(el.timers, id)
	el.mu.Unlock()
}

// ResetTimers drops every pending timer. Surfaces call it when a page is
// replaced, since the old page's callbacks are gone.
func (el *EventLoop) ResetTimers() {
	el.mu.Lock()
	el.timers = make(map[int]*timerEntry)
	el.mu.Unlock()
}

// hasPending reports whether closures or timers are waiting.
func (el *EventLoop) hasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.queue) > 0 || len(el.timers) > 0
}

// Terminate stops the loop. Closures still queued are abandoned and later
// posts are dropped. It is safe to call more than once and from any
// goroutine, including the loop itself.
func (el *EventLoop) Terminate() {
	el.mu.Lock()
	if el.closed {
		el.mu.Unlock()
		return
	}
	el.closed = true
	abandoned := len(el.queue)
	el.queue = nil
	el.timers = make(map[int]*timerEntry)
	el.mu.Unlock()
	if abandoned > 0 {
		el.log.Debug("eventloop: terminated with queued work", zap.Int("abandoned", abandoned))
	}
	el.signal()
}

// Terminated reports whether Terminate has been called.
func (el *EventLoop) Terminated() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.closed
}

// Done is closed when Run returns.
func (el *EventLoop) Done() <-chan struct{} {
	return el.done
}

// Run executes posted closures and due timers on the calling goroutine,
// which is locked to its OS thread for the duration. It returns after
// Terminate or when ctx is cancelled. Run may only be called once.
func (el *EventLoop) Run(ctx context.Context) {
	el.mu.Lock()
	if el.started {
		el.mu.Unlock()
		panic("eventloop: Run called twice")
	}
	el.started = true
	el.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(el.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			el.Terminate()
			return
		}
		el.drainQueue()
		el.fireDueTimers()

		el.mu.Lock()
		if el.closed {
			el.mu.Unlock()
			return
		}
		if len(el.queue) > 0 {
			el.mu.Unlock()
			continue
		}
		wait, ok := el.nextDeadline()
		el.mu.Unlock()

		if !ok {
			select {
			case <-el.wake:
			case <-ctx.Done():
			}
			continue
		}
		if wait <= 0 {
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-el.wake:
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}

// drainQueue runs every closure queued at the time of the call. Closures
// posted meanwhile are picked up by the next iteration.
func (el *EventLoop) drainQueue() {
	el.mu.Lock()
	batch := el.queue
	el.queue = nil
	el.mu.Unlock()

	for _, fn := range batch {
		if el.Terminated() {
			return
		}
		el.call(fn)
	}
}

// fireDueTimers fires timers whose deadline has passed, earliest first.
// Timers registered while firing wait for the next iteration so a page
// re-arming setTimeout(fn, 0) can not starve the queue.
func (el *EventLoop) fireDueTimers() {
	el.mu.Lock()
	lastID := el.nextID
	el.mu.Unlock()

	for {
		el.mu.Lock()
		var next *timerEntry
		now := time.Now()
		for _, t := range el.timers {
			if t.id > lastID || t.deadline.After(now) {
				continue
			}
			if next == nil || t.deadline.Before(next.deadline) ||
				(t.deadline.Equal(next.deadline) && t.id < next.id) {
				next = t
			}
		}
		if next == nil || el.closed {
			el.mu.Unlock()
			return
		}
		if next.interval > 0 {
			next.deadline = now.Add(next.interval)
		} else {
			delete(el.timers, next.id)
		}
		id, fire := next.id, next.fire
		el.mu.Unlock()

		if fire != nil {
			el.call(func() { fire(id) })
		}
	}
}

// nextDeadline returns the time until the earliest timer. mu must be held.
func (el *EventLoop) nextDeadline() (time.Duration, bool) {
	var earliest time.Time
	found := false
	for _, t := range el.timers {
		if !found || t.deadline.Before(earliest) {
			earliest = t.deadline
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return time.Until(earliest), true
}

// call runs fn, keeping the loop alive if it panics.
func (el *EventLoop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			el.log.Error("eventloop: recovered panic in posted closure", zap.Any("panic", r))
		}
	}()
	fn()
}

func (el *EventLoop) signal() {
	select {
	case el.wake <- struct{}{}:
	default:
	}
}
