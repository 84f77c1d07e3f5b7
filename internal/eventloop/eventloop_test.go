package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func runLoop(t *testing.T, el *EventLoop) {
	t.Helper()
	go el.Run(context.Background())
	t.Cleanup(func() {
		el.Terminate()
		<-el.Done()
	})
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestEventLoop_New(t *testing.T) {
	el := New(nil)
	if el.timers == nil {
		t.Error("timers map should be initialized")
	}
	if el.hasPending() {
		t.Error("new event loop should have nothing pending")
	}
	if el.Terminated() {
		t.Error("new event loop should not be terminated")
	}
}

func TestEventLoop_PostRunsInOrder(t *testing.T) {
	el := New(nil)

	var got []int
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		i := i
		el.Post(func() { got = append(got, i) })
	}
	el.Post(func() { close(done) })

	runLoop(t, el)
	waitFor(t, done, "queued closures")

	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestEventLoop_PostFromManyGoroutines(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	const posters, perPoster = 8, 200
	var (
		mu   sync.Mutex
		seen = make(map[int][]int)
		wg   sync.WaitGroup
	)
	var remaining atomic.Int64
	remaining.Store(posters * perPoster)
	done := make(chan struct{})

	for p := 0; p < posters; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPoster; i++ {
				i := i
				el.Post(func() {
					mu.Lock()
					seen[p] = append(seen[p], i)
					mu.Unlock()
					if remaining.Add(-1) == 0 {
						close(done)
					}
				})
			}
		}(p)
	}
	wg.Wait()
	waitFor(t, done, "all posts")

	// FIFO holds per poster.
	for p, vals := range seen {
		for i, v := range vals {
			if v != i {
				t.Fatalf("poster %d: position %d ran %d", p, i, v)
			}
		}
	}
}

func TestEventLoop_PostAfterTerminateIsDropped(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	el.Terminate()
	waitFor(t, el.Done(), "loop exit")

	ran := false
	if el.Post(func() { ran = true }) {
		t.Error("Post returned true after Terminate")
	}
	if ran {
		t.Error("closure ran after Terminate")
	}
	el.Terminate() // idempotent
}

func TestEventLoop_TerminateFromInsideLoop(t *testing.T) {
	el := New(nil)
	var after atomic.Bool
	el.Post(func() { el.Terminate() })
	el.Post(func() { after.Store(true) })

	go el.Run(context.Background())
	waitFor(t, el.Done(), "loop exit")

	if after.Load() {
		t.Error("closure queued behind Terminate still ran")
	}
}

func TestEventLoop_ContextCancelStopsRun(t *testing.T) {
	el := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go el.Run(ctx)
	cancel()
	waitFor(t, el.Done(), "loop exit")
	if !el.Terminated() {
		t.Error("cancelled loop should report terminated")
	}
}

func TestEventLoop_PanicDoesNotKillLoop(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	done := make(chan struct{})
	el.Post(func() { panic("boom") })
	el.Post(func() { close(done) })
	waitFor(t, done, "closure after panic")
}

func TestEventLoop_SetTimeoutFires(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	fired := make(chan int, 1)
	start := time.Now()
	id := el.RegisterTimer(20*time.Millisecond, false, func(id int) { fired <- id })
	if id != 1 {
		t.Errorf("first timer ID = %d, want 1", id)
	}

	select {
	case got := <-fired:
		if got != id {
			t.Errorf("fired ID = %d, want %d", got, id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer never fired")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("timer fired after %v, want >= 20ms", elapsed)
	}
}

func TestEventLoop_TimersFireInDeadlineOrder(t *testing.T) {
	el := New(nil)

	var order []int
	done := make(chan struct{})
	el.RegisterTimer(30*time.Millisecond, false, func(int) { order = append(order, 3); close(done) })
	el.RegisterTimer(10*time.Millisecond, false, func(int) { order = append(order, 1) })
	el.RegisterTimer(20*time.Millisecond, false, func(int) { order = append(order, 2) })

	runLoop(t, el)
	waitFor(t, done, "timers")

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestEventLoop_ClearTimer(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	var fired atomic.Bool
	id := el.RegisterTimer(20*time.Millisecond, false, func(int) { fired.Store(true) })
	el.ClearTimer(id)

	done := make(chan struct{})
	el.RegisterTimer(60*time.Millisecond, false, func(int) { close(done) })
	waitFor(t, done, "sentinel timer")

	if fired.Load() {
		t.Error("cleared timer fired")
	}
}

func TestEventLoop_IntervalRepeatsAndClamps(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	var count atomic.Int32
	done := make(chan struct{})
	el.RegisterTimer(time.Millisecond, true, func(id int) {
		if count.Add(1) == 3 {
			el.ClearTimer(id)
			close(done)
		}
	})
	waitFor(t, done, "three interval ticks")
	id := 1

	el.mu.Lock()
	_, still := el.timers[id]
	el.mu.Unlock()
	if still {
		t.Error("cleared interval still registered")
	}
}

func TestEventLoop_ResetTimers(t *testing.T) {
	el := New(nil)
	el.RegisterTimer(time.Hour, false, func(int) {})
	el.RegisterTimer(time.Hour, true, func(int) {})
	if !el.hasPending() {
		t.Fatal("expected pending timers")
	}
	el.ResetTimers()
	if el.hasPending() {
		t.Error("ResetTimers left timers behind")
	}
}

func TestEventLoop_ZeroDelayRearmDoesNotStarveQueue(t *testing.T) {
	el := New(nil)
	runLoop(t, el)

	var rearm func(int)
	rearm = func(int) { el.RegisterTimer(0, false, rearm) }
	el.RegisterTimer(0, false, rearm)

	done := make(chan struct{})
	el.Post(func() { close(done) })
	waitFor(t, done, "post behind re-arming timer")
}
