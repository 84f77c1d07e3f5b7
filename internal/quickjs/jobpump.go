//go:build !v8

package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// jobQueue drains the QuickJS job queue (promise reactions). The
// modernc.org/quickjs wrapper never calls JS_ExecutePendingJob, so without
// it .then() callbacks would never run.
type jobQueue struct {
	rt  uintptr
	tls *libc.TLS
}

// newJobQueue locates the C runtime behind vm. ok is false when the
// wrapper's layout is not the one expected, in which case microtasks
// cannot be pumped.
func newJobQueue(vm *quickjs.VM) (q jobQueue, ok bool) {
	v := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !v.IsValid() || v.IsNil() {
		return q, false
	}
	// runtime is unexported: struct { cRuntime uintptr; tls *libc.TLS }
	rt := reflect.NewAt(v.Type().Elem(), unsafe.Pointer(v.Pointer())).Elem()
	c, t := rt.FieldByName("cRuntime"), rt.FieldByName("tls")
	if !c.IsValid() || !t.IsValid() || t.IsNil() {
		return q, false
	}
	return jobQueue{rt: uintptr(c.Uint()), tls: (*libc.TLS)(unsafe.Pointer(t.Pointer()))}, true
}

// drain runs jobs until the queue is empty and reports how many ran. A
// throwing job does not stop the ones queued after it.
func (q jobQueue) drain() int {
	if q.tls == nil {
		return 0
	}
	ran := 0
	for lib.XJS_ExecutePendingJob(q.tls, q.rt, 0) != 0 {
		ran++
	}
	return ran
}
