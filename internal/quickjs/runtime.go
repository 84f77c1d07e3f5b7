//go:build !v8

package quickjs

import (
	"fmt"
	"sync/atomic"
	"time"

	"modernc.org/quickjs"

	"github.com/cryguy/webbridge/internal/core"
)

// qjsRuntime implements core.ScriptContext for the QuickJS engine. Every
// evaluation runs under a watchdog that interrupts the VM after timeout.
type qjsRuntime struct {
	vm      *quickjs.VM
	jobs    jobQueue
	timeout time.Duration
	dead    error // set once the VM was interrupted or panicked
}

var _ core.ScriptContext = (*qjsRuntime)(nil)

// Eval evaluates JavaScript and discards the result.
func (r *qjsRuntime) Eval(js string) error {
	return r.guard(func() error {
		v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
		if err != nil {
			return scriptError(err)
		}
		v.Free()
		return nil
	})
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *qjsRuntime) EvalString(js string) (s string, err error) {
	err = r.guard(func() error {
		result, err := r.vm.Eval(js, quickjs.EvalGlobal)
		if err != nil {
			return scriptError(err)
		}
		if result != nil {
			s = fmt.Sprint(result)
		}
		return nil
	})
	return s, err
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *qjsRuntime) EvalBool(js string) (b bool, err error) {
	err = r.guard(func() error {
		result, err := r.vm.Eval(js, quickjs.EvalGlobal)
		if err != nil {
			return scriptError(err)
		}
		v, ok := result.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", result)
		}
		b = v
		return nil
	})
	return b, err
}

// RegisterFunc registers a Go function as a global JavaScript function.
// Multi-value Go returns (T, error) are automatically unwrapped: on success
// returns T, on error throws a TypeError. This is necessary because the
// QuickJS Go wrapper returns multi-value results as JS arrays.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	rawName := "__raw_" + name
	if err := r.vm.RegisterFunc(rawName, fn, false); err != nil {
		return err
	}
	wrapJS := fmt.Sprintf(`(function() {
		var raw = globalThis[%q];
		globalThis[%q] = function() {
			var r = raw.apply(this, arguments);
			if (Array.isArray(r) && r.length === 2) {
				if (r[1] !== null && r[1] !== undefined) throw new TypeError("calling %s: " + r[1]);
				return r[0];
			}
			return r;
		};
		delete globalThis[%q];
	})()`, rawName, name, name, rawName)
	return r.Eval(wrapJS)
}

// SetGlobal sets a global property on the VM's global object.
func (r *qjsRuntime) SetGlobal(name string, value any) error {
	if r.dead != nil {
		return r.dead
	}
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	glob := r.vm.GlobalObject()
	defer glob.Free()
	return glob.SetProperty(atom, value)
}

// RunMicrotasks pumps the QuickJS microtask queue. A promise chain that
// never settles is cut off by the same watchdog as Eval.
func (r *qjsRuntime) RunMicrotasks() {
	_ = r.guard(func() error {
		r.jobs.drain()
		return nil
	})
}

// Close releases the VM.
func (r *qjsRuntime) Close() {
	if r.vm != nil {
		r.vm.Close()
		r.vm = nil
	}
	if r.dead == nil {
		r.dead = core.ErrPageDiscarded
	}
}

// guard runs fn under the execution watchdog. A timeout or an engine panic
// leaves the runtime dead.
func (r *qjsRuntime) guard(fn func() error) (err error) {
	if r.dead != nil {
		return r.dead
	}
	if r.timeout <= 0 {
		defer r.recoverPanic(&err, nil)
		return fn()
	}

	var timedOut atomic.Bool
	watchdog := time.AfterFunc(r.timeout, func() {
		timedOut.Store(true)
		r.vm.Interrupt()
	})
	defer func() {
		watchdog.Stop()
		if timedOut.Load() {
			err = fmt.Errorf("%w (limit: %v)", core.ErrExecutionTimeout, r.timeout)
			r.dead = fmt.Errorf("%w: %w", core.ErrPageDiscarded, core.ErrExecutionTimeout)
		}
	}()
	defer r.recoverPanic(&err, &timedOut)
	return fn()
}

func (r *qjsRuntime) recoverPanic(err *error, timedOut *atomic.Bool) {
	p := recover()
	if p == nil {
		return
	}
	if timedOut != nil && timedOut.Load() {
		return
	}
	*err = fmt.Errorf("quickjs panic: %v", p)
	r.dead = fmt.Errorf("%w: %v", core.ErrPageDiscarded, p)
}

func scriptError(err error) error {
	return &core.ScriptError{Message: err.Error()}
}
