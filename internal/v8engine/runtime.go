//go:build v8

package v8engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"time"

	v8 "github.com/tommie/v8go"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
)

// v8Runtime implements core.ScriptContext for the V8 engine. Each page
// gets its own isolate so a terminated page can be thrown away whole.
type v8Runtime struct {
	iso     *v8.Isolate
	ctx     *v8.Context
	timeout time.Duration
	dead    error
}

var _ core.ScriptContext = (*v8Runtime)(nil)

// Eval evaluates JavaScript and discards the result.
func (r *v8Runtime) Eval(js string) error {
	_, err := r.run(js, "page.js")
	return err
}

// EvalString evaluates JavaScript and returns the result as a Go string.
func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.run(js, "eval_string.js")
	if err != nil {
		return "", err
	}
	if val == nil || val.IsUndefined() {
		return "", nil
	}
	return val.String(), nil
}

// EvalBool evaluates JavaScript and returns the result as a Go bool.
func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.run(js, "eval_bool.js")
	if err != nil {
		return false, err
	}
	if val == nil || !val.IsBoolean() {
		return false, errors.New("v8: result is not a boolean")
	}
	return val.Boolean(), nil
}

// run executes one script under the execution watchdog.
func (r *v8Runtime) run(js, origin string) (val *v8.Value, err error) {
	if r.dead != nil {
		return nil, r.dead
	}
	var timedOut atomic.Bool
	if r.timeout > 0 {
		watchdog := time.AfterFunc(r.timeout, func() {
			timedOut.Store(true)
			r.iso.TerminateExecution()
		})
		defer watchdog.Stop()
	}
	val, err = r.ctx.RunScript(js, origin)
	if timedOut.Load() {
		r.dead = fmt.Errorf("%w: %w", core.ErrPageDiscarded, core.ErrExecutionTimeout)
		return nil, fmt.Errorf("%w (limit: %v)", core.ErrExecutionTimeout, r.timeout)
	}
	if err != nil {
		return nil, &core.ScriptError{Message: err.Error()}
	}
	return val, nil
}

// RegisterFunc exposes fn to page script as the global name. Arguments
// are converted to the parameter types (string, bool, integer and float
// kinds); missing trailing arguments take zero values. A non-nil error in
// the last result is thrown into script as a string.
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("register %s: %T is not a function", name, fn)
	}
	if ft.NumOut() > 2 || (ft.NumOut() == 2 && !ft.Out(1).Implements(errorType)) {
		return fmt.Errorf("register %s: unsupported results %s", name, ft)
	}
	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}

	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args := info.Args()
		in := make([]reflect.Value, len(params))
		for i, t := range params {
			if i < len(args) {
				in[i] = fromJS(args[i], t)
			} else {
				in[i] = reflect.Zero(t)
			}
		}
		out := fv.Call(in)
		if n := len(out); n > 0 {
			if last := out[n-1]; last.Type().Implements(errorType) {
				if !last.IsNil() {
					return r.throw(fmt.Sprintf("calling %s: %v", name, last.Interface()))
				}
				out = out[:n-1]
			}
		}
		if len(out) == 0 {
			return nil
		}
		return toJS(r.iso, out[0])
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *v8Runtime) throw(msg string) *v8.Value {
	v, err := v8.NewValue(r.iso, msg)
	if err == nil {
		r.iso.ThrowException(v)
	}
	return nil
}

// SetGlobal sets a global variable on the JS context.
func (r *v8Runtime) SetGlobal(name string, value any) error {
	if r.dead != nil {
		return r.dead
	}
	jsVal, err := globalValue(r.iso, r.ctx, value)
	if err != nil {
		return fmt.Errorf("converting value for %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, jsVal)
}

// RunMicrotasks pumps the V8 microtask queue.
func (r *v8Runtime) RunMicrotasks() {
	if r.dead != nil {
		return
	}
	r.ctx.PerformMicrotaskCheckpoint()
}

// Close disposes the context and its isolate.
func (r *v8Runtime) Close() {
	if r.ctx != nil {
		r.ctx.Close()
		r.iso.Dispose()
		r.ctx, r.iso = nil, nil
	}
	if r.dead == nil {
		r.dead = core.ErrPageDiscarded
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// fromJS converts a script value to a Go value of type t. Unsupported
// kinds yield the zero value.
func fromJS(v *v8.Value, t reflect.Type) reflect.Value {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		out.SetString(v.String())
	case reflect.Bool:
		out.SetBool(v.Boolean())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.SetInt(v.Integer())
	case reflect.Float32, reflect.Float64:
		out.SetFloat(v.Number())
	}
	return out
}

// toJS converts a Go result to a script value. Integers outside the int32
// range become doubles rather than BigInts.
func toJS(iso *v8.Isolate, v reflect.Value) *v8.Value {
	var (
		val *v8.Value
		err error
	)
	switch v.Kind() {
	case reflect.String:
		val, err = v8.NewValue(iso, v.String())
	case reflect.Bool:
		val, err = v8.NewValue(iso, v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := v.Int(); n >= math.MinInt32 && n <= math.MaxInt32 {
			val, err = v8.NewValue(iso, int32(n))
		} else {
			val, err = v8.NewValue(iso, float64(n))
		}
	case reflect.Float32, reflect.Float64:
		val, err = v8.NewValue(iso, v.Float())
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return val
}

// globalValue converts a Go value for SetGlobal. Anything beyond scalars
// goes through JSON.
func globalValue(iso *v8.Isolate, ctx *v8.Context, value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(iso), nil
	case *v8.Value:
		return v, nil
	case string, bool, float64, int32:
		return v8.NewValue(iso, v)
	case int:
		return toJS(iso, reflect.ValueOf(v)), nil
	case int64:
		return toJS(iso, reflect.ValueOf(v)), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshaling value: %w", err)
	}
	return ctx.RunScript("JSON.parse("+codec.JSONEscape(string(data))+")", "global.js")
}
