package webbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// BindFunc binds an ordinary Go function. Page arguments are decoded into
// the function's parameters with encoding/json. fn may return nothing, a
// value, an error, or a value and an error; a value is encoded as the
// promise result and an error rejects the promise with its message.
//
// fn runs on its own goroutine, so it may block without stalling the page.
func (w *WebView) BindFunc(name string, fn any) error {
	call, err := reflectBinding(fn)
	if err != nil {
		return fmt.Errorf("webbridge: binding %q: %w", name, err)
	}
	return w.bridge.Bind(name, func(seq, req string) {
		go func() {
			result, err := call(req)
			if err != nil {
				w.settle(name, seq, StatusError, codec.JSONEscape(err.Error()))
				return
			}
			w.settle(name, seq, StatusOK, result)
		}()
	})
}

// reflectBinding checks fn's signature and returns a function that decodes
// a JSON argument array, calls fn and encodes its result.
func reflectBinding(fn any) (func(req string) (string, error), error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, errors.New("only non-nil functions can be bound")
	}
	t := v.Type()
	switch t.NumOut() {
	case 0, 1:
	case 2:
		if !t.Out(1).Implements(errorType) {
			return nil, errors.New("second return value must be an error")
		}
	default:
		return nil, errors.New("function may only return a value, an error, or both")
	}

	return func(req string) (result string, err error) {
		args, err := decodeArgs(t, req)
		if err != nil {
			return "", err
		}
		defer func() {
			if r := recover(); r != nil {
				Logger().Error("webbridge: bound function panicked", zap.Any("panic", r))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		out := v.Call(args)

		var value any
		switch len(out) {
		case 1:
			if t.Out(0).Implements(errorType) {
				if e, _ := out[0].Interface().(error); e != nil {
					return "", e
				}
				return "", nil
			}
			value = out[0].Interface()
		case 2:
			if e, _ := out[1].Interface().(error); e != nil {
				return "", e
			}
			value = out[0].Interface()
		default:
			return "", nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encoding result: %w", err)
		}
		return string(b), nil
	}, nil
}

func decodeArgs(t reflect.Type, req string) ([]reflect.Value, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(req), &raw); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	numIn := t.NumIn()
	variadic := t.IsVariadic()
	if (!variadic && len(raw) != numIn) || (variadic && len(raw) < numIn-1) {
		return nil, fmt.Errorf("got %d arguments, want %d", len(raw), numIn)
	}

	args := make([]reflect.Value, len(raw))
	for i := range raw {
		var arg reflect.Value
		if variadic && i >= numIn-1 {
			arg = reflect.New(t.In(numIn - 1).Elem())
		} else {
			arg = reflect.New(t.In(i))
		}
		if err := json.Unmarshal(raw[i], arg.Interface()); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = arg.Elem()
	}
	return args, nil
}
