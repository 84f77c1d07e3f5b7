// Package rpc implements the call bridge between page script and native
// code: a table of named bindings, the script that exposes them as
// Promise-returning globals, and the resolution path back into the page.
//
// The native side keeps no record of in-flight calls. A call is identified
// only by the sequence number the page assigned to it, which travels to the
// binding and back in the resolution script.
package rpc

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/jsonscan"
)

// ErrInvalidSequence is returned by Resolve for a sequence that is not a
// non-negative decimal integer.
var ErrInvalidSequence = errors.New("rpc: invalid sequence")

// Status values accepted by Resolve.
const (
	StatusOK    = 0
	StatusError = 1
)

// bindingJS installs a Promise-returning global for one binding. %s is the
// binding name as a JSON string literal.
const bindingJS = `(function() {
	var name = %s;
	var RPC = window._rpc = (window._rpc || {nextSeq: 1});
	window[name] = function() {
		var seq = RPC.nextSeq++;
		var promise = new Promise(function(resolve, reject) {
			RPC[seq] = {
				resolve: resolve,
				reject: reject,
			};
		});
		window.external.invoke(JSON.stringify({
			id: seq,
			method: name,
			params: Array.prototype.slice.call(arguments),
		}));
		return promise;
	};
})();`

// resolveJS settles one pending call. The lookup is guarded so resolving an
// unknown or already settled sequence does nothing.
const resolveJS = `if (window._rpc && window._rpc[%[1]s]) { window._rpc[%[1]s].%[2]s(%[3]s); delete window._rpc[%[1]s]; }`

// Bridge routes envelopes arriving from a surface to registered bindings
// and posts resolutions back to it.
type Bridge struct {
	surface core.Surface
	log     *zap.Logger

	mu       sync.RWMutex
	bindings map[string]core.BindingFunc
	closed   bool
}

// NewBridge attaches a bridge to surface and installs it as the surface's
// message handler.
func NewBridge(surface core.Surface, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{
		surface:  surface,
		log:      log,
		bindings: make(map[string]core.BindingFunc),
	}
	surface.OnMessage(b.HandleMessage)
	return b
}

// Bind exposes fn to page script as a global function called name. A later
// Bind with the same name replaces the earlier callback. The global is
// installed on every page loaded from now on and on the current page.
func (b *Bridge) Bind(name string, fn core.BindingFunc) error {
	if name == "" {
		return errors.New("rpc: binding name is empty")
	}
	if fn == nil {
		return fmt.Errorf("rpc: binding %q has a nil callback", name)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("rpc: bind %q on closed bridge", name)
	}
	_, replaced := b.bindings[name]
	b.bindings[name] = fn
	b.mu.Unlock()

	if replaced {
		b.log.Debug("rpc: binding replaced", zap.String("method", name))
		return nil
	}

	js := BindingScript(name)
	b.surface.Init(js)
	b.surface.Eval(js)
	b.log.Debug("rpc: binding registered", zap.String("method", name))
	return nil
}

// HandleMessage decodes one envelope and invokes the matching binding on
// the calling goroutine, which is the surface's UI goroutine. Envelopes
// that do not decode, whose params are not an array, or that name no
// binding are dropped.
func (b *Bridge) HandleMessage(msg string) {
	raw := []byte(msg)
	seq := jsonscan.Field(raw, "id", 0)
	method := jsonscan.Field(raw, "method", 0)

	if seq == "" || method == "" {
		b.log.Debug("rpc: dropping undecodable message", zap.Int("bytes", len(msg)))
		return
	}
	params := "[]"
	switch v, err := jsonscan.Find(raw, "params"); {
	case errors.Is(err, jsonscan.ErrNotFound):
	case err != nil || v[0] != '[':
		b.log.Debug("rpc: dropping message with non-array params", zap.String("method", method), zap.String("seq", seq))
		return
	default:
		params = string(v)
	}

	b.mu.RLock()
	fn, ok := b.bindings[method]
	b.mu.RUnlock()
	if !ok {
		b.log.Debug("rpc: no binding for method", zap.String("method", method), zap.String("seq", seq))
		return
	}
	fn(seq, params)
}

// Resolve settles the call identified by seq. With status StatusOK the
// page's promise resolves to result, otherwise it rejects with it. result
// must already be a JSON value; an empty result settles with undefined.
//
// Resolve may be called from any goroutine. The settlement script is
// always posted to the surface's UI goroutine, never run inline. Settling
// a sequence twice, or one that was never issued, is the caller's
// responsibility and has no effect on the page. Leading zeros are
// dropped, so "010" settles call 10.
func (b *Bridge) Resolve(seq string, status int, result string) error {
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSequence, seq)
	}
	js := ResolveScript(strconv.FormatUint(n, 10), status, result)
	b.surface.Dispatch(func() {
		b.surface.Eval(js)
	})
	return nil
}

// Names returns the bound names in sorted order.
func (b *Bridge) Names() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		names = append(names, name)
	}
	b.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Close releases every binding. Messages arriving afterwards are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.bindings = make(map[string]core.BindingFunc)
	b.closed = true
	b.mu.Unlock()
}

// BindingScript returns the script that installs the global for name.
func BindingScript(name string) string {
	return fmt.Sprintf(bindingJS, codec.JSONEscape(name))
}

// ResolveScript returns the script that settles call seq.
func ResolveScript(seq string, status int, result string) string {
	method := "resolve"
	if status != StatusOK {
		method = "reject"
	}
	if result == "" {
		result = "undefined"
	}
	return fmt.Sprintf(resolveJS, seq, method, result)
}
