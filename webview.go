// Package webbridge embeds a web page behind a small window API and bridges
// calls between page script and Go.
//
// A WebView wraps one surface: a headless JavaScript engine (New), a
// browser tab driven over a websocket (NewRemote) or a native platform
// window (NewNative, built with the webview tag). Go functions registered
// with Bind become global functions in the page that return promises; Go
// settles them later with Return, from any goroutine.
package webbridge

import (
	"context"
	"errors"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/headless"
	"github.com/cryguy/webbridge/internal/remote"
	"github.com/cryguy/webbridge/internal/rpc"
)

// Config configures a WebView. Zero fields take the DefaultConfig value.
type Config = core.Config

// DefaultConfig returns the configuration used for zero Config fields.
func DefaultConfig() Config { return core.DefaultConfig() }

// Hint describes how SetSize treats width and height.
type Hint = core.Hint

const (
	HintNone  = core.HintNone
	HintMin   = core.HintMin
	HintMax   = core.HintMax
	HintFixed = core.HintFixed
)

// Status values for Return.
const (
	StatusOK    = rpc.StatusOK
	StatusError = rpc.StatusError
)

var (
	// ErrQueryUnsupported is returned by Query on surfaces that can not
	// report evaluation results.
	ErrQueryUnsupported = errors.New("webbridge: surface does not support queries")

	ErrInvalidSequence  = rpc.ErrInvalidSequence
	ErrTerminated       = core.ErrTerminated
	ErrExecutionTimeout = core.ErrExecutionTimeout
	ErrPageDiscarded    = core.ErrPageDiscarded
)

// ScriptError carries the message of an exception thrown by page script.
type ScriptError = core.ScriptError

// WebView is a page plus the call bridge into it.
type WebView struct {
	id      string
	surface core.Surface
	bridge  *rpc.Bridge
	log     *zap.Logger

	hideOnClose atomic.Bool
}

// New creates a headless web view. Pages run in an embedded JavaScript
// engine: QuickJS by default, V8 when built with the v8 tag.
func New(cfg Config) (*WebView, error) {
	cfg, id := prepare(cfg)
	return attach(headless.New(headlessEngine(), cfg), cfg, id), nil
}

// NewRemote creates a web view whose page is served on cfg.Addr to an
// ordinary browser. Open URL in a browser to show it.
func NewRemote(cfg Config) (*WebView, error) {
	cfg, id := prepare(cfg)
	s, err := remote.New(cfg)
	if err != nil {
		return nil, err
	}
	return attach(s, cfg, id), nil
}

// prepare assigns an instance ID and tags the logger with it.
func prepare(cfg Config) (Config, string) {
	u, _ := uuid.NewV4()
	id := u.String()
	if cfg.Logger == nil {
		cfg.Logger = Logger()
	}
	cfg.Logger = cfg.Logger.With(zap.String("surface", id))
	return cfg.Normalize(), id
}

func attach(s core.Surface, cfg Config, id string) *WebView {
	w := &WebView{
		id:      id,
		surface: s,
		bridge:  rpc.NewBridge(s, cfg.Logger.Named("rpc")),
		log:     cfg.Logger,
	}
	w.log.Debug("webbridge: surface created")
	return w
}

// ID identifies this web view in logs.
func (w *WebView) ID() string { return w.id }

// Run drives the surface until Terminate. Native surfaces must be run on
// the main goroutine.
func (w *WebView) Run() { w.surface.Run() }

// Terminate makes Run return. It is safe from any goroutine.
func (w *WebView) Terminate() { w.surface.Terminate() }

// Dispatch runs f on the UI goroutine. Closures run in the order they were
// dispatched; those dispatched after Terminate are dropped.
func (w *WebView) Dispatch(f func()) { w.surface.Dispatch(f) }

// Destroy releases the bridge and the surface. Call it after Run returns.
func (w *WebView) Destroy() {
	w.bridge.Close()
	w.surface.Destroy()
}

// Navigate loads url. An empty url shows a placeholder page.
func (w *WebView) Navigate(url string) { w.surface.Navigate(normalizeURL(url)) }

// SetHTML loads html as the page.
func (w *WebView) SetHTML(html string) { w.surface.Navigate(codec.HTMLToURI(html)) }

// Init registers js to run on every page load before the page's own
// scripts.
func (w *WebView) Init(js string) { w.surface.Init(js) }

// Eval evaluates js on the current page and discards the result.
func (w *WebView) Eval(js string) { w.surface.Eval(js) }

func (w *WebView) SetTitle(title string) { w.surface.SetTitle(title) }

func (w *WebView) SetSize(width, height int, hint Hint) {
	w.surface.SetSize(width, height, hint)
}

// SetHideOnClose records whether closing the window should hide it
// instead of ending Run. None of the surfaces own a close button, so the
// setting is only kept for callers that manage windows themselves.
func (w *WebView) SetHideOnClose(hide bool) { w.hideOnClose.Store(hide) }

// HideOnClose reports the last SetHideOnClose value.
func (w *WebView) HideOnClose() bool { return w.hideOnClose.Load() }

func (w *WebView) AddView(debug bool) { w.surface.AddView(debug) }
func (w *WebView) Show() { w.surface.Show() }
func (w *WebView) Hide() { w.surface.Hide() }

// Bind exposes fn to the page as a global function called name. fn runs on
// the UI goroutine with the call's sequence and its JSON argument array;
// the call stays pending until Return is called with that sequence.
func (w *WebView) Bind(name string, fn func(seq, req string)) error {
	return w.bridge.Bind(name, fn)
}

// BindSync binds a function that settles its call before returning. The
// result must be a JSON value; an error rejects the call with its message.
func (w *WebView) BindSync(name string, fn func(req string) (string, error)) error {
	if fn == nil {
		return w.bridge.Bind(name, nil)
	}
	return w.bridge.Bind(name, func(seq, req string) {
		result, err := fn(req)
		if err != nil {
			w.settle(name, seq, StatusError, codec.JSONEscape(err.Error()))
			return
		}
		w.settle(name, seq, StatusOK, result)
	})
}

// Return settles call seq. With StatusOK the page's promise resolves to
// result, otherwise it rejects with it. result must be a JSON value. It is
// safe from any goroutine.
func (w *WebView) Return(seq string, status int, result string) error {
	return w.bridge.Resolve(seq, status, result)
}

func (w *WebView) settle(name, seq string, status int, result string) {
	if err := w.bridge.Resolve(seq, status, result); err != nil {
		w.log.Warn("webbridge: settling call", zap.String("method", name), zap.Error(err))
	}
}

// Query evaluates js on the UI goroutine and returns its result as a
// string. Promises are awaited. Only headless surfaces support it.
func (w *WebView) Query(ctx context.Context, js string) (string, error) {
	q, ok := w.surface.(core.Querier)
	if !ok {
		return "", ErrQueryUnsupported
	}
	return q.Query(ctx, js)
}

// Bindings returns the names bound with Bind, BindSync and BindFunc,
// sorted.
func (w *WebView) Bindings() []string { return w.bridge.Names() }

// DocumentTitle returns document.title of the current page on headless
// surfaces and "" elsewhere.
func (w *WebView) DocumentTitle() string {
	if d, ok := w.surface.(interface{ DocumentTitle() string }); ok {
		return d.DocumentTitle()
	}
	return ""
}

// URL reports where the page lives: the serving address for remote web
// views and the current document for headless ones. It is empty for
// native windows.
func (w *WebView) URL() string {
	if u, ok := w.surface.(interface{ URL() string }); ok {
		return u.URL()
	}
	return ""
}
