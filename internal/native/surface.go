//go:build webview

// Package native implements core.Surface over the platform web view
// (WebKitGTK, WKWebView or WebView2) through webview_go. It needs cgo and
// the platform SDKs, so it only builds with the webview tag.
package native

import (
	"errors"
	"sync"
	"sync/atomic"

	webview "github.com/webview/webview_go"
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
)

// postBinding is the native function page script reaches through
// window.external.invoke.
const postBinding = "__webbridge_post"

const invokeJS = `(function() {
	var post = window.__webbridge_post;
	var invoke = function(msg) { post(String(msg)); };
	try { window.external.invoke = invoke; } catch (e) {}
	if (!window.external || window.external.invoke !== invoke) {
		Object.defineProperty(window, 'external', {value: {invoke: invoke}, configurable: true});
	}
})();`

// Surface wraps one native window.
type Surface struct {
	w   webview.WebView
	log *zap.Logger

	mu      sync.Mutex
	handler core.MessageHandler
	visible bool

	terminated atomic.Bool
}

var _ core.Surface = (*Surface)(nil)

// New opens a native window. It must be called from the main goroutine,
// which Run then blocks.
func New(cfg core.Config) (*Surface, error) {
	cfg = cfg.Normalize()
	w := webview.New(cfg.Debug)
	if w == nil {
		return nil, errors.New("native: creating web view failed")
	}
	s := &Surface{w: w, log: cfg.Logger, visible: true}
	if err := w.Bind(postBinding, s.post); err != nil {
		w.Destroy()
		return nil, err
	}
	w.Init(invokeJS)
	w.SetTitle(cfg.Title)
	w.SetSize(cfg.Width, cfg.Height, hint(cfg.Hint))
	return s, nil
}

// post runs on the UI thread when page script calls the binding.
func (s *Surface) post(msg string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		s.log.Debug("native: message with no handler", zap.Int("bytes", len(msg)))
		return
	}
	h(msg)
}

// AddView does nothing; webview_go attaches the view when the window is
// created.
func (s *Surface) AddView(bool) {}

// Show and Hide record the requested state. webview_go exposes no
// visibility control.
func (s *Surface) Show() { s.setVisible(true) }
func (s *Surface) Hide() { s.setVisible(false) }

func (s *Surface) setVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
	s.log.Debug("native: visibility is not controllable", zap.Bool("visible", v))
}

func (s *Surface) Run() { s.w.Run() }

func (s *Surface) Terminate() {
	if s.terminated.Swap(true) {
		return
	}
	s.w.Terminate()
}

func (s *Surface) Dispatch(f func()) {
	if s.terminated.Load() {
		s.log.Debug("native: dropping dispatch after terminate")
		return
	}
	s.w.Dispatch(f)
}

func (s *Surface) Navigate(url string) { s.w.Navigate(url) }
func (s *Surface) Init(js string) { s.w.Init(js) }
func (s *Surface) Eval(js string) { s.w.Eval(js) }
func (s *Surface) SetTitle(t string) { s.w.SetTitle(t) }

func (s *Surface) SetSize(width, height int, h core.Hint) {
	s.w.SetSize(width, height, hint(h))
}

func (s *Surface) OnMessage(h core.MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Surface) Destroy() {
	s.terminated.Store(true)
	s.w.Destroy()
}

func hint(h core.Hint) webview.Hint {
	switch h {
	case core.HintMin:
		return webview.HintMin
	case core.HintMax:
		return webview.HintMax
	case core.HintFixed:
		return webview.HintFixed
	}
	return webview.HintNone
}
