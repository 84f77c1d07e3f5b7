// Package headless implements core.Surface without a window: page markup
// is parsed in Go and its scripts run in a script engine on the surface's
// UI goroutine. Each navigation gets a fresh script context.
package headless

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// Surface is a headless core.Surface backed by a core.Engine.
type Surface struct {
	engine core.Engine
	cfg    core.Config
	log    *zap.Logger
	loop   *eventloop.EventLoop
	client *http.Client

	mu        sync.Mutex
	inits     []string
	handler   core.MessageHandler
	title     string
	docTitle  string
	url       string
	size      core.Size
	visible   bool

	// Owned by the loop goroutine.
	page      *page
	queries   map[int]chan queryResult
	nextQuery int
}

type page struct {
	ctx core.ScriptContext
	url string
}

var (
	_ core.Surface = (*Surface)(nil)
	_ core.Querier = (*Surface)(nil)
)

// New creates a surface showing about:blank. Nothing runs until Run.
func New(engine core.Engine, cfg core.Config) *Surface {
	cfg = cfg.Normalize()
	log := cfg.Logger.With(zap.String("engine", engine.Name()))
	s := &Surface{
		engine:  engine,
		cfg:     cfg,
		log:     log,
		loop:    eventloop.New(log),
		client:  &http.Client{Timeout: 30 * time.Second},
		title:   cfg.Title,
		size:    core.Size{Width: cfg.Width, Height: cfg.Height, Hint: cfg.Hint},
		queries: make(map[int]chan queryResult),
	}
	s.loop.Post(func() { s.load(blankURL) })
	return s
}

// AddView does nothing; there is no view to attach.
func (s *Surface) AddView(bool) {}

func (s *Surface) Show() { s.setVisible(true) }
func (s *Surface) Hide() { s.setVisible(false) }

func (s *Surface) setVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

// Run drives the UI goroutine until Terminate. The current page is torn
// down before Run returns.
func (s *Surface) Run() {
	s.loop.Run(context.Background())
	s.failQueries(core.ErrTerminated)
	s.closePage()
}

// Terminate stops Run. Safe from any goroutine.
func (s *Surface) Terminate() {
	s.loop.Terminate()
}

// Dispatch posts f to the UI goroutine, followed by a microtask
// checkpoint on the current page.
func (s *Surface) Dispatch(f func()) {
	s.post(f)
}

// Navigate loads url in a fresh script context. Supported schemes are
// about:blank, data:text/html, http(s) and file.
func (s *Surface) Navigate(url string) {
	s.post(func() { s.load(url) })
}

// Init adds a script that runs on every later page load, after the page
// environment is set up and before the page's own scripts.
func (s *Surface) Init(js string) {
	s.mu.Lock()
	s.inits = append(s.inits, js)
	s.mu.Unlock()
}

// Eval evaluates js on the current page from the UI goroutine.
func (s *Surface) Eval(js string) {
	s.post(func() { s.eval(js) })
}

// SetTitle sets the window title. It does not touch document.title.
func (s *Surface) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
}

func (s *Surface) SetSize(width, height int, hint core.Hint) {
	s.mu.Lock()
	s.size = core.Size{Width: width, Height: height, Hint: hint}
	s.mu.Unlock()
}

// OnMessage installs the handler for window.external.invoke messages.
func (s *Surface) OnMessage(h core.MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Destroy stops the loop if it is still running. Work posted afterwards
// is dropped.
func (s *Surface) Destroy() {
	s.loop.Terminate()
}

// Title returns the window title.
func (s *Surface) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// DocumentTitle returns document.title of the current page.
func (s *Surface) DocumentTitle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docTitle
}

func (s *Surface) setDocumentTitle(title string) {
	s.mu.Lock()
	s.docTitle = title
	s.mu.Unlock()
}

// URL returns the URL of the most recently loaded page.
func (s *Surface) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Size returns the last size set.
func (s *Surface) Size() core.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Visible reports whether Show was called more recently than Hide.
func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Done is closed once Run has returned.
func (s *Surface) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Surface) post(f func()) {
	s.loop.Post(func() {
		f()
		s.checkpoint()
	})
}

func (s *Surface) eval(js string) {
	if s.page == nil {
		s.log.Debug("page: eval with no page loaded")
		return
	}
	if err := s.page.ctx.Eval(js); err != nil {
		s.reportError("eval", err)
	}
}

func (s *Surface) checkpoint() {
	if s.page != nil {
		s.page.ctx.RunMicrotasks()
	}
}

// deliver hands a page message to the installed handler on the loop.
func (s *Surface) deliver(msg string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		s.log.Debug("page: message with no handler", zap.Int("bytes", len(msg)))
		return
	}
	h(msg)
	s.checkpoint()
}

func (s *Surface) initScripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inits...)
}

func (s *Surface) reportError(what string, err error) {
	switch {
	case errors.Is(err, core.ErrPageDiscarded):
		s.log.Debug("page: "+what+" on discarded page", zap.Error(err))
	case errors.Is(err, core.ErrExecutionTimeout):
		s.log.Error("page: script timed out, page discarded until next navigation",
			zap.String("during", what), zap.Error(err))
	default:
		s.log.Warn("page: script threw", zap.String("during", what), zap.Error(err))
	}
}

// shortURL keeps data: URIs from flooding the log.
func shortURL(u string) string {
	const max = 64
	if len(u) <= max {
		return u
	}
	return u[:max] + "..."
}
