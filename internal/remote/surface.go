// Package remote implements core.Surface on top of an ordinary browser.
// The surface serves the current document over HTTP and talks to the
// page over a websocket; scripts run in whichever tab opens the URL.
//
// Resolutions are broadcast to every connected tab. The surface expects a
// single tab; a second tab sees the same evaluations and may collide on
// call sequence numbers.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// Surface serves a page to browsers and bridges it over a websocket.
type Surface struct {
	cfg  core.Config
	log  *zap.Logger
	loop *eventloop.EventLoop
	ln   net.Listener
	srv  *http.Server

	mu      sync.Mutex
	inits   []string
	doc     string
	url     string
	title   string
	size    core.Size
	visible bool
	handler core.MessageHandler
	clients map[*client]struct{}
}

var _ core.Surface = (*Surface)(nil)

// New listens on cfg.Addr. The page is reachable at URL once Run is
// called.
func New(cfg core.Config) (*Surface, error) {
	cfg = cfg.Normalize()
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("remote: listening on %s: %w", cfg.Addr, err)
	}
	log := cfg.Logger.With(zap.String("addr", ln.Addr().String()))
	s := &Surface{
		cfg:     cfg,
		log:     log,
		loop:    eventloop.New(log),
		ln:      ln,
		url:     blankURL,
		title:   cfg.Title,
		size:    core.Size{Width: cfg.Width, Height: cfg.Height, Hint: cfg.Hint},
		clients: make(map[*client]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.servePage)
	mux.HandleFunc("/ws", s.serveSocket)
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

// URL is the address to open in a browser.
func (s *Surface) URL() string {
	return "http://" + s.ln.Addr().String() + "/"
}

// AddView does nothing; the browser owns the view.
func (s *Surface) AddView(bool) {}

func (s *Surface) Show() { s.setVisible(true) }
func (s *Surface) Hide() { s.setVisible(false) }

func (s *Surface) setVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

// Run serves HTTP and drives the UI goroutine until Terminate.
func (s *Surface) Run() {
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.srv.Serve(s.ln) }()
	s.log.Info("remote: serving page", zap.String("url", s.URL()))

	s.loop.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("remote: shutdown", zap.Error(err))
	}
	s.closeClients()
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("remote: serve", zap.Error(err))
	}
}

func (s *Surface) Terminate() { s.loop.Terminate() }

// Dispatch posts f to the UI goroutine.
func (s *Surface) Dispatch(f func()) { s.loop.Post(f) }

// Navigate replaces the served document and reloads connected tabs.
// about:blank and data:text/html URIs are served by the surface; any
// other URL is handed to the tab, which then leaves the bridge.
func (s *Surface) Navigate(url string) {
	s.loop.Post(func() { s.navigate(url) })
}

// Init adds a script served ahead of the page's own scripts on every
// later load.
func (s *Surface) Init(js string) {
	s.mu.Lock()
	s.inits = append(s.inits, js)
	s.mu.Unlock()
}

// Eval sends js to every connected tab.
func (s *Surface) Eval(js string) {
	s.loop.Post(func() { s.broadcast(frame{Type: frameEval, JS: js}) })
}

// SetTitle sets the tab title of connected and future tabs.
func (s *Surface) SetTitle(title string) {
	s.mu.Lock()
	s.title = title
	s.mu.Unlock()
	s.loop.Post(func() { s.broadcast(frame{Type: frameTitle, Title: title}) })
}

func (s *Surface) SetSize(width, height int, hint core.Hint) {
	s.mu.Lock()
	s.size = core.Size{Width: width, Height: height, Hint: hint}
	s.mu.Unlock()
}

func (s *Surface) OnMessage(h core.MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Destroy stops the loop and closes the listener if Run never did.
func (s *Surface) Destroy() {
	s.loop.Terminate()
	_ = s.ln.Close()
}

// Done is closed once the UI goroutine has stopped.
func (s *Surface) Done() <-chan struct{} { return s.loop.Done() }

const blankURL = "about:blank"

func (s *Surface) navigate(url string) {
	var doc string
	switch {
	case url == "" || url == blankURL:
	default:
		html, ok := codec.HTMLFromURI(url)
		if !ok {
			s.log.Warn("remote: handing navigation to the browser, bridge will be lost",
				zap.String("url", url))
			s.broadcast(frame{Type: frameNavigate, URL: url})
			return
		}
		doc = html
	}
	s.mu.Lock()
	s.doc = doc
	s.url = url
	s.mu.Unlock()
	s.broadcast(frame{Type: frameReload})
}

// deliver hands a page message to the handler on the loop goroutine.
func (s *Surface) deliver(msg string) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()
	if h == nil {
		s.log.Debug("remote: message with no handler", zap.Int("bytes", len(msg)))
		return
	}
	h(msg)
}
