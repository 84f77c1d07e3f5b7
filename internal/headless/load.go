package headless

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/webapi"
)

const (
	blankURL = "about:blank"

	// maxDocumentBytes caps documents fetched over http.
	maxDocumentBytes = 16 << 20
)

var (
	errUnsupportedURL = errors.New("unsupported URL")
	errNavigatedAway  = fmt.Errorf("%w: page navigated away", core.ErrPageDiscarded)
)

// load replaces the current page with the document at rawURL. It runs on
// the loop goroutine: environment setup, init scripts in registration
// order, page scripts in document order, then the load events.
func (s *Surface) load(rawURL string) {
	s.loop.ResetTimers()
	s.closePage()

	log := s.log.With(zap.String("url", shortURL(rawURL)))
	markup, err := s.fetchDocument(rawURL)
	if err != nil {
		log.Warn("page: loading document failed, showing a blank page", zap.Error(err))
		markup = ""
	}

	ctx, err := s.engine.NewContext(s.cfg)
	if err != nil {
		log.Error("page: creating script context failed", zap.Error(err))
		return
	}
	p := &page{ctx: ctx, url: rawURL}
	s.page = p
	s.mu.Lock()
	s.url = rawURL
	s.docTitle = ""
	s.mu.Unlock()

	env := &webapi.Env{
		Loop:    s.loop,
		Log:     s.log,
		URL:     rawURL,
		Post:    s.deliver,
		OnTitle: s.setDocumentTitle,
	}
	if err := s.registerQuery(ctx); err != nil {
		log.Error("page: environment setup failed", zap.Error(err))
		return
	}
	if err := webapi.Setup(ctx, env); err != nil {
		log.Error("page: environment setup failed", zap.Error(err))
		return
	}

	for i, js := range s.initScripts() {
		if err := ctx.Eval(js); err != nil {
			s.reportError(fmt.Sprintf("init script %d", i), err)
		}
	}
	ctx.RunMicrotasks()

	doc, err := webapi.ExtractScripts(markup)
	if err != nil {
		log.Warn("page: parsing document failed", zap.Error(err))
		doc = &webapi.Document{}
	}
	if doc.Title != "" {
		if err := ctx.Eval("document.title = " + codec.JSONEscape(doc.Title)); err != nil {
			s.reportError("title", err)
		}
	}
	failed := webapi.RunScripts(ctx, doc, log)
	if err := webapi.FireLoad(ctx); err != nil {
		s.reportError("load event", err)
	}
	log.Debug("page: loaded", zap.Int("scripts", len(doc.Scripts)), zap.Int("failed", failed))
}

// closePage releases the current script context and fails queries that
// were waiting on it.
func (s *Surface) closePage() {
	s.failQueries(errNavigatedAway)
	if s.page != nil {
		s.page.ctx.Close()
		s.page = nil
	}
}

// fetchDocument returns the markup for rawURL.
func (s *Surface) fetchDocument(rawURL string) (string, error) {
	if rawURL == "" || rawURL == blankURL {
		return "", nil
	}
	if markup, ok := codec.HTMLFromURI(rawURL); ok {
		return markup, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return s.fetchHTTP(u.String())
	case "file":
		b, err := os.ReadFile(u.Path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", u.Path, err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%w: %s", errUnsupportedURL, shortURL(rawURL))
}

func (s *Surface) fetchHTTP(rawURL string) (string, error) {
	resp, err := s.client.Get(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetching document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching document: %s", resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return "", fmt.Errorf("fetching document: content type %q is not HTML", ct)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return string(b), nil
}
