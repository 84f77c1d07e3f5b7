// Command webbridge runs a page with a few demo bindings on one of the
// available surfaces.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/kvstore"
)

// backends maps -backend values to constructors. native.go adds "native"
// when built with the webview tag.
var backends = map[string]func(webbridge.Config) (*webbridge.WebView, error){
	"quickjs":  webbridge.New,
	"headless": webbridge.New,
	"remote":   webbridge.NewRemote,
}

const demoPage = `<!DOCTYPE html>
<html>
<head><title>webbridge demo</title></head>
<body>
<script>
window.addEventListener('load', function() {
	add(2, 3).then(function(sum) { console.log('add(2, 3) =', sum); });
	echo('hello', 42).then(function(r) { console.log('echo =', JSON.stringify(r)); });
	window['kv.put']('visits', 1)
		.then(function() { return window['kv.get']('visits'); })
		.then(function(v) { console.log('kv.get(visits) =', v); });
	log('demo page loaded');
});
</script>
</body>
</html>`

func main() {
	var (
		backend     = flag.String("backend", "quickjs", "Surface: quickjs, remote or native (webview builds)")
		htmlFile    = flag.String("html", "", "HTML file to load")
		pageURL     = flag.String("url", "", "URL to load")
		entry       = flag.String("entry", "", "JavaScript entry point to bundle into a page")
		addr        = flag.String("addr", "127.0.0.1:8080", "Listen address for the remote surface")
		dbPath      = flag.String("db", ":memory:", "SQLite file backing kv.get and kv.put")
		timeout     = flag.Int("timeout", 5000, "Per-evaluation time limit in milliseconds, 0 for none")
		title       = flag.String("title", "webbridge", "Window title")
		logPath     = flag.String("log", "", "Write logs to this file instead of stderr")
		debug       = flag.Bool("debug", false, "Debug logging")
		interactive = flag.Bool("i", false, "Interactive console (headless backends only)")
	)
	flag.Parse()

	if err := run(options{
		backend:     *backend,
		htmlFile:    *htmlFile,
		pageURL:     *pageURL,
		entry:       *entry,
		addr:        *addr,
		dbPath:      *dbPath,
		timeout:     *timeout,
		title:       *title,
		logPath:     *logPath,
		debug:       *debug,
		interactive: *interactive,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	backend, htmlFile, pageURL, entry string
	addr, dbPath, title, logPath      string
	timeout                           int
	debug, interactive                bool
}

func run(opts options) error {
	newWebView, ok := backends[opts.backend]
	if !ok {
		return fmt.Errorf("unknown backend %q", opts.backend)
	}
	if opts.interactive {
		if opts.backend != "quickjs" && opts.backend != "headless" {
			return errors.New("interactive mode needs a headless backend")
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("interactive mode needs a terminal")
		}
	}

	log, err := newLogger(opts)
	if err != nil {
		return err
	}
	defer log.Sync()
	webbridge.SetLogger(log)

	src, err := pageSource(opts)
	if err != nil {
		return err
	}

	store, err := kvstore.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	w, err := newWebView(webbridge.Config{
		Title:            opts.title,
		ExecutionTimeout: opts.timeout,
		Addr:             opts.addr,
	})
	if err != nil {
		return err
	}
	defer w.Destroy()

	var events eventSink = func(string, string) {}
	var ui *console
	if opts.interactive {
		ui = newConsole(w)
		events = ui.event
	}
	if err := registerDemo(w, store, log, events); err != nil {
		return err
	}
	src.load(w)

	if ui != nil {
		go w.Run()
		err := ui.run()
		w.Terminate()
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		w.Terminate()
	}()
	if opts.backend == "remote" {
		fmt.Printf("Open %s in a browser. Press Ctrl+C to stop.\n", w.URL())
	}
	w.Run()
	return nil
}

// page is what to load: a URL, or a document when html is set.
type page struct {
	url  string
	html string
}

func (p page) load(w *webbridge.WebView) {
	if p.html != "" {
		w.SetHTML(p.html)
		return
	}
	w.Navigate(p.url)
}

// pageSource picks the document to load from the page flags.
func pageSource(opts options) (page, error) {
	set := 0
	for _, v := range []string{opts.htmlFile, opts.pageURL, opts.entry} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return page{}, errors.New("-html, -url and -entry are mutually exclusive")
	}
	switch {
	case opts.htmlFile != "":
		b, err := os.ReadFile(opts.htmlFile)
		if err != nil {
			return page{}, fmt.Errorf("reading page: %w", err)
		}
		return page{html: string(b)}, nil
	case opts.pageURL != "":
		return page{url: opts.pageURL}, nil
	case opts.entry != "":
		uri, err := webbridge.BundlePage(opts.entry)
		if err != nil {
			return page{}, err
		}
		return page{url: uri}, nil
	}
	return page{html: demoPage}, nil
}

func newLogger(opts options) (*zap.Logger, error) {
	if opts.interactive && opts.logPath == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if opts.debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if opts.logPath != "" {
		cfg.OutputPaths = []string{opts.logPath}
		cfg.ErrorOutputPaths = []string{opts.logPath}
	}
	return cfg.Build()
}

// eventSink reports binding traffic to the interactive console.
type eventSink func(method, detail string)

func registerDemo(w *webbridge.WebView, store *kvstore.Store, log *zap.Logger, events eventSink) error {
	if err := w.BindSync("echo", func(req string) (string, error) {
		events("echo", req)
		return req, nil
	}); err != nil {
		return err
	}

	if err := w.BindFunc("add", func(a, b float64) float64 {
		events("add", fmt.Sprintf("%g + %g", a, b))
		return a + b
	}); err != nil {
		return err
	}

	if err := w.BindFunc("kv.get", func(key string) (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v, ok, err := store.Get(ctx, key)
		events("kv.get", key)
		if err != nil || !ok {
			return nil, err
		}
		return json.RawMessage(v), nil
	}); err != nil {
		return err
	}

	if err := w.BindFunc("kv.put", func(key string, value json.RawMessage) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events("kv.put", key+" = "+string(value))
		return store.Put(ctx, key, string(value))
	}); err != nil {
		return err
	}

	pageLog := log.Named("page")
	return w.Bind("log", func(seq, req string) {
		pageLog.Info("log binding", zap.String("args", req))
		events("log", req)
		if err := w.Return(seq, webbridge.StatusOK, ""); err != nil {
			pageLog.Warn("settling log call", zap.Error(err))
		}
	})
}
