package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge"
	"github.com/cryguy/webbridge/internal/kvstore"
)

func TestPageSource(t *testing.T) {
	dir := t.TempDir()
	htmlPath := filepath.Join(dir, "page.html")
	if err := os.WriteFile(htmlPath, []byte("<p>file</p>"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := pageSource(options{htmlFile: htmlPath})
	if err != nil || p.html != "<p>file</p>" {
		t.Errorf("html page = %+v, %v", p, err)
	}
	p, err = pageSource(options{pageURL: "https://example.com/"})
	if err != nil || p.url != "https://example.com/" {
		t.Errorf("url page = %+v, %v", p, err)
	}
	p, err = pageSource(options{})
	if err != nil || p.html != demoPage {
		t.Errorf("default page = %+v, %v", p, err)
	}
	if _, err := pageSource(options{htmlFile: htmlPath, pageURL: "x"}); err == nil {
		t.Error("conflicting page flags accepted")
	}
	if _, err := pageSource(options{htmlFile: filepath.Join(dir, "missing.html")}); err == nil {
		t.Error("missing html file accepted")
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	if err := run(options{backend: "gtk"}); err == nil || !strings.Contains(err.Error(), "unknown backend") {
		t.Errorf("err = %v", err)
	}
	if err := run(options{backend: "remote", interactive: true}); err == nil {
		t.Error("interactive remote accepted")
	}
}

func TestDemoBindings(t *testing.T) {
	store, err := kvstore.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	w, err := webbridge.New(webbridge.Config{})
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		calls []string
	)
	events := func(method, detail string) {
		mu.Lock()
		calls = append(calls, method)
		mu.Unlock()
	}
	if err := registerDemo(w, store, zap.NewNop(), events); err != nil {
		t.Fatal(err)
	}
	stopped := make(chan struct{})
	go func() {
		w.Run()
		close(stopped)
	}()
	defer func() {
		w.Terminate()
		<-stopped
		w.Destroy()
	}()

	query := func(js string) string {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		v, err := w.Query(ctx, js)
		if err != nil {
			t.Fatalf("Query(%q): %v", js, err)
		}
		return v
	}

	if got := query("add(2, 3)"); got != "5" {
		t.Errorf("add = %s", got)
	}
	if got := query("echo('a', 1)"); got != `["a",1]` {
		t.Errorf("echo = %s", got)
	}
	query("window['kv.put']('k', {n: [1, 2]})")
	if got := query("window['kv.get']('k')"); got != `{"n":[1,2]}` {
		t.Errorf("kv.get = %s", got)
	}
	if got := query("window['kv.get']('nope')"); got != "null" {
		t.Errorf("kv.get(missing) = %s", got)
	}
	if got := query("log('x').then(function(v) { return typeof v; })"); got != "undefined" {
		t.Errorf("log resolved with %s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if got := strings.Join(calls, ","); got != "add,echo,kv.put,kv.get,kv.get,log" {
		t.Errorf("events = %s", got)
	}
}
