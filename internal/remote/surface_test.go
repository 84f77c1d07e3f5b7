package remote

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/rpc"
)

func startSurface(t *testing.T, setup func(s *Surface)) *Surface {
	t.Helper()
	s, err := New(core.Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatal(err)
	}
	if setup != nil {
		setup(s)
	}
	stopped := make(chan struct{})
	go func() {
		s.Run()
		close(stopped)
	}()
	t.Cleanup(func() {
		s.Terminate()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			t.Error("Run did not return")
		}
	})
	return s
}

func dial(t *testing.T, s *Surface) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(s.URL(), "http") + "ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.CloseNow() })

	f := readFrame(t, conn)
	if f.Type != frameHello {
		t.Fatalf("first frame = %+v, want hello", f)
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f frame
	if err := wsjson.Read(ctx, conn, &f); err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	return f
}

// readUntil skips frames until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	for i := 0; i < 16; i++ {
		if f := readFrame(t, conn); match(f) {
			return f
		}
	}
	t.Fatal("expected frame never arrived")
	return frame{}
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatal(err)
	}
}

func getPage(t *testing.T, s *Surface, acceptEncoding string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL(), nil)
	if err != nil {
		t.Fatal(err)
	}
	tr := &http.Transport{DisableCompression: true}
	defer tr.CloseIdleConnections()
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	resp, err := (&http.Client{Transport: tr, Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		r = zr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

func TestRemote_ServesBootstrapAndInitScripts(t *testing.T) {
	s := startSurface(t, func(s *Surface) {
		s.Init("window.first = 1;")
		s.Init("window.second = 2;")
	})

	resp, body := getPage(t, s, "gzip, br")
	if got := resp.Header.Get("Content-Encoding"); got != "br" {
		t.Errorf("Content-Encoding = %q, want br", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	boot := strings.Index(body, "new WebSocket")
	first := strings.Index(body, "window.first = 1;")
	second := strings.Index(body, "window.second = 2;")
	if boot < 0 || first < boot || second < first {
		t.Errorf("scripts out of order (bootstrap %d, first %d, second %d):\n%s", boot, first, second, body)
	}
}

func TestRemote_GzipAndIdentity(t *testing.T) {
	s := startSurface(t, nil)

	resp, body := getPage(t, s, "gzip")
	if resp.Header.Get("Content-Encoding") != "gzip" || !strings.Contains(body, "window.external") {
		t.Errorf("gzip page: encoding %q body %q", resp.Header.Get("Content-Encoding"), body)
	}
	resp, body = getPage(t, s, "identity")
	if resp.Header.Get("Content-Encoding") != "" || !strings.Contains(body, "window.external") {
		t.Errorf("plain page: encoding %q body %q", resp.Header.Get("Content-Encoding"), body)
	}
}

func TestRemote_MessagesReachHandler(t *testing.T) {
	got := make(chan string, 1)
	s := startSurface(t, func(s *Surface) {
		s.OnMessage(func(msg string) { got <- msg })
	})
	conn := dial(t, s)
	send(t, conn, `{"hello":"surface"}`)

	select {
	case msg := <-got:
		if msg != `{"hello":"surface"}` {
			t.Errorf("msg = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered")
	}
}

func TestRemote_EvalAndTitleFrames(t *testing.T) {
	s := startSurface(t, nil)
	conn := dial(t, s)

	s.Eval("document.body.textContent = 'hi'")
	if f := readFrame(t, conn); f.Type != frameEval || f.JS != "document.body.textContent = 'hi'" {
		t.Errorf("eval frame = %+v", f)
	}
	s.SetTitle("New title")
	if f := readFrame(t, conn); f.Type != frameTitle || f.Title != "New title" {
		t.Errorf("title frame = %+v", f)
	}
}

func TestRemote_NavigateDataURIReloads(t *testing.T) {
	s := startSurface(t, nil)
	conn := dial(t, s)

	s.Navigate(codec.HTMLToURI("<!DOCTYPE html><p>fresh page</p>"))
	if f := readFrame(t, conn); f.Type != frameReload {
		t.Fatalf("frame = %+v, want reload", f)
	}
	_, body := getPage(t, s, "")
	if !strings.HasPrefix(body, "<!DOCTYPE html>\n<script>") {
		t.Errorf("scripts not placed after the doctype:\n%s", body)
	}
	if !strings.Contains(body, "<p>fresh page</p>") {
		t.Errorf("new document not served:\n%s", body)
	}
}

func TestRemote_NavigateExternalURL(t *testing.T) {
	s := startSurface(t, nil)
	conn := dial(t, s)

	s.Navigate("https://example.com/")
	if f := readFrame(t, conn); f.Type != frameNavigate || f.URL != "https://example.com/" {
		t.Errorf("frame = %+v", f)
	}
}

func TestRemote_BridgeRoundTrip(t *testing.T) {
	var b *rpc.Bridge
	s := startSurface(t, func(s *Surface) {
		b = rpc.NewBridge(s, nil)
		b.Bind("add", func(seq, req string) {
			if req != "[2,3]" {
				b.Resolve(seq, rpc.StatusError, codec.JSONEscape("bad args "+req))
				return
			}
			b.Resolve(seq, rpc.StatusOK, "5")
		})
	})

	_, body := getPage(t, s, "")
	if !strings.Contains(body, `var name = "add";`) {
		t.Errorf("binding script not served:\n%s", body)
	}

	conn := dial(t, s)
	send(t, conn, `{"id":1,"method":"add","params":[2,3]}`)
	f := readUntil(t, conn, func(f frame) bool {
		return f.Type == frameEval && strings.Contains(f.JS, "_rpc[1]")
	})
	if want := rpc.ResolveScript("1", rpc.StatusOK, "5"); f.JS != want {
		t.Errorf("resolution = %q, want %q", f.JS, want)
	}
}

func TestRemote_TerminateClosesTabs(t *testing.T) {
	s, err := New(core.Config{})
	if err != nil {
		t.Fatal(err)
	}
	stopped := make(chan struct{})
	go func() {
		s.Run()
		close(stopped)
	}()
	conn := dial(t, s)

	readErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _, err := conn.Read(ctx)
		readErr <- err
	}()

	s.Terminate()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	err = <-readErr
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want going away", got, err)
	}
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name, doc, wantPrefix string
	}{
		{"no doctype", "<p>x</p>", "<script>"},
		{"doctype", "<!doctype html><p>x</p>", "<!doctype html>\n<script>"},
		{"leading space", "\n  <!DOCTYPE html>\n<p>x</p>", "\n  <!DOCTYPE html>\n<script>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := assemble(tt.doc, "T", []string{"init()"})
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("prefix of %q, want %q", got, tt.wantPrefix)
			}
			if !strings.HasSuffix(got, "<p>x</p>") {
				t.Errorf("document not at the end: %q", got)
			}
			if !strings.Contains(got, `document.title = "T";`) {
				t.Errorf("title not set: %q", got)
			}
		})
	}
}

func TestAssemble_EscapesClosingTags(t *testing.T) {
	got := assemble("", "T", []string{`var s = "</script><b>";`})
	if strings.Contains(got, `"</script><b>"`) {
		t.Errorf("init script can close its element: %q", got)
	}
}

func TestAcceptsEncoding(t *testing.T) {
	tests := []struct {
		header, enc string
		want        bool
	}{
		{"gzip, deflate, br", "br", true},
		{"gzip;q=1.0, br;q=0", "br", false},
		{"BR", "br", true},
		{"", "gzip", false},
		{"gzip ; q=0.5", "gzip", true},
	}
	for _, tt := range tests {
		if got := acceptsEncoding(tt.header, tt.enc); got != tt.want {
			t.Errorf("acceptsEncoding(%q, %q) = %v, want %v", tt.header, tt.enc, got, tt.want)
		}
	}
}
