package remote

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/codec"
)

// bootstrapJS connects the tab to the surface and defines
// window.external.invoke. Messages sent before the socket opens are queued.
const bootstrapJS = `(function() {
	var queue = [];
	var sock = null;
	var retry = 250;
	function connect() {
		var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
		sock = new WebSocket(proto + location.host + '/ws');
		sock.onopen = function() {
			retry = 250;
			while (queue.length) sock.send(queue.shift());
		};
		sock.onmessage = function(ev) {
			var f;
			try { f = JSON.parse(ev.data); } catch (e) { return; }
			switch (f.type) {
			case 'eval':
				try { (0, eval)(f.js); } catch (e) { console.error(e); }
				break;
			case 'reload':
				location.reload();
				break;
			case 'navigate':
				location.href = f.url;
				break;
			case 'title':
				document.title = f.title;
				break;
			}
		};
		sock.onclose = function() {
			sock = null;
			setTimeout(connect, retry);
			retry = Math.min(retry * 2, 5000);
		};
	}
	function invoke(msg) {
		msg = String(msg);
		if (sock && sock.readyState === 1) sock.send(msg);
		else queue.push(msg);
	}
	var ext = window.external;
	try {
		ext.invoke = invoke;
	} catch (e) {}
	if (!ext || ext.invoke !== invoke) {
		Object.defineProperty(window, 'external', {
			value: {invoke: invoke},
			configurable: true,
		});
	}
	connect();
})();`

// assemble builds the served document: the bootstrap, then init scripts in
// registration order, then the page. Scripts go after a leading doctype so
// the page keeps standards mode.
func assemble(doc, title string, inits []string) string {
	var head strings.Builder
	head.WriteString("<script>")
	head.WriteString(escapeScript(bootstrapJS))
	head.WriteString("</script>\n")
	if !strings.Contains(strings.ToLower(doc), "<title") {
		head.WriteString("<script>document.title = ")
		head.WriteString(escapeScript(codec.JSONEscape(title)))
		head.WriteString(";</script>\n")
	}
	for _, js := range inits {
		head.WriteString("<script>")
		head.WriteString(escapeScript(js))
		head.WriteString("</script>\n")
	}

	if i := doctypeEnd(doc); i >= 0 {
		return doc[:i] + "\n" + head.String() + doc[i:]
	}
	return head.String() + doc
}

// doctypeEnd returns the offset just past a leading <!DOCTYPE ...>, or -1.
func doctypeEnd(doc string) int {
	trimmed := strings.TrimLeft(doc, " \t\r\n")
	if len(trimmed) < 9 || !strings.EqualFold(trimmed[:9], "<!doctype") {
		return -1
	}
	end := strings.IndexByte(trimmed, '>')
	if end < 0 {
		return -1
	}
	return len(doc) - len(trimmed) + end + 1
}

// escapeScript keeps a script body from closing its own element.
func escapeScript(js string) string {
	return strings.ReplaceAll(js, "</", `<\/`)
}

// newEncoder picks a content encoding the client accepts, preferring
// brotli. The returned writer must be closed; encoding is "" when the body
// goes out as is.
func newEncoder(w io.Writer, accept string) (io.WriteCloser, string) {
	switch {
	case acceptsEncoding(accept, "br"):
		return brotli.NewWriter(w), "br"
	case acceptsEncoding(accept, "gzip"):
		return gzip.NewWriter(w), "gzip"
	}
	return nopCloser{w}, ""
}

func acceptsEncoding(header, enc string) bool {
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(name), enc) {
			continue
		}
		q := strings.ReplaceAll(strings.TrimSpace(params), " ", "")
		return q != "q=0" && q != "q=0.0" && q != "q=0.00" && q != "q=0.000"
	}
	return false
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (s *Surface) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	body := assemble(s.doc, s.title, append([]string(nil), s.inits...))
	s.mu.Unlock()

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Vary", "Accept-Encoding")

	enc, name := newEncoder(w, r.Header.Get("Accept-Encoding"))
	if name != "" {
		h.Set("Content-Encoding", name)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(enc, body); err != nil {
		s.log.Debug("remote: writing page", zap.Error(err))
		return
	}
	if err := enc.Close(); err != nil {
		s.log.Debug("remote: flushing page", zap.Error(err))
	}
}
