package rpc

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cryguy/webbridge/internal/core"
)

// fakeSurface records what the bridge asks of it. Dispatch runs the closure
// inline, like a UI goroutine with nothing else queued.
type fakeSurface struct {
	mu         sync.Mutex
	inits      []string
	evals      []string
	dispatches int
	handler    core.MessageHandler
}

func (f *fakeSurface) AddView(bool) {}
func (f *fakeSurface) Show() {}
func (f *fakeSurface) Hide() {}
func (f *fakeSurface) Run() {}
func (f *fakeSurface) Terminate() {}
func (f *fakeSurface) Navigate(string) {}
func (f *fakeSurface) SetTitle(string) {}
func (f *fakeSurface) SetSize(int, int, core.Hint) {}
func (f *fakeSurface) Destroy() {}
func (f *fakeSurface) OnMessage(h core.MessageHandler) { f.handler = h }

func (f *fakeSurface) Dispatch(fn func()) {
	f.mu.Lock()
	f.dispatches++
	f.mu.Unlock()
	fn()
}

func (f *fakeSurface) Init(js string) {
	f.mu.Lock()
	f.inits = append(f.inits, js)
	f.mu.Unlock()
}

func (f *fakeSurface) Eval(js string) {
	f.mu.Lock()
	f.evals = append(f.evals, js)
	f.mu.Unlock()
}

func (f *fakeSurface) takeEvals() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.evals
	f.evals = nil
	return out
}

func TestBridge_InstallsHandler(t *testing.T) {
	s := &fakeSurface{}
	NewBridge(s, nil)
	if s.handler == nil {
		t.Fatal("NewBridge did not install a message handler")
	}
}

func TestBridge_BindInjectsScript(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	if err := b.Bind("add", func(string, string) {}); err != nil {
		t.Fatal(err)
	}
	if len(s.inits) != 1 {
		t.Fatalf("inits = %d, want 1", len(s.inits))
	}
	evals := s.takeEvals()
	if len(evals) != 1 || evals[0] != s.inits[0] {
		t.Fatalf("binding script not evaluated on the current page: %v", evals)
	}
	js := s.inits[0]
	for _, want := range []string{`var name = "add";`, "nextSeq: 1", "window.external.invoke", "JSON.stringify"} {
		if !strings.Contains(js, want) {
			t.Errorf("binding script missing %q", want)
		}
	}
	if names := b.Names(); len(names) != 1 || names[0] != "add" {
		t.Errorf("Names() = %v, want [add]", names)
	}
}

func TestBridge_BindRejectsBadInput(t *testing.T) {
	b := NewBridge(&fakeSurface{}, nil)
	if err := b.Bind("", func(string, string) {}); err == nil {
		t.Error("Bind with empty name succeeded")
	}
	if err := b.Bind("x", nil); err == nil {
		t.Error("Bind with nil callback succeeded")
	}
}

func TestBridge_BindingNameIsQuoted(t *testing.T) {
	js := BindingScript(`a"b`)
	if !strings.Contains(js, `var name = "a\"b";`) {
		t.Errorf("name not escaped: %s", js)
	}
}

func TestBridge_DispatchesAddOnce(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)

	type call struct{ seq, req string }
	var calls []call
	b.Bind("add", func(seq, req string) { calls = append(calls, call{seq, req}) })

	s.handler(`{"id":1,"method":"add","params":[2,3]}`)

	if len(calls) != 1 {
		t.Fatalf("callback ran %d times, want 1", len(calls))
	}
	if calls[0].seq != "1" {
		t.Errorf("seq = %q, want %q", calls[0].seq, "1")
	}
	if calls[0].req != "[2,3]" {
		t.Errorf("req = %q, want %q", calls[0].req, "[2,3]")
	}
}

func TestBridge_UnknownMethodIsNoop(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	ran := false
	b.Bind("add", func(string, string) { ran = true })
	s.takeEvals()

	s.handler(`{"id":1,"method":"sub","params":[2,3]}`)

	if ran {
		t.Error("binding ran for a different method")
	}
	if evals := s.takeEvals(); len(evals) != 0 {
		t.Errorf("unknown method produced evals: %v", evals)
	}
}

func TestBridge_UndecodableMessagesDropped(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	ran := 0
	b.Bind("add", func(string, string) { ran++ })

	for _, msg := range []string{
		"",
		"not json",
		`{"method":"add","params":[]}`,
		`{"id":1,"params":[]}`,
		`{"id":1,"method":"addA","params":[]}`,
	} {
		s.handler(msg)
	}
	if ran != 0 {
		t.Errorf("callback ran %d times for undecodable messages", ran)
	}
}

func TestBridge_MissingParamsBecomesEmptyArray(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	var got string
	b.Bind("ping", func(_, req string) { got = req })
	s.handler(`{"id":4,"method":"ping"}`)
	if got != "[]" {
		t.Errorf("req = %q, want []", got)
	}
}

func TestBridge_ParamsPassedRaw(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	var got []string
	b.Bind("f", func(_, req string) { got = append(got, req) })

	s.handler(`{"id":1,"method":"f","params":["a\"b", {"k": [1]}]}`)
	s.handler(`{"id":2,"method":"f","params":"x"}`)
	s.handler(`{"id":3,"method":"f","params":{"a":1}}`)

	if len(got) != 1 {
		t.Fatalf("binding ran %d times, want 1: %q", len(got), got)
	}
	if want := `["a\"b", {"k": [1]}]`; got[0] != want {
		t.Errorf("req = %q, want %q", got[0], want)
	}
}

func TestBridge_Names(t *testing.T) {
	b := NewBridge(&fakeSurface{}, nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		b.Bind(name, func(string, string) {})
	}
	if got := strings.Join(b.Names(), ","); got != "alpha,mid,zeta" {
		t.Errorf("Names() = %q", got)
	}
}

func TestBridge_LastRegistrationWins(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	var which string
	b.Bind("f", func(string, string) { which = "first" })
	b.Bind("f", func(string, string) { which = "second" })

	if len(s.inits) != 1 {
		t.Errorf("rebinding injected the script again: %d inits", len(s.inits))
	}
	s.handler(`{"id":1,"method":"f","params":[]}`)
	if which != "second" {
		t.Errorf("dispatched to %q binding, want second", which)
	}
}

func TestBridge_Resolve(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)

	if err := b.Resolve("7", StatusOK, "42"); err != nil {
		t.Fatal(err)
	}
	evals := s.takeEvals()
	if len(evals) != 1 {
		t.Fatalf("evals = %d, want 1", len(evals))
	}
	want := "if (window._rpc && window._rpc[7]) { window._rpc[7].resolve(42); delete window._rpc[7]; }"
	if evals[0] != want {
		t.Errorf("eval = %q, want %q", evals[0], want)
	}
	if s.dispatches != 1 {
		t.Errorf("dispatches = %d, want 1", s.dispatches)
	}

	if err := b.Resolve("7", StatusError, `"boom"`); err != nil {
		t.Fatal(err)
	}
	evals = s.takeEvals()
	if len(evals) != 1 || !strings.Contains(evals[0], `window._rpc[7].reject("boom")`) {
		t.Errorf("reject eval = %v", evals)
	}
}

func TestBridge_ResolveEmptyResultIsUndefined(t *testing.T) {
	if js := ResolveScript("3", StatusOK, ""); !strings.Contains(js, ".resolve(undefined)") {
		t.Errorf("script = %s", js)
	}
}

func TestBridge_ResolveRejectsBadSequence(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	for _, seq := range []string{"", "-1", "1.5", "7]; alert(1); //", "x"} {
		err := b.Resolve(seq, StatusOK, "1")
		if !errors.Is(err, ErrInvalidSequence) {
			t.Errorf("Resolve(%q) err = %v, want ErrInvalidSequence", seq, err)
		}
	}
	if evals := s.takeEvals(); len(evals) != 0 {
		t.Errorf("rejected sequences produced evals: %v", evals)
	}
}

func TestBridge_ResolveCanonicalisesSequence(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	if err := b.Resolve("010", StatusOK, `"ten"`); err != nil {
		t.Fatal(err)
	}
	evals := s.takeEvals()
	if len(evals) != 1 {
		t.Fatalf("evals = %d, want 1", len(evals))
	}
	if want := ResolveScript("10", StatusOK, `"ten"`); evals[0] != want {
		t.Errorf("eval = %q, want %q", evals[0], want)
	}
	if strings.Contains(evals[0], "010") {
		t.Errorf("leading zero reached the page: %s", evals[0])
	}
}

func TestBridge_ConcurrentResolves(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)

	const n = 64
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := b.Resolve(fmt.Sprint(i), StatusOK, fmt.Sprintf(`{"n":%d}`, i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	evals := s.takeEvals()
	if len(evals) != n {
		t.Fatalf("evals = %d, want %d", len(evals), n)
	}
	seen := make(map[string]bool)
	for _, js := range evals {
		seen[js] = true
	}
	for i := 1; i <= n; i++ {
		if want := ResolveScript(fmt.Sprint(i), StatusOK, fmt.Sprintf(`{"n":%d}`, i)); !seen[want] {
			t.Errorf("missing or corrupted resolution for seq %d", i)
		}
	}
}

func TestBridge_CloseDropsLaterMessages(t *testing.T) {
	s := &fakeSurface{}
	b := NewBridge(s, nil)
	ran := false
	b.Bind("f", func(string, string) { ran = true })
	b.Close()

	s.handler(`{"id":1,"method":"f","params":[]}`)
	if ran {
		t.Error("binding ran after Close")
	}
	if names := b.Names(); len(names) != 0 {
		t.Errorf("bindings still registered after Close: %v", names)
	}
	if err := b.Bind("g", func(string, string) {}); err == nil {
		t.Error("Bind after Close succeeded")
	}
}
