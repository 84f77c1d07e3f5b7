package webapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cryguy/webbridge/internal/eventloop"
)

// fakeRuntime records registrations and evaluations without running any
// script.
type fakeRuntime struct {
	funcs   map[string]any
	globals map[string]any
	evals   []string
	failOn  string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{funcs: make(map[string]any), globals: make(map[string]any)}
}

func (f *fakeRuntime) Eval(js string) error {
	f.evals = append(f.evals, js)
	if f.failOn != "" && strings.Contains(js, f.failOn) {
		return errors.New("boom")
	}
	return nil
}
func (f *fakeRuntime) EvalString(js string) (string, error) { return "", f.Eval(js) }
func (f *fakeRuntime) EvalBool(js string) (bool, error) { return false, f.Eval(js) }
func (f *fakeRuntime) RegisterFunc(name string, fn any) error {
	f.funcs[name] = fn
	return nil
}
func (f *fakeRuntime) SetGlobal(name string, value any) error {
	f.globals[name] = value
	return nil
}
func (f *fakeRuntime) RunMicrotasks() {}

func TestSetup_RegistersEverything(t *testing.T) {
	rt := newFakeRuntime()
	env := &Env{Loop: eventloop.New(nil), URL: "about:test"}
	if err := Setup(rt, env); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"__bridge_invoke", "__setTitle", "__alert", "__console", "__btoa", "__atob", "__timerRegister", "__timerClear", "__performanceNow"} {
		if _, ok := rt.funcs[name]; !ok {
			t.Errorf("%s not registered", name)
		}
	}
	if rt.globals["__pageURL"] != "about:test" {
		t.Errorf("__pageURL = %v", rt.globals["__pageURL"])
	}
	if env.Log == nil {
		t.Error("Setup left a nil logger")
	}
}

func TestSetup_WrapsFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.failOn = "__console("
	err := Setup(rt, &Env{Loop: eventloop.New(nil)})
	if err == nil || !strings.Contains(err.Error(), "page setup step 1") {
		t.Errorf("err = %v", err)
	}
}

func TestSetupWindow_InvokePostsToLoop(t *testing.T) {
	rt := newFakeRuntime()
	el := eventloop.New(nil)
	got := make(chan string, 1)
	env := &Env{Loop: el, Log: zap.NewNop(), Post: func(msg string) { got <- msg }}
	if err := SetupWindow(rt, env); err != nil {
		t.Fatal(err)
	}

	invoke := rt.funcs["__bridge_invoke"].(func(string))
	invoke(`{"id":1}`)

	select {
	case <-got:
		t.Fatal("message delivered before the loop ran")
	default:
	}

	go el.Run(context.Background())
	defer el.Terminate()
	select {
	case msg := <-got:
		if msg != `{"id":1}` {
			t.Errorf("msg = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message never delivered")
	}
}

func TestSetupWindow_Title(t *testing.T) {
	rt := newFakeRuntime()
	var title string
	env := &Env{Loop: eventloop.New(nil), Log: zap.NewNop(), OnTitle: func(s string) { title = s }}
	if err := SetupWindow(rt, env); err != nil {
		t.Fatal(err)
	}
	rt.funcs["__setTitle"].(func(string))("Hello")
	if title != "Hello" {
		t.Errorf("title = %q", title)
	}
}

func TestLogConsole_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	logConsole(log, "error", "e")
	logConsole(log, "warn", "w")
	logConsole(log, "debug", "d")
	logConsole(log, "log", "l")
	logConsole(log, "info", "i")

	want := []zapcore.Level{zapcore.ErrorLevel, zapcore.WarnLevel, zapcore.DebugLevel, zapcore.InfoLevel, zapcore.InfoLevel}
	entries := logs.All()
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Level != want[i] {
			t.Errorf("entry %d (%q) level = %v, want %v", i, e.Message, e.Level, want[i])
		}
	}
}
