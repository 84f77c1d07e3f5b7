package core

// JSRuntime abstracts the JavaScript engine (V8 or QuickJS) behind a
// common interface used by the page setup functions in internal/webapi.
// Implementations are single-threaded: every method must be called on the
// owning surface's UI goroutine.
type JSRuntime interface {
	// Eval evaluates JavaScript source and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a Go string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a Go bool.
	EvalBool(js string) (bool, error)

	// RegisterFunc registers a Go function as a global JavaScript function.
	// The function's Go types are automatically marshaled to/from JS types.
	// On error return, the JS wrapper throws a TypeError.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a global variable on the JS context. Basic Go types
	// (string, int, float64, bool) are auto-converted to JS types.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the microtask queue (Promise callbacks, etc.).
	// V8: PerformMicrotaskCheckpoint, QuickJS: ExecutePendingJob loop.
	RunMicrotasks()
}

// ScriptContext is a JSRuntime that owns the script state of one page.
// Once a context reports ErrExecutionTimeout or ErrPageDiscarded it stays
// unusable; the owner closes it at the next navigation.
type ScriptContext interface {
	JSRuntime
	Close()
}

// Engine opens a fresh ScriptContext for every page a headless surface
// loads. cfg supplies the memory limit and evaluation timeout.
type Engine interface {
	Name() string
	NewContext(cfg Config) (ScriptContext, error)
}
