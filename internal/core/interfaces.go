package core

import "context"

// MessageHandler receives raw envelope strings posted by page script
// through window.external.invoke. It is always called on the surface's UI
// goroutine.
type MessageHandler func(msg string)

// BindingFunc is a native function exposed to page script. seq identifies
// the call and must be handed back when the call is settled; req is the
// JSON array of arguments the script passed.
type BindingFunc func(seq, req string)

// Surface is the rendering surface a bridge is attached to: something that
// hosts page script and owns a single UI goroutine.
//
// Dispatch and Terminate may be called from any goroutine. The remaining
// methods either marshal onto the UI goroutine themselves or document that
// they must be called from it.
type Surface interface {
	// AddView attaches the web view to its window.
	AddView(debug bool)
	Show()
	Hide()

	// Run blocks on the UI goroutine until Terminate is called.
	Run()
	Terminate()

	// Dispatch posts f to the UI goroutine. Posts are executed in FIFO
	// order; a post that arrives after teardown has started is dropped.
	Dispatch(f func())

	Navigate(url string)

	// Init registers script to run on every page load, before the page's
	// own scripts and before window.onload.
	Init(js string)

	// Eval evaluates script asynchronously on the current page. The result
	// is discarded.
	Eval(js string)

	SetTitle(title string)
	SetSize(width, height int, hint Hint)

	// OnMessage installs the handler for the single inbound message
	// channel. It must be set before Run.
	OnMessage(h MessageHandler)

	// Destroy releases the surface. It must not be called while Run is
	// active.
	Destroy()
}

// Querier is implemented by surfaces that can evaluate an expression on the
// UI goroutine and report its result. Query must not be called from the UI
// goroutine itself.
type Querier interface {
	Query(ctx context.Context, js string) (string, error)
}
