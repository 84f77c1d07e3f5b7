package webapi

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// Env is the Go side of one page: the loop its callbacks run on and the
// sinks for what the page reports back.
type Env struct {
	Loop *eventloop.EventLoop
	Log  *zap.Logger

	// URL is exposed to the page as location.href.
	URL string

	// Post receives every string the page passes to
	// window.external.invoke. It is called from a fresh loop task, never
	// from inside the invoking script.
	Post core.MessageHandler

	// OnTitle is called when the page assigns document.title.
	OnTitle func(title string)
}

// SetupFunc installs one part of the page environment into rt.
type SetupFunc func(rt core.JSRuntime, env *Env) error

// SetupFuncs returns the setup functions every headless page runs, in
// order. SetupWindow comes first since the others hang off window.
func SetupFuncs() []SetupFunc {
	return []SetupFunc{
		SetupWindow,
		SetupConsole,
		SetupGlobals,
		SetupAbort,
		SetupEncoding,
		SetupTimers,
	}
}

// Setup runs every function from SetupFuncs against rt.
func Setup(rt core.JSRuntime, env *Env) error {
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	for i, setup := range SetupFuncs() {
		if err := setup(rt, env); err != nil {
			return fmt.Errorf("page setup step %d: %w", i, err)
		}
	}
	return nil
}
