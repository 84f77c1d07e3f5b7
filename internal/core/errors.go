package core

import "errors"

var (
	// ErrTerminated is returned for work submitted to a surface whose UI
	// goroutine has stopped.
	ErrTerminated = errors.New("surface terminated")

	// ErrExecutionTimeout is returned when a script runs past
	// Config.ExecutionTimeout. The page's script context is discarded and
	// stays unusable until the next navigation.
	ErrExecutionTimeout = errors.New("script execution timed out")

	// ErrPageDiscarded is returned by a script context that was discarded
	// after a timeout or an engine panic.
	ErrPageDiscarded = errors.New("page script context discarded")
)

// ScriptError carries an exception thrown by page script back to Go.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string {
	return "script error: " + e.Message
}
