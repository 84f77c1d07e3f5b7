//go:build v8

// Package v8engine provides the V8 script engine for headless surfaces,
// selected with the v8 build tag.
package v8engine

import (
	v8 "github.com/tommie/v8go"

	"github.com/cryguy/webbridge/internal/core"
)

// Engine opens V8 contexts, one isolate per page.
type Engine struct{}

var _ core.Engine = Engine{}

// Name reports the engine name used in logs.
func (Engine) Name() string { return "v8" }

// NewContext creates an isolate and context with the configured heap limit
// and evaluation timeout.
func (Engine) NewContext(cfg core.Config) (core.ScriptContext, error) {
	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)
	return &v8Runtime{iso: iso, ctx: ctx, timeout: cfg.Timeout()}, nil
}
