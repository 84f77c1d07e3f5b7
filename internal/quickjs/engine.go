//go:build !v8

// Package quickjs provides the default script engine for headless
// surfaces, built on modernc.org/quickjs. One VM backs one page.
package quickjs

import (
	"errors"
	"fmt"

	"modernc.org/quickjs"

	"github.com/cryguy/webbridge/internal/core"
)

var errUnsupportedLayout = errors.New("quickjs: unexpected modernc.org/quickjs VM layout, promise jobs cannot run")

// Engine opens QuickJS contexts.
type Engine struct{}

var _ core.Engine = Engine{}

// Name reports the engine name used in logs.
func (Engine) Name() string { return "quickjs" }

// NewContext creates a VM with the configured memory limit and
// evaluation timeout.
func (Engine) NewContext(cfg core.Config) (core.ScriptContext, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}

	if cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(cfg.MemoryLimitMB) * 1024 * 1024)
	}

	jobs, ok := newJobQueue(vm)
	if !ok {
		vm.Close()
		return nil, errUnsupportedLayout
	}
	return &qjsRuntime{vm: vm, jobs: jobs, timeout: cfg.Timeout()}, nil
}
