package core

import (
	"time"

	"go.uber.org/zap"
)

// Config holds surface configuration. Normalize fills a missing title, size,
// address and logger from DefaultConfig; zero limits mean unlimited.
type Config struct {
	Debug            bool   // enable developer tooling where the surface has any
	Title            string // initial window title
	Width            int    // initial width in pixels
	Height           int    // initial height in pixels
	Hint             Hint   // sizing hint applied with Width and Height
	MemoryLimitMB    int    // per-page memory limit for headless engines, 0 = unlimited
	ExecutionTimeout int    // milliseconds a single evaluation may run, 0 = unlimited
	Addr             string // listen address for the remote surface
	Logger           *zap.Logger
}

// DefaultConfig returns the configuration used when no fields are set.
func DefaultConfig() Config {
	return Config{
		Title:            "webbridge",
		Width:            800,
		Height:           600,
		Hint:             HintNone,
		MemoryLimitMB:    128,
		ExecutionTimeout: 5000,
		Addr:             "127.0.0.1:0",
	}
}

// Normalize fills zero fields with defaults and returns the result.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.Title == "" {
		c.Title = d.Title
	}
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.MemoryLimitMB < 0 {
		c.MemoryLimitMB = 0
	}
	if c.ExecutionTimeout < 0 {
		c.ExecutionTimeout = 0
	}
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Timeout returns ExecutionTimeout as a duration, 0 when unlimited.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.ExecutionTimeout) * time.Millisecond
}
