//go:build v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/v8engine"
)

func headlessEngine() core.Engine {
	return v8engine.Engine{}
}
