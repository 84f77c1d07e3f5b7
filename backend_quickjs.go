//go:build !v8

package webbridge

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/quickjs"
)

func headlessEngine() core.Engine {
	return quickjs.Engine{}
}
