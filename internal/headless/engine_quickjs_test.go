//go:build !v8

package headless

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/quickjs"
)

func testEngine() core.Engine { return quickjs.Engine{} }
