//go:build v8

package headless

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/v8engine"
)

func testEngine() core.Engine { return v8engine.Engine{} }
