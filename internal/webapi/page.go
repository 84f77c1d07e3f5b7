package webapi

import (
	"errors"
	"fmt"
	"io"
	"strings"

	gohtml "golang.org/x/net/html"
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
)

// Script is one <script> element of a page.
type Script struct {
	// Source is the inline body. It is empty for external scripts.
	Source string
	// Src is the src attribute of an external script.
	Src string
	// Type is the lowercased type attribute, "" when absent.
	Type string
}

// Document is what a headless surface needs from a page's markup.
type Document struct {
	Title   string
	Scripts []Script
}

// ExtractScripts tokenizes page and returns its title and its executable
// scripts in document order. Scripts with a non-JavaScript type, such as
// JSON data blocks or templates, are left out.
func ExtractScripts(page string) (*Document, error) {
	doc := &Document{}
	z := gohtml.NewTokenizer(strings.NewReader(page))

	var (
		inScript bool
		inTitle  bool
		current  Script
		body     strings.Builder
	)
	for {
		tt := z.Next()
		if tt == gohtml.ErrorToken {
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("tokenizing page: %w", err)
			}
			break
		}
		token := z.Token()

		switch tt {
		case gohtml.StartTagToken, gohtml.SelfClosingTagToken:
			switch token.Data {
			case "script":
				current = Script{
					Src:  attr(token.Attr, "src"),
					Type: strings.ToLower(strings.TrimSpace(attr(token.Attr, "type"))),
				}
				body.Reset()
				inScript = tt == gohtml.StartTagToken
				if !inScript && isJavaScript(current.Type) {
					doc.Scripts = append(doc.Scripts, current)
				}
			case "title":
				inTitle = tt == gohtml.StartTagToken
			}
		case gohtml.TextToken:
			switch {
			case inScript:
				body.WriteString(token.Data)
			case inTitle && doc.Title == "":
				doc.Title = strings.TrimSpace(token.Data)
			}
		case gohtml.EndTagToken:
			switch token.Data {
			case "script":
				if !inScript {
					continue
				}
				inScript = false
				if current.Src == "" {
					current.Source = body.String()
				}
				if isJavaScript(current.Type) {
					doc.Scripts = append(doc.Scripts, current)
				}
			case "title":
				inTitle = false
			}
		}
	}
	// Unterminated <script> at end of input still runs, as in browsers.
	if inScript && isJavaScript(current.Type) {
		if current.Src == "" {
			current.Source = body.String()
		}
		doc.Scripts = append(doc.Scripts, current)
	}
	return doc, nil
}

// RunScripts evaluates the document's inline scripts in order, with a
// microtask checkpoint after each. A script that throws is logged and the
// rest still run. It returns the number of scripts that threw.
func RunScripts(rt core.JSRuntime, doc *Document, log *zap.Logger) int {
	failed := 0
	for i, s := range doc.Scripts {
		if s.Src != "" {
			log.Warn("page: external script not loaded", zap.String("src", s.Src))
			continue
		}
		if err := rt.Eval(s.Source); err != nil {
			failed++
			log.Warn("page: script threw", zap.Int("script", i), zap.Error(err))
		}
		rt.RunMicrotasks()
	}
	return failed
}

const fireLoadJS = `
(function() {
	document.readyState = 'interactive';
	document.dispatchEvent(new Event('DOMContentLoaded'));
	window.dispatchEvent(new Event('DOMContentLoaded'));
	document.readyState = 'complete';
	window.dispatchEvent(new Event('load'));
})();
`

// FireLoad dispatches DOMContentLoaded and then load, including
// window.onload, and drains microtasks.
func FireLoad(rt core.JSRuntime) error {
	err := rt.Eval(fireLoadJS)
	rt.RunMicrotasks()
	return err
}

func attr(attrs []gohtml.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isJavaScript(typ string) bool {
	switch typ {
	case "", "text/javascript", "application/javascript", "module",
		"text/ecmascript", "application/ecmascript":
		return true
	}
	return false
}
