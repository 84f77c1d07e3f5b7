package webbridge

import (
	"fmt"
	"html"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/webbridge/internal/codec"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
<script>
%s
</script>
</body>
</html>
`

// BundlePage bundles the JavaScript entry point and everything it imports
// into one script, wraps it in an HTML document and returns that document
// as a data:text/html URI ready for Navigate.
func BundlePage(entry string) (string, error) {
	js, err := bundleScript(entry)
	if err != nil {
		return "", err
	}
	title := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
	page := fmt.Sprintf(pageTemplate, html.EscapeString(title), strings.ReplaceAll(js, "</script", `<\/script`))
	return codec.HTMLToURI(page), nil
}

// bundleScript runs esbuild over entry and returns the bundle as an IIFE,
// which runs the same in every engine without module support.
func bundleScript(entry string) (string, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", entry, err)
	}
	result := esbuild.Build(esbuild.BuildOptions{
		EntryPoints:   []string{abs},
		AbsWorkingDir: filepath.Dir(abs),
		Bundle:        true,
		Format:        esbuild.FormatIIFE,
		Write:         false,
		Platform:      esbuild.PlatformBrowser,
		Target:        esbuild.ES2020,
		Charset:       esbuild.CharsetUTF8,
		LogLevel:      esbuild.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("bundling %s: %s", filepath.Base(entry), strings.Join(msgs, "; "))
	}
	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", filepath.Base(entry))
	}
	return string(result.OutputFiles[0].Contents), nil
}
