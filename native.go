//go:build webview

package webbridge

import "github.com/cryguy/webbridge/internal/native"

// NewNative opens a platform web view window. Like every native window it
// must be created and run on the main goroutine.
func NewNative(cfg Config) (*WebView, error) {
	cfg, id := prepare(cfg)
	s, err := native.New(cfg)
	if err != nil {
		return nil, err
	}
	return attach(s, cfg, id), nil
}
