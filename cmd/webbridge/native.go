//go:build webview

package main

import "github.com/cryguy/webbridge"

func init() {
	backends["native"] = webbridge.NewNative
}
