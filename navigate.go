package webbridge

import "github.com/cryguy/webbridge/internal/codec"

// blankPage is shown when Navigate is given an empty URL.
const blankPage = "<html><body>Hello</body></html>"

// normalizeURL maps "" to a small placeholder page and re-encodes
// data:text/html URIs so every surface sees the same canonical encoding.
// Other URLs pass through untouched.
func normalizeURL(url string) string {
	if url == "" {
		return codec.HTMLToURI(blankPage)
	}
	if html, ok := codec.HTMLFromURI(url); ok && html != "" {
		return codec.HTMLToURI(html)
	}
	return url
}
