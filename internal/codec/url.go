// Package codec implements the small string codecs used by the bridge:
// percent-encoding for data: URIs and JSON string quoting/unquoting for
// carrying native strings into and out of script.
package codec

import "strings"

const htmlDataPrefix = "data:text/html,"

const lowerHex = "0123456789abcdef"

// URLEncode percent-encodes every byte of s except ASCII letters, digits and
// "-_.~". It does not distinguish reserved characters and is only meant for
// building data: URIs.
func URLEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(lowerHex[c>>4])
		b.WriteByte(lowerHex[c&0x0f])
	}
	return b.String()
}

// URLDecode reverses %XX sequences and maps '+' to a space. A '%' that is not
// followed by two hex digits is copied through unchanged.
func URLDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%':
			if i+2 < len(s) {
				hi, ok1 := unhex(s[i+1])
				lo, ok2 := unhex(s[i+2])
				if ok1 && ok2 {
					b.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
			b.WriteByte(c)
		case '+':
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// HTMLFromURI returns the decoded document carried by a "data:text/html,"
// URI. ok is false for any other kind of URI.
func HTMLFromURI(uri string) (html string, ok bool) {
	if !strings.HasPrefix(uri, htmlDataPrefix) {
		return "", false
	}
	return URLDecode(uri[len(htmlDataPrefix):]), true
}

// HTMLToURI wraps a document in a percent-encoded "data:text/html," URI.
func HTMLToURI(html string) string {
	return htmlDataPrefix + URLEncode(html)
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
