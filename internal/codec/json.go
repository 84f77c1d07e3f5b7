package codec

import (
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedEscape is returned for escapes outside the supported set,
	// including \uXXXX which is deliberately not decoded.
	ErrUnsupportedEscape = errors.New("codec: unsupported escape sequence")

	// ErrInvalidString is returned when the input is not a complete quoted
	// JSON string.
	ErrInvalidString = errors.New("codec: invalid JSON string")
)

// JSONEscape returns s as a quoted JSON string. Besides the characters JSON
// requires escaping, U+2028 and U+2029 are escaped so the result can be
// spliced into evaluated script verbatim.
func JSONEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				b.WriteString(`\"`)
			case '\\':
				b.WriteString(`\\`)
			case '\b':
				b.WriteString(`\b`)
			case '\f':
				b.WriteString(`\f`)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				if c < 0x20 {
					b.WriteString(`\u00`)
					b.WriteByte(lowerHex[c>>4])
					b.WriteByte(lowerHex[c&0x0f])
				} else {
					b.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		switch r {
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
	return b.String()
}

// JSONUnescape decodes the quoted JSON string src into dst and returns the
// number of decoded bytes. With a nil dst nothing is written and only the
// decoded length is computed. Only the single-character escapes
// \b \f \n \r \t \\ \/ \" are understood.
func JSONUnescape(dst, src []byte) (int, error) {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return 0, ErrInvalidString
	}
	body := src[1 : len(src)-1]
	n := 0
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' {
			i++
			if i >= len(body) {
				return 0, ErrInvalidString
			}
			var ok bool
			if c, ok = unescapeByte(body[i]); !ok {
				return 0, ErrUnsupportedEscape
			}
		}
		if dst != nil {
			if n >= len(dst) {
				return 0, io.ErrShortBuffer
			}
			dst[n] = c
		}
		n++
	}
	return n, nil
}

// Unescape decodes a quoted JSON string in two passes: measure, then
// materialise.
func Unescape(src []byte) (string, error) {
	n, err := JSONUnescape(nil, src)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := JSONUnescape(buf, src); err != nil {
		return "", err
	}
	return string(buf), nil
}

func unescapeByte(c byte) (byte, bool) {
	switch c {
	case 'b':
		return '\b', true
	case 'f':
		return '\f', true
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case '\\', '/', '"':
		return c, true
	}
	return 0, false
}
