// Package jsonscan locates a single direct child of a flat JSON object or
// array without building a value tree.
//
// The scanner is one forward pass over the bytes with a five-state machine
// and a depth counter. Nested containers are skipped as opaque ranges; only
// children of the outermost container are candidates.
package jsonscan

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cryguy/webbridge/internal/codec"
)

var (
	// ErrNotFound reports that the requested key or index is not a direct
	// child of the outer container. It is a routine outcome.
	ErrNotFound = errors.New("jsonscan: not found")

	// ErrMalformed is wrapped by every *SyntaxError.
	ErrMalformed = errors.New("jsonscan: malformed input")
)

// SyntaxError describes where a scan was aborted.
type SyntaxError struct {
	Offset int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("jsonscan: %s at offset %d", e.Reason, e.Offset)
}

func (e *SyntaxError) Unwrap() error { return ErrMalformed }

type state uint8

const (
	stateValue state = iota
	stateLiteral
	stateString
	stateEscape
	stateUTF8
)

type action uint8

const (
	actionNone action = iota
	actionStart
	actionEnd
	actionStartStruct
	actionEndStruct
)

// cursor is the per-call scan state.
type cursor struct {
	key   []byte
	byKey bool
	index int

	state     state
	depth     int
	utf8Left  int
	object    bool // outer container is an object
	children  int  // depth-1 children started so far
	inKey     bool // the open depth-1 child is an object key
	keyStart  int
	matched   bool
	valueFrom int
}

// Find returns the raw bytes of the value stored under key in the flat JSON
// object data. Keys are compared by their unescaped text. String values
// keep their quotes.
func Find(data []byte, key string) ([]byte, error) {
	c := cursor{key: []byte(key), byKey: true}
	return c.scan(data)
}

// FindIndex returns the raw bytes of the index-th direct child value of the
// JSON container data: an array element, or an object member's value.
func FindIndex(data []byte, index int) ([]byte, error) {
	if index < 0 {
		return nil, ErrNotFound
	}
	c := cursor{index: index}
	return c.scan(data)
}

// Field extracts one field from a JSON message as text. A non-empty key
// selects by name, otherwise index selects by position. String values are
// unescaped; other values are returned verbatim. Any failure, including an
// unsupported escape, yields "".
func Field(msg []byte, key string, index int) string {
	var (
		v   []byte
		err error
	)
	if key != "" {
		v, err = Find(msg, key)
	} else {
		v, err = FindIndex(msg, index)
	}
	if err != nil {
		return ""
	}
	if v[0] != '"' {
		return string(v)
	}
	s, err := codec.Unescape(v)
	if err != nil {
		return ""
	}
	return s
}

func (c *cursor) scan(data []byte) ([]byte, error) {
	c.valueFrom = -1
	for i := 0; i < len(data); i++ {
		ch := data[i]
		act := actionNone

		switch c.state {
		case stateValue:
			switch {
			case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == ',' || ch == ':':
				continue
			case ch == '"':
				act = actionStart
				c.state = stateString
			case ch == '{' || ch == '[':
				act = actionStartStruct
			case ch == '}' || ch == ']':
				act = actionEndStruct
			case ch == 't' || ch == 'f' || ch == 'n' || ch == '-' || (ch >= '0' && ch <= '9'):
				act = actionStart
				c.state = stateLiteral
			default:
				return nil, &SyntaxError{Offset: i, Reason: fmt.Sprintf("invalid character %q", ch)}
			}

		case stateLiteral:
			switch {
			case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == ',' || ch == ']' || ch == '}' || ch == ':':
				// The terminator belongs to the enclosing state; the literal
				// closes on the previous byte and ch is examined again.
				c.state = stateValue
				act = actionEnd
				i--
			case ch < 0x20 || ch > 0x7e || ch == '"' || ch == '\\' || ch == '{' || ch == '[':
				return nil, &SyntaxError{Offset: i, Reason: fmt.Sprintf("invalid character %q in literal", ch)}
			}

		case stateString:
			switch {
			case ch < 0x20:
				return nil, &SyntaxError{Offset: i, Reason: "control character in string"}
			case ch == '"':
				act = actionEnd
				c.state = stateValue
			case ch == '\\':
				c.state = stateEscape
			case ch >= 0xc0 && ch < 0xe0:
				c.utf8Left = 1
				c.state = stateUTF8
			case ch >= 0xe0 && ch < 0xf0:
				c.utf8Left = 2
				c.state = stateUTF8
			case ch >= 0xf0 && ch < 0xf8:
				c.utf8Left = 3
				c.state = stateUTF8
			case ch >= 0x80:
				return nil, &SyntaxError{Offset: i, Reason: "invalid UTF-8 lead byte"}
			}

		case stateEscape:
			switch ch {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				c.state = stateString
			default:
				return nil, &SyntaxError{Offset: i, Reason: fmt.Sprintf("invalid escape %q", ch)}
			}

		case stateUTF8:
			if ch < 0x80 || ch > 0xbf {
				return nil, &SyntaxError{Offset: i, Reason: "invalid UTF-8 continuation byte"}
			}
			c.utf8Left--
			if c.utf8Left == 0 {
				c.state = stateString
			}
		}

		// For a literal end, i already points at the literal's last byte.
		pos := i

		if act == actionEndStruct {
			c.depth--
			if c.depth < 0 {
				return nil, &SyntaxError{Offset: pos, Reason: "unbalanced closing bracket"}
			}
			if c.depth == 0 {
				// Outer container closed without a hit.
				return nil, ErrNotFound
			}
		}

		if c.depth == 0 && act == actionStart {
			return nil, &SyntaxError{Offset: pos, Reason: "top-level value is not an object or array"}
		}
		if c.depth == 0 && act == actionStartStruct {
			c.object = data[pos] == '{'
		}

		if c.depth == 1 {
			switch act {
			case actionStart, actionStartStruct:
				if err := c.childStart(data, pos, act); err != nil {
					return nil, err
				}
			case actionEnd, actionEndStruct:
				if c.valueFrom >= 0 {
					return data[c.valueFrom : pos+1], nil
				}
				if c.inKey {
					if c.byKey && c.keyEquals(data[c.keyStart:pos+1]) {
						c.matched = true
					}
					c.inKey = false
				}
			}
		}

		if act == actionStartStruct {
			c.depth++
		}
	}

	if c.state != stateValue {
		return nil, &SyntaxError{Offset: len(data), Reason: "unexpected end of input"}
	}
	return nil, ErrNotFound
}

// childStart handles the start of a direct child of the outer container.
func (c *cursor) childStart(data []byte, pos int, act action) error {
	n := c.children
	c.children++

	if c.object && n%2 == 0 {
		if act != actionStart || data[pos] != '"' {
			return &SyntaxError{Offset: pos, Reason: "object key is not a string"}
		}
		c.inKey = true
		c.keyStart = pos
		return nil
	}

	ordinal := n
	if c.object {
		ordinal = n / 2
	}
	if c.byKey {
		if c.matched {
			c.valueFrom = pos
		}
		return nil
	}
	if ordinal == c.index {
		c.valueFrom = pos
	}
	return nil
}

// keyEquals compares a quoted key token against the target by unescaped
// text.
func (c *cursor) keyEquals(tok []byte) bool {
	raw := tok[1 : len(tok)-1]
	if bytes.IndexByte(raw, '\\') < 0 {
		return bytes.Equal(raw, c.key)
	}
	n, err := codec.JSONUnescape(nil, tok)
	if err != nil || n != len(c.key) {
		return false
	}
	buf := make([]byte, n)
	if _, err := codec.JSONUnescape(buf, tok); err != nil {
		return false
	}
	return bytes.Equal(buf, c.key)
}
