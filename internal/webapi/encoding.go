package webapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cryguy/webbridge/internal/core"
)

var errInvalidBase64 = errors.New("atob: invalid base64 string")

// encodingJS wraps the Go codecs with the argument checks browsers do.
const encodingJS = `
(function() {
	globalThis.btoa = function(data) {
		if (arguments.length < 1) throw new TypeError("btoa requires at least 1 argument(s)");
		return __btoa(String(data));
	};
	globalThis.atob = function(data) {
		if (arguments.length < 1) throw new TypeError("atob requires at least 1 argument(s)");
		return __atob(String(data));
	};
})();
`

// SetupEncoding installs global atob() and btoa(). Binary strings cross
// the boundary as Latin-1: one rune per byte.
func SetupEncoding(rt core.JSRuntime, _ *Env) error {
	if err := rt.RegisterFunc("__btoa", btoa); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__atob", atob); err != nil {
		return err
	}
	if err := rt.Eval(encodingJS); err != nil {
		return fmt.Errorf("evaluating encoding.js: %w", err)
	}
	return nil
}

func btoa(s string) (string, error) {
	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xff {
			return "", errors.New("btoa: string contains characters outside of the Latin1 range")
		}
		buf = append(buf, byte(r))
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func atob(s string) (string, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\t', '\n', '\f', '\r', ' ':
			return -1
		}
		return r
	}, s)
	if len(s)%4 == 0 {
		s = strings.TrimSuffix(s, "=")
		s = strings.TrimSuffix(s, "=")
	}
	if len(s)%4 == 1 {
		return "", errInvalidBase64
	}
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", errInvalidBase64
	}
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), nil
}
