package webapi

import (
	"time"

	"github.com/cryguy/webbridge/internal/core"
)

// globalsJS adds the small language-level globals browsers provide and
// bare engines lack.
const globalsJS = `
(function() {
	var g = globalThis;

	g.performance = {
		timeOrigin: __perfOrigin,
		now: function() { return __performanceNow(); },
	};
	delete g.__perfOrigin;

	g.queueMicrotask = function(fn) {
		if (typeof fn !== 'function') throw new TypeError('queueMicrotask: callback is not a function');
		Promise.resolve().then(fn);
	};

	class DOMException extends Error {
		constructor(message, name) {
			super(message || '');
			this.name = name || 'Error';
			this.message = message || '';
			this.code = 0;
		}
	}
	g.DOMException = DOMException;

	function uncloneable(what) {
		return new DOMException(what + ' could not be cloned', 'DataCloneError');
	}

	function clone(v, seen) {
		if (v === null || typeof v !== 'object') {
			if (typeof v === 'function' || typeof v === 'symbol') throw uncloneable(typeof v);
			return v;
		}
		if (seen.has(v)) return seen.get(v);
		if (v instanceof Promise || v instanceof WeakMap || v instanceof WeakSet) {
			throw uncloneable(Object.prototype.toString.call(v));
		}
		var out;
		if (v instanceof Date) return new Date(v.getTime());
		if (v instanceof RegExp) return new RegExp(v.source, v.flags);
		if (v instanceof ArrayBuffer) return v.slice(0);
		if (ArrayBuffer.isView(v)) {
			var buf = v.buffer.slice(v.byteOffset, v.byteOffset + v.byteLength);
			return v instanceof DataView ? new DataView(buf) : new v.constructor(buf);
		}
		if (v instanceof Map) {
			out = new Map();
			seen.set(v, out);
			v.forEach(function(val, key) { out.set(clone(key, seen), clone(val, seen)); });
			return out;
		}
		if (v instanceof Set) {
			out = new Set();
			seen.set(v, out);
			v.forEach(function(val) { out.add(clone(val, seen)); });
			return out;
		}
		if (v instanceof Error) {
			out = new (g[v.name] || Error)(v.message);
			seen.set(v, out);
			return out;
		}
		out = Array.isArray(v) ? new Array(v.length) : {};
		seen.set(v, out);
		Object.keys(v).forEach(function(k) { out[k] = clone(v[k], seen); });
		return out;
	}

	g.structuredClone = function structuredClone(value) {
		return clone(value, new Map());
	};
})();
`

// SetupGlobals installs performance with a Go clock, queueMicrotask,
// DOMException and structuredClone.
func SetupGlobals(rt core.JSRuntime, _ *Env) error {
	start := time.Now()
	if err := rt.SetGlobal("__perfOrigin", float64(start.UnixNano())/1e6); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__performanceNow", func() float64 {
		return float64(time.Since(start).Nanoseconds()) / 1e6
	}); err != nil {
		return err
	}
	return rt.Eval(globalsJS)
}
