package webapi

import "github.com/cryguy/webbridge/internal/core"

// abortJS defines AbortController and AbortSignal on top of the window
// event classes.
const abortJS = `
(function() {
	var g = globalThis;

	function abortError() {
		return new DOMException('The operation was aborted.', 'AbortError');
	}

	class AbortSignal extends EventTarget {
		constructor() {
			super();
			this.aborted = false;
			this.reason = undefined;
			this.onabort = null;
		}
		throwIfAborted() {
			if (this.aborted) throw this.reason;
		}
		_abort(reason) {
			if (this.aborted) return;
			this.aborted = true;
			this.reason = reason;
			this.dispatchEvent(new Event('abort'));
		}
		static abort(reason) {
			var s = new AbortSignal();
			s.aborted = true;
			s.reason = reason !== undefined ? reason : abortError();
			return s;
		}
		static timeout(ms) {
			var s = new AbortSignal();
			setTimeout(function() {
				s._abort(new DOMException('The operation timed out.', 'TimeoutError'));
			}, ms);
			return s;
		}
		static any(signals) {
			var s = new AbortSignal();
			for (var i = 0; i < signals.length; i++) {
				if (signals[i].aborted) {
					s.aborted = true;
					s.reason = signals[i].reason;
					return s;
				}
			}
			signals.forEach(function(src) {
				src.addEventListener('abort', function() { s._abort(src.reason); });
			});
			return s;
		}
	}

	class AbortController {
		constructor() {
			this.signal = new AbortSignal();
		}
		abort(reason) {
			this.signal._abort(reason !== undefined ? reason : abortError());
		}
	}

	g.AbortSignal = AbortSignal;
	g.AbortController = AbortController;
})();
`

// SetupAbort installs AbortController and AbortSignal. It needs the event
// classes from SetupWindow and DOMException from SetupGlobals.
func SetupAbort(rt core.JSRuntime, _ *Env) error {
	return rt.Eval(abortJS)
}
