package webapi

import (
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
)

// windowJS gives a bare engine the browser globals page scripts expect:
// window, document, location and navigator, DOM-style events with
// reportError, and the window.external.invoke message channel.
const windowJS = `
(function() {
	var g = globalThis;
	g.window = g;
	g.self = g;

	var reporting = false;
	function report(e) {
		if (!reporting && typeof g.reportError === 'function') {
			reporting = true;
			try { g.reportError(e); } finally { reporting = false; }
			return;
		}
		if (g.console) console.error('Uncaught', e && e.stack ? e.stack : e);
	}

	class Event {
		constructor(type, options) {
			this.type = type;
			this.bubbles = !!(options && options.bubbles);
			this.cancelable = !!(options && options.cancelable);
			this.defaultPrevented = false;
			this.target = null;
			this.currentTarget = null;
			this.timeStamp = performance.now();
		}
		preventDefault() {
			if (this.cancelable) this.defaultPrevented = true;
		}
		stopPropagation() {}
		stopImmediatePropagation() {}
	}

	class CustomEvent extends Event {
		constructor(type, options) {
			super(type, options);
			this.detail = options && options.detail !== undefined ? options.detail : null;
		}
	}

	class EventTarget {
		constructor() {
			Object.defineProperty(this, '_listeners', { value: {}, writable: true });
		}
		addEventListener(type, callback, options) {
			if (typeof callback !== 'function') return;
			if (!this._listeners[type]) this._listeners[type] = [];
			var once = !!(options && options.once);
			this._listeners[type].push({ callback: callback, once: once });
		}
		removeEventListener(type, callback) {
			if (!this._listeners[type]) return;
			this._listeners[type] = this._listeners[type].filter(function(l) { return l.callback !== callback; });
		}
		dispatchEvent(event) {
			event.target = this;
			event.currentTarget = this;
			var handler = this['on' + event.type];
			if (typeof handler === 'function') {
				try { handler.call(this, event); } catch (e) { report(e); }
			}
			var listeners = this._listeners[event.type];
			if (!listeners) return !event.defaultPrevented;
			var copy = listeners.slice();
			for (var i = 0; i < copy.length; i++) {
				if (copy[i].once) this.removeEventListener(event.type, copy[i].callback);
				try { copy[i].callback.call(this, event); } catch (e) { report(e); }
			}
			return !event.defaultPrevented;
		}
	}

	class ErrorEvent extends Event {
		constructor(type, init) {
			super(type, init);
			this.error = init && init.error !== undefined ? init.error : null;
			this.message = (init && init.message) || '';
			this.filename = (init && init.filename) || '';
			this.lineno = (init && init.lineno) || 0;
			this.colno = (init && init.colno) || 0;
		}
	}

	g.Event = Event;
	g.CustomEvent = CustomEvent;
	g.ErrorEvent = ErrorEvent;
	g.EventTarget = EventTarget;

	var winTarget = new EventTarget();
	g.addEventListener = function(t, cb, o) { winTarget.addEventListener(t, cb, o); };
	g.removeEventListener = function(t, cb) { winTarget.removeEventListener(t, cb); };
	g.dispatchEvent = function(ev) {
		ev.target = g;
		ev.currentTarget = g;
		var handler = g['on' + ev.type];
		if (typeof handler === 'function') {
			try { handler.call(g, ev); } catch (e) { report(e); }
		}
		var listeners = winTarget._listeners[ev.type] || [];
		var copy = listeners.slice();
		for (var i = 0; i < copy.length; i++) {
			if (copy[i].once) winTarget.removeEventListener(ev.type, copy[i].callback);
			try { copy[i].callback.call(g, ev); } catch (e) { report(e); }
		}
		return !ev.defaultPrevented;
	};

	var doc = new EventTarget();
	var title = '';
	doc.readyState = 'loading';
	Object.defineProperty(doc, 'title', {
		get: function() { return title; },
		set: function(v) { title = String(v); __setTitle(title); },
	});
	g.document = doc;

	g.location = { href: String(__pageURL), toString: function() { return this.href; } };
	g.navigator = { userAgent: 'webbridge', language: 'en-US', onLine: true };

	g.alert = function(msg) { __alert(String(msg === undefined ? '' : msg)); };
	g.confirm = function(msg) { __alert(String(msg === undefined ? '' : msg)); return true; };

	// An error nobody handles with preventDefault reaches the console.
	g.reportError = function(error) {
		var msg = error !== null && error !== undefined && error.message !== undefined ? error.message : String(error);
		var ev = new ErrorEvent('error', { error: error, message: msg, cancelable: true });
		if (g.dispatchEvent(ev) && g.console) {
			console.error('Uncaught', error && error.stack ? error.stack : error);
		}
	};

	g.external = {
		invoke: function(msg) { __bridge_invoke(String(msg)); },
	};
	delete g.__pageURL;
})();
`

// SetupWindow installs the browser globals and routes
// window.external.invoke to env.Post.
func SetupWindow(rt core.JSRuntime, env *Env) error {
	if err := rt.SetGlobal("__pageURL", env.URL); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__setTitle", func(title string) {
		if env.OnTitle != nil {
			env.OnTitle(title)
		}
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__alert", func(msg string) {
		env.Log.Info("page: alert", zap.String("message", msg))
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__bridge_invoke", func(msg string) {
		if env.Post == nil {
			env.Log.Debug("page: invoke with no message handler")
			return
		}
		// Deliver as its own task, the way a browser queues postMessage.
		if !env.Loop.Post(func() { env.Post(msg) }) {
			env.Log.Debug("page: invoke after teardown dropped", zap.Int("bytes", len(msg)))
		}
	}); err != nil {
		return err
	}
	return rt.Eval(windowJS)
}
