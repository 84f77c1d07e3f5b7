package webapi

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
)

// timersJS keeps timer callbacks in closure scope, keyed by the ID the
// loop assigned. String handlers are compiled with indirect eval like a
// browser does.
const timersJS = `
(function() {
	var callbacks = {};

	function schedule(handler, delay, rest, repeat) {
		var fn = handler;
		if (typeof fn === 'string') {
			var code = fn;
			fn = function() { (0, eval)(code); };
		}
		if (typeof fn !== 'function') return 0;
		var id = __timerRegister(Math.max(0, Number(delay) || 0), repeat);
		callbacks[id] = { fn: fn, args: rest, repeat: repeat };
		return id;
	}

	globalThis.setTimeout = function(handler, delay) {
		return schedule(handler, delay, Array.prototype.slice.call(arguments, 2), false);
	};
	globalThis.setInterval = function(handler, delay) {
		return schedule(handler, delay, Array.prototype.slice.call(arguments, 2), true);
	};
	globalThis.clearTimeout = globalThis.clearInterval = function(id) {
		if (typeof id !== 'number' || !callbacks[id]) return;
		delete callbacks[id];
		__timerClear(id);
	};

	Object.defineProperty(globalThis, '__timerFire', {
		value: function(id) {
			var entry = callbacks[id];
			if (!entry) return;
			if (!entry.repeat) delete callbacks[id];
			entry.fn.apply(globalThis, entry.args);
		},
	});
})();
`

// SetupTimers installs setTimeout, setInterval and their clear functions.
// Deadlines live on env.Loop; a timer firing runs its callback and then a
// microtask checkpoint.
func SetupTimers(rt core.JSRuntime, env *Env) error {
	fire := func(id int) {
		if err := rt.Eval(fmt.Sprintf("__timerFire(%d)", id)); err != nil {
			env.Log.Warn("page: timer callback threw", zap.Int("timer", id), zap.Error(err))
		}
		rt.RunMicrotasks()
	}

	if err := rt.RegisterFunc("__timerRegister", func(delayMs int, isInterval bool) int {
		delay := time.Duration(delayMs) * time.Millisecond
		return env.Loop.RegisterTimer(delay, isInterval, fire)
	}); err != nil {
		return err
	}

	if err := rt.RegisterFunc("__timerClear", func(id int) {
		env.Loop.ClearTimer(id)
	}); err != nil {
		return err
	}

	return rt.Eval(timersJS)
}
