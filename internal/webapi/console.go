package webapi

import (
	"go.uber.org/zap"

	"github.com/cryguy/webbridge/internal/core"
)

// consoleJS builds a console object whose methods forward to __console.
const consoleJS = `
(function() {
	function format(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.name + ': ' + arg.message;
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return '[object Object]'; }
		}
		return String(arg);
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) parts.push(format(arguments[j]));
				__console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	con.trace = con.debug;
	con.assert = function(cond) {
		if (cond) return;
		var parts = ['Assertion failed'];
		for (var j = 1; j < arguments.length; j++) parts.push(format(arguments[j]));
		__console('error', parts.join(' '));
	};
	var counters = {};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) {
		counters[label || 'default'] = 0;
	};
	var timers = {};
	con.time = function(label) {
		timers[label || 'default'] = performance.now();
	};
	con.timeEnd = function(label) {
		var l = label || 'default';
		var start = timers[l];
		if (start === undefined) { con.warn('Timer "' + l + '" does not exist'); return; }
		delete timers[l];
		con.log(l + ': ' + (performance.now() - start).toFixed(3) + 'ms');
	};
	con.table = con.dir = function(data) {
		con.log(JSON.stringify(data, null, 2));
	};
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with one that writes to
// env.Log, mapping console levels onto zap levels.
func SetupConsole(rt core.JSRuntime, env *Env) error {
	log := env.Log.Named("console")
	if err := rt.RegisterFunc("__console", func(level, message string) {
		logConsole(log, level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}

func logConsole(log *zap.Logger, level, message string) {
	switch level {
	case "error":
		log.Error(message)
	case "warn":
		log.Warn(message)
	case "debug":
		log.Debug(message)
	default:
		log.Info(message, zap.String("level", level))
	}
}
