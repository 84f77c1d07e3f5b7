package headless

import (
	"context"
	"fmt"

	"github.com/cryguy/webbridge/internal/codec"
	"github.com/cryguy/webbridge/internal/core"
)

type queryResult struct {
	value string
	err   error
}

// queryJS evaluates the source in %s with indirect eval so statements
// yield their completion value. Promises are awaited. Results are
// reported through __query_done as strings: strings verbatim, everything
// else as JSON where possible.
const queryJS = `(function(src, id) {
	function str(v) {
		if (typeof v === 'string') return v;
		if (v === undefined) return 'undefined';
		if (typeof v === 'function' || typeof v === 'symbol') return String(v);
		try {
			var j = JSON.stringify(v);
			return j === undefined ? String(v) : j;
		} catch (e) {
			return String(v);
		}
	}
	function fail(e) {
		__query_done(id, false, e && e.message !== undefined ? String(e.name || 'Error') + ': ' + e.message : String(e));
	}
	var v;
	try {
		v = (0, eval)(src);
	} catch (e) {
		fail(e);
		return;
	}
	if (v !== null && typeof v === 'object' && typeof v.then === 'function') {
		v.then(function(r) { __query_done(id, true, str(r)); }, fail);
		return;
	}
	__query_done(id, true, str(v));
})(%s, %d);`

// Query evaluates js on the current page and returns its result as a
// string, waiting for it to settle if it is a promise. It must not be
// called from the UI goroutine.
func (s *Surface) Query(ctx context.Context, js string) (string, error) {
	ch := make(chan queryResult, 1)
	if !s.loop.Post(func() { s.startQuery(js, ch) }) {
		return "", core.ErrTerminated
	}
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.loop.Done():
		select {
		case r := <-ch:
			return r.value, r.err
		default:
			return "", core.ErrTerminated
		}
	}
}

func (s *Surface) startQuery(js string, ch chan queryResult) {
	if s.page == nil {
		ch <- queryResult{err: core.ErrPageDiscarded}
		return
	}
	s.nextQuery++
	id := s.nextQuery
	s.queries[id] = ch
	if err := s.page.ctx.Eval(fmt.Sprintf(queryJS, codec.JSONEscape(js), id)); err != nil {
		delete(s.queries, id)
		ch <- queryResult{err: err}
		return
	}
	s.checkpoint()
}

// registerQuery installs the settle callback queries report through.
func (s *Surface) registerQuery(ctx core.ScriptContext) error {
	return ctx.RegisterFunc("__query_done", func(id int, ok bool, value string) {
		ch, found := s.queries[id]
		if !found {
			return
		}
		delete(s.queries, id)
		if ok {
			ch <- queryResult{value: value}
		} else {
			ch <- queryResult{err: &core.ScriptError{Message: value}}
		}
	})
}

// failQueries settles every waiting query with err.
func (s *Surface) failQueries(err error) {
	for id, ch := range s.queries {
		ch <- queryResult{err: err}
		delete(s.queries, id)
	}
}
