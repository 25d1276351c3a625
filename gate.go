package reqgate

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Gate guards a Transport: it de-duplicates identical in-flight requests and
// lets callers cancel every request issued on behalf of a Scope.
//
// A Gate is owned by whoever builds the HTTP client and is safe for
// concurrent use. Close it on shutdown.
type Gate struct {
	transport Transport
	reg       *registry
	group     singleflight.Group
	sem       *semaphore.Weighted

	policy      Policy
	queryMode   QueryMode
	scopedKeys  bool
	maxInFlight int
	observer    Observer
	log         *zap.Logger
}

// New returns a Gate in front of t.
func New(t Transport, opts ...Option) *Gate {
	g := &Gate{
		transport: t,
		reg:       newRegistry(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxInFlight > 0 {
		g.sem = semaphore.NewWeighted(int64(g.maxInFlight))
	}
	return g
}

// Get issues a GET through the gate.
func (g *Gate) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, newRequest(http.MethodGet, url, opts))
}

// Post issues a POST through the gate.
func (g *Gate) Post(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, newRequest(http.MethodPost, url, opts))
}

// Put issues a PUT through the gate.
func (g *Gate) Put(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, newRequest(http.MethodPut, url, opts))
}

// Delete issues a DELETE through the gate.
func (g *Gate) Delete(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	return g.Do(ctx, newRequest(http.MethodDelete, url, opts))
}

// Do sends req and blocks until it settles or is cancelled.
//
// A request pre-empted by the gate fails with a *CanceledError; check it
// with IsCanceled and treat it as a no-op. Any other error comes from the
// transport unchanged.
func (g *Gate) Do(ctx context.Context, req *Request) (*Response, error) {
	key, rawQuery, err := keyFor(req.Method, req.URL, g.queryMode)
	if err != nil {
		return nil, err
	}
	if rawQuery {
		g.log.Debug("query not canonicalizable, keyed verbatim", zap.String("url", req.URL))
	}
	if g.scopedKeys {
		key.Scope = req.Scope
	}
	if g.policy == Share && !req.AllowDuplicate {
		return g.share(ctx, key, req)
	}

	flightCtx, cancel := context.WithCancelCause(ctx)
	e := &entry{key: key, scope: req.Scope, guarded: !req.AllowDuplicate, cancel: cancel}

	g.reg.mu.Lock()
	if g.reg.closed {
		g.reg.mu.Unlock()
		cancel(nil)
		return nil, &CanceledError{Key: key, Scope: req.Scope, Reason: ReasonClosed}
	}
	var superseded *entry
	var fire func()
	if old := g.reg.byKey[key]; e.guarded && old != nil {
		if g.policy == RejectNew {
			g.reg.mu.Unlock()
			cancel(nil)
			cerr := &CanceledError{Key: key, Scope: req.Scope, Reason: ReasonDuplicate}
			g.log.Debug("duplicate request rejected", zap.Stringer("key", key), zap.String("scope", string(req.Scope)))
			g.emit(EventDuplicate, key, req.Scope, ReasonDuplicate)
			return nil, cerr
		}
		superseded = old
		fire = g.reg.cancelLocked(old, ReasonSuperseded)
	}
	g.reg.addLocked(e)
	g.reg.mu.Unlock()

	if superseded != nil {
		fire()
		g.log.Debug("in-flight request superseded", zap.Stringer("key", key), zap.String("scope", string(superseded.scope)))
		g.emit(EventCancel, key, superseded.scope, ReasonSuperseded)
	}
	g.log.Debug("request started", zap.Stringer("key", key), zap.String("scope", string(req.Scope)))
	g.emit(EventStart, key, req.Scope, 0)

	resp, err := g.roundTrip(flightCtx, req)
	return g.settle(ctx, e, resp, err)
}

func (g *Gate) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.sem.Release(1)
	}
	return g.transport.RoundTrip(ctx, req)
}

// settle finishes e. A cancellation recorded while the transport ran wins
// over whatever the transport returned.
func (g *Gate) settle(ctx context.Context, e *entry, resp *Response, err error) (*Response, error) {
	g.reg.mu.Lock()
	if e.state == stateCancelled {
		cerr := e.err
		g.reg.mu.Unlock()
		return nil, cerr
	}
	g.reg.removeLocked(e)
	var cerr *CanceledError
	if err != nil && ctx.Err() != nil {
		e.state = stateCancelled
		cerr = &CanceledError{Key: e.key, Scope: e.scope, Reason: ReasonContext, Err: ctx.Err()}
		e.err = cerr
	} else {
		e.state = stateSettled
	}
	g.reg.mu.Unlock()
	e.cancel(nil)

	if cerr != nil {
		g.emit(EventCancel, e.key, e.scope, ReasonContext)
		return nil, cerr
	}
	g.emit(EventSettle, e.key, e.scope, 0)
	if err != nil {
		g.log.Debug("request failed", zap.Stringer("key", e.key), zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// share joins the flight for key, starting it when none exists. Every caller
// holds a waiter entry under its own scope; the flight itself is unscoped and
// is cancelled once its last waiter is gone.
func (g *Gate) share(ctx context.Context, key Key, req *Request) (*Response, error) {
	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	w := &entry{key: key, scope: req.Scope, cancel: cancel}

	g.reg.mu.Lock()
	if g.reg.closed {
		g.reg.mu.Unlock()
		return nil, &CanceledError{Key: key, Scope: req.Scope, Reason: ReasonClosed}
	}
	sk := g.reg.shared[key]
	joining := sk != nil
	if sk == nil {
		g.reg.next++
		sk = &sharedKey{gen: g.reg.next}
		g.reg.shared[key] = sk
	}
	sk.waiters++
	gen := sk.gen
	g.reg.addLocked(w)
	g.reg.mu.Unlock()

	if joining {
		g.log.Debug("request joined in-flight call", zap.Stringer("key", key), zap.String("scope", string(req.Scope)))
		g.emit(EventShare, key, req.Scope, 0)
	}

	ch := g.group.DoChan(key.String(), func() (any, error) {
		return g.lead(ctx, key, gen, req)
	})
	select {
	case res := <-ch:
		resp, _ := res.Val.(*Response)
		return g.release(ctx, w, resp, res.Err)
	case <-waitCtx.Done():
		return g.release(ctx, w, nil, context.Cause(waitCtx))
	}
}

// lead runs the shared flight for key. It is detached from the first
// caller's context so the other waiters are not affected when it ends.
func (g *Gate) lead(ctx context.Context, key Key, gen uint64, req *Request) (*Response, error) {
	flightCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	f := &entry{key: key, guarded: true, cancel: cancel}

	g.reg.mu.Lock()
	if sk := g.reg.shared[key]; g.reg.closed || sk == nil || sk.gen != gen {
		closed := g.reg.closed
		g.reg.mu.Unlock()
		cancel(nil)
		reason := ReasonContext
		if closed {
			reason = ReasonClosed
		}
		return nil, &CanceledError{Key: key, Reason: reason}
	}
	g.reg.addLocked(f)
	g.reg.mu.Unlock()

	g.log.Debug("shared request started", zap.Stringer("key", key))
	g.emit(EventStart, key, "", 0)

	resp, err := g.roundTrip(flightCtx, req)
	return g.settle(context.Background(), f, resp, err)
}

// release drops waiter w and, when it was the last one for its key, cancels
// the flight and makes the group forget it.
func (g *Gate) release(ctx context.Context, w *entry, resp *Response, err error) (*Response, error) {
	var fire func()
	var abandoned *entry

	g.reg.mu.Lock()
	var cerr *CanceledError
	switch {
	case w.state == stateCancelled:
		cerr = w.err
	case resp == nil && err != nil && ctx.Err() != nil:
		cerr = &CanceledError{Key: w.key, Scope: w.scope, Reason: ReasonContext, Err: ctx.Err()}
		w.state = stateCancelled
		w.err = cerr
		g.reg.removeLocked(w)
	default:
		w.state = stateSettled
		g.reg.removeLocked(w)
	}
	sk := g.reg.shared[w.key]
	sk.waiters--
	if sk.waiters == 0 {
		delete(g.reg.shared, w.key)
		if f := g.reg.byKey[w.key]; f != nil && f.state == statePending {
			abandoned = f
			reason := ReasonContext
			if cerr != nil {
				reason = cerr.Reason
			}
			fire = g.reg.cancelLocked(f, reason)
		}
		g.group.Forget(w.key.String())
	}
	g.reg.mu.Unlock()

	if abandoned != nil {
		fire()
		g.log.Debug("shared request abandoned", zap.Stringer("key", w.key))
		g.emit(EventCancel, w.key, "", abandoned.err.Reason)
	}
	if cerr != nil {
		if cerr.Reason == ReasonContext {
			g.emit(EventCancel, w.key, w.scope, ReasonContext)
		}
		return nil, cerr
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ClearPendingRequests cancels every in-flight request registered under
// scope. Requests of other scopes and unscoped requests are untouched.
// Unknown scopes are ignored.
func (g *Gate) ClearPendingRequests(scope Scope) {
	if scope == "" {
		return
	}
	g.reg.mu.Lock()
	victims := g.reg.scopeEntriesLocked(scope)
	fires := make([]func(), 0, len(victims))
	for _, e := range victims {
		fires = append(fires, g.reg.cancelLocked(e, ReasonScopeCleared))
	}
	g.reg.mu.Unlock()

	for i, fire := range fires {
		fire()
		g.emit(EventCancel, victims[i].key, scope, ReasonScopeCleared)
	}
	if len(victims) > 0 {
		g.log.Debug("scope cleared", zap.String("scope", string(scope)), zap.Int("cancelled", len(victims)))
	}
}

// Close cancels every in-flight request. Requests issued afterwards fail
// with ReasonClosed. Close is idempotent.
func (g *Gate) Close() {
	g.reg.mu.Lock()
	if g.reg.closed {
		g.reg.mu.Unlock()
		return
	}
	g.reg.closed = true
	victims := g.reg.allEntriesLocked()
	fires := make([]func(), 0, len(victims))
	for _, e := range victims {
		fires = append(fires, g.reg.cancelLocked(e, ReasonClosed))
	}
	g.reg.mu.Unlock()

	for i, fire := range fires {
		fire()
		g.emit(EventCancel, victims[i].key, victims[i].scope, ReasonClosed)
	}
	g.log.Debug("gate closed", zap.Int("cancelled", len(victims)))
}

// InFlight returns the number of registered entries.
func (g *Gate) InFlight() int {
	g.reg.mu.Lock()
	defer g.reg.mu.Unlock()
	return len(g.reg.entries)
}

// Pending reports whether key's slot is held.
func (g *Gate) Pending(key Key) bool {
	g.reg.mu.Lock()
	defer g.reg.mu.Unlock()
	return g.reg.byKey[key] != nil
}

// ScopeLen returns the number of entries registered under scope.
func (g *Gate) ScopeLen(scope Scope) int {
	g.reg.mu.Lock()
	defer g.reg.mu.Unlock()
	return len(g.reg.byScope[scope])
}

func (g *Gate) emit(event Event, key Key, scope Scope, reason CancelReason) {
	if g.observer == nil {
		return
	}
	g.observer.On(EventData{
		Event:  event,
		Key:    key,
		Scope:  scope,
		Reason: reason,
	})
}
