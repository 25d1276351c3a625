package reqgate

import "go.uber.org/zap"

// Policy decides what happens when a request arrives while another request
// with the same key is still in flight.
type Policy int

const (
	// RejectNew cancels the incoming request and lets the existing one run.
	// The newest caller never gets data; see SupersedeOld.
	RejectNew Policy = iota
	// SupersedeOld cancels the existing request and runs the incoming one.
	SupersedeOld
	// Share makes the incoming request wait for the existing one and return
	// its result.
	Share
)

func (p Policy) String() string {
	switch p {
	case RejectNew:
		return "reject-new"
	case SupersedeOld:
		return "supersede-old"
	case Share:
		return "share"
	}
	return "unknown"
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, bool) {
	for _, p := range []Policy{RejectNew, SupersedeOld, Share} {
		if p.String() == s {
			return p, true
		}
	}
	return RejectNew, false
}

// Option configures a Gate created by New.
type Option func(*Gate)

// WithPolicy sets the duplicate policy. The default is RejectNew.
func WithPolicy(p Policy) Option {
	return func(g *Gate) {
		g.policy = p
	}
}

// WithQueryMode sets how query strings take part in keys. The default is
// QueryCanonical.
func WithQueryMode(m QueryMode) Option {
	return func(g *Gate) {
		g.queryMode = m
	}
}

// WithScopedKeys folds the request scope into its key, so identical calls
// from different scopes are tracked independently instead of being
// de-duplicated against each other.
func WithScopedKeys(on bool) Option {
	return func(g *Gate) {
		g.scopedKeys = on
	}
}

// WithMaxInFlight bounds the number of requests handed to the transport at
// once. Waiting requests are registered and can be cancelled. n <= 0 means
// unbounded.
func WithMaxInFlight(n int) Option {
	return func(g *Gate) {
		g.maxInFlight = n
	}
}

// WithObserver attaches an Observer that receives registry events for the
// lifetime of the gate.
func WithObserver(o Observer) Option {
	return func(g *Gate) {
		g.observer = o
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}
