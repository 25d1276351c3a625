package reqgate

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Scope identifies the logical UI unit that issued one or more requests.
// A scope exists only while it owns in-flight requests.
type Scope string

// NewScope returns a scope that is unique for the lifetime of the process,
// e.g. "cart-3f0c…".
func NewScope(prefix string) Scope {
	if prefix == "" {
		return Scope(uuid.NewString())
	}
	return Scope(prefix + "-" + uuid.NewString())
}

// QueryMode controls how the query string takes part in a Key.
type QueryMode int

const (
	// QueryCanonical keeps the query but sorts its parameters, so
	// "?b=2&a=1" and "?a=1&b=2" share a key.
	QueryCanonical QueryMode = iota
	// QueryExact keeps the raw query verbatim.
	QueryExact
	// QueryIgnore drops the query from the key.
	QueryIgnore
)

// Key is the identity of an outgoing call. Keys are compared by value.
// Scope is only populated when the gate folds scopes into keys.
type Key struct {
	Method string
	Path   string
	Query  string
	Scope  Scope
}

// KeyFor derives the key for method and rawURL. Under QueryCanonical a query
// that does not parse as key=value pairs (";" separators, stray "%") is kept
// verbatim, as under QueryExact.
func KeyFor(method, rawURL string, mode QueryMode) (Key, error) {
	k, _, err := keyFor(method, rawURL, mode)
	return k, err
}

// keyFor is KeyFor that also reports whether a canonical query fell back
// to the raw one.
func keyFor(method, rawURL string, mode QueryMode) (Key, bool, error) {
	if method == "" {
		return Key{}, false, fmt.Errorf("reqgate: empty method")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{}, false, fmt.Errorf("reqgate: parse url %q: %w", rawURL, err)
	}

	k := Key{Method: strings.ToUpper(method)}
	q := u.RawQuery
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	k.Path = u.String()

	switch mode {
	case QueryExact:
		k.Query = q
	case QueryIgnore:
	default:
		values, err := url.ParseQuery(q)
		if err != nil {
			k.Query = q
			return k, true, nil
		}
		// Encode sorts by key; values keep their order.
		k.Query = values.Encode()
	}
	return k, false, nil
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Method)
	b.WriteByte(':')
	b.WriteString(k.Path)
	if k.Query != "" {
		b.WriteByte('?')
		b.WriteString(k.Query)
	}
	if k.Scope != "" {
		b.WriteByte('#')
		b.WriteString(string(k.Scope))
	}
	return b.String()
}
