package reqgate

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Request describes one outgoing call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is encoded by the transport; HTTPTransport sends []byte as is
	// and JSON-encodes anything else.
	Body any

	// Scope groups the request for ClearPendingRequests.
	Scope Scope
	// AllowDuplicate skips de-duplication for this request.
	AllowDuplicate bool
}

// Response mirrors a conventional HTTP client response.
type Response struct {
	Status  int
	Header  http.Header
	Data    []byte
	Request *Request
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		if r.Request == nil {
			return fmt.Errorf("reqgate: decode response: %w", err)
		}
		return fmt.Errorf("reqgate: decode %s %s: %w", r.Request.Method, r.Request.URL, err)
	}
	return nil
}

// RequestOption configures a Request built by the verb helpers.
type RequestOption func(*Request)

// WithScope tags the request with scope.
func WithScope(scope Scope) RequestOption {
	return func(r *Request) {
		r.Scope = scope
	}
}

// AllowDuplicate lets the request run even when its key is in flight.
func AllowDuplicate() RequestOption {
	return func(r *Request) {
		r.AllowDuplicate = true
	}
}

// WithBody sets the request body.
func WithBody(body any) RequestOption {
	return func(r *Request) {
		r.Body = body
	}
}

// WithHeader adds a header value.
func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

func newRequest(method, url string, opts []RequestOption) *Request {
	r := &Request{Method: method, URL: url}
	for _, opt := range opts {
		opt(r)
	}
	return r
}
