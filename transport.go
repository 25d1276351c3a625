package reqgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Transport performs a single request. Implementations must abort when ctx
// is cancelled; that is the only way the gate cancels a call.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is returned by HTTPTransport for non-2xx responses.
type StatusError struct {
	Status int
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
}

// HTTPTransport sends requests with net/http against a base URL.
type HTTPTransport struct {
	Client  *http.Client
	BaseURL string
	// Header is sent with every request; request headers take precedence.
	Header http.Header
}

// NewHTTPTransport returns a transport for baseURL using client, or
// http.DefaultClient when client is nil.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		Client:  client,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Header:  make(http.Header),
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	target := req.URL
	if t.BaseURL != "" && !strings.Contains(target, "://") {
		target = t.BaseURL + "/" + strings.TrimLeft(target, "/")
	}

	var body io.Reader
	var contentType string
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = bytes.NewReader(b)
	case string:
		body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode body for %s %s: %w", req.Method, req.URL, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		hreq.Header.Del(k)
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if contentType != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", contentType)
	}
	if hreq.Header.Get("Accept") == "" {
		hreq.Header.Set("Accept", "application/json")
	}

	hresp, err := t.Client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s %s: %w", req.Method, req.URL, err)
	}
	if hresp.StatusCode < 200 || hresp.StatusCode > 299 {
		return nil, &StatusError{
			Status: hresp.StatusCode,
			Method: req.Method,
			URL:    target,
			Header: hresp.Header,
			Body:   data,
		}
	}
	return &Response{
		Status:  hresp.StatusCode,
		Header:  hresp.Header,
		Data:    data,
		Request: req,
	}, nil
}
