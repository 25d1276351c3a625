package reqgate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/greenspace/reqgate"
)

// blockingTransport parks every call until hold is closed or the call's
// context ends.
type blockingTransport struct {
	calls   atomic.Int32
	started chan *reqgate.Request
	hold    chan struct{}
	once    sync.Once
	fail    map[string]error
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		started: make(chan *reqgate.Request, 256),
		hold:    make(chan struct{}),
		fail:    make(map[string]error),
	}
}

func (b *blockingTransport) RoundTrip(ctx context.Context, req *reqgate.Request) (*reqgate.Response, error) {
	b.calls.Add(1)
	select {
	case b.started <- req:
	default:
	}
	select {
	case <-b.hold:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := b.fail[req.URL]; err != nil {
		return nil, err
	}
	return &reqgate.Response{Status: 200, Data: []byte(req.URL), Request: req}, nil
}

func (b *blockingTransport) release() {
	b.once.Do(func() { close(b.hold) })
}

func (b *blockingTransport) waitStarted(t *testing.T) *reqgate.Request {
	t.Helper()
	select {
	case req := <-b.started:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not called")
		return nil
	}
}

type result struct {
	resp *reqgate.Response
	err  error
}

func goDo(ctx context.Context, g *reqgate.Gate, method, url string, opts ...reqgate.RequestOption) <-chan result {
	req := &reqgate.Request{Method: method, URL: url}
	for _, opt := range opts {
		opt(req)
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := g.Do(ctx, req)
		ch <- result{resp, err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("request did not settle")
		return result{}
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []reqgate.EventData
}

func (o *recordingObserver) On(e reqgate.EventData) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *recordingObserver) count(event reqgate.Event) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.Event == event {
			n++
		}
	}
	return n
}
