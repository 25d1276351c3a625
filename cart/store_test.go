package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenspace/reqgate"
	"github.com/greenspace/reqgate/cart"
	"github.com/greenspace/reqgate/storage"
)

// backend is an in-memory cart API.
type backend struct {
	mu      sync.Mutex
	items   []cart.Item
	failID  string
	block   chan struct{}
	loading chan struct{}
}

func (b *backend) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		b.mu.Lock()
		block, loading := b.block, b.loading
		b.mu.Unlock()
		if block != nil {
			loading <- struct{}{}
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"items": b.items})
	})
	mux.HandleFunc("POST /api/cart/items", func(w http.ResponseWriter, r *http.Request) {
		var it cart.Item
		if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		if it.ID == b.failID {
			http.Error(w, `{"message":"out of stock"}`, http.StatusConflict)
			return
		}
		if i := slices.IndexFunc(b.items, func(x cart.Item) bool { return x.ID == it.ID }); i >= 0 {
			b.items[i].Quantity += it.Quantity
		} else {
			b.items = append(b.items, it)
		}
		w.WriteHeader(http.StatusCreated)
	})
	return mux
}

func newTestStore(t *testing.T, b *backend) (*cart.Store, *cart.Guest, *reqgate.Gate) {
	t.Helper()
	srv := httptest.NewServer(b.handler(t))
	t.Cleanup(srv.Close)
	gate := reqgate.New(reqgate.NewHTTPTransport(srv.URL, srv.Client()))
	t.Cleanup(gate.Close)
	guest := cart.NewGuest(storage.NewMemory(), nil)
	return cart.NewStore(gate, guest), guest, gate
}

func TestStoreGuestFlow(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, &backend{})

	require.NoError(t, s.Add(ctx, cart.Item{ID: "p1", Name: "Fern", Price: 5}))
	require.NoError(t, s.Add(ctx, cart.Item{ID: "p1", Name: "Fern", Price: 5}))
	assert.False(t, s.SignedIn())
	require.Len(t, s.Items(), 1)
	assert.Equal(t, 2, s.Items()[0].Quantity)
}

func TestStoreLoginMergesGuestCart(t *testing.T) {
	ctx := context.Background()
	b := &backend{items: []cart.Item{{ID: "p9", Name: "Shovel", Quantity: 1, Price: 20}}}
	s, guest, gate := newTestStore(t, b)

	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		require.NoError(t, guest.Add(ctx, cart.Item{ID: id, Quantity: 1, Price: 1}))
	}
	require.NoError(t, s.Login(ctx, "s3cret"))

	assert.True(t, s.SignedIn())
	assert.Len(t, s.Items(), 7)
	left, err := guest.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, 0, gate.InFlight())

	require.NoError(t, s.Add(ctx, cart.Item{ID: "p9", Quantity: 2}))
	items := s.Items()
	i := slices.IndexFunc(items, func(it cart.Item) bool { return it.ID == "p9" })
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, 3, items[i].Quantity)
}

func TestStoreLoginKeepsUnmergedGuestItems(t *testing.T) {
	ctx := context.Background()
	s, guest, _ := newTestStore(t, &backend{failID: "p2"})

	require.NoError(t, guest.Add(ctx, cart.Item{ID: "p1"}))
	require.NoError(t, guest.Add(ctx, cart.Item{ID: "p2"}))

	err := s.Login(ctx, "s3cret")
	var serr *reqgate.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusConflict, serr.Status)

	left, err := guest.Items(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "p2", left[0].ID)
}

func TestStoreLoginRetryDoesNotDuplicateMergedItems(t *testing.T) {
	ctx := context.Background()
	b := &backend{failID: "p2"}
	s, guest, _ := newTestStore(t, b)

	require.NoError(t, guest.Add(ctx, cart.Item{ID: "p1"}))
	require.NoError(t, guest.Add(ctx, cart.Item{ID: "p2"}))
	require.Error(t, s.Login(ctx, "s3cret"))

	b.mu.Lock()
	b.failID = ""
	b.mu.Unlock()
	require.NoError(t, s.Login(ctx, "s3cret"))

	left, err := guest.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)

	b.mu.Lock()
	defer b.mu.Unlock()
	quantities := make(map[string]int)
	for _, it := range b.items {
		quantities[it.ID] = it.Quantity
	}
	assert.Equal(t, map[string]int{"p1": 1, "p2": 1}, quantities)
}

func TestStoreDisposeDropsLateResponses(t *testing.T) {
	ctx := context.Background()
	b := &backend{items: []cart.Item{{ID: "p1", Quantity: 1}}}
	s, _, gate := newTestStore(t, b)
	require.NoError(t, s.Login(ctx, "s3cret"))
	require.Len(t, s.Items(), 1)

	b.mu.Lock()
	b.items = append(b.items, cart.Item{ID: "p2", Quantity: 1})
	b.block = make(chan struct{})
	b.loading = make(chan struct{}, 1)
	b.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Load(ctx) }()
	select {
	case <-b.loading:
	case <-time.After(2 * time.Second):
		t.Fatal("cart load did not reach the backend")
	}

	s.Dispose()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("load did not return after dispose")
	}
	close(b.block)

	assert.Len(t, s.Items(), 1)
	assert.Equal(t, 0, gate.ScopeLen(s.Scope()))
	require.NoError(t, s.Load(ctx))
	assert.Len(t, s.Items(), 1)
}

func TestStoreLogoutFallsBackToGuest(t *testing.T) {
	ctx := context.Background()
	s, guest, _ := newTestStore(t, &backend{items: []cart.Item{{ID: "p1", Quantity: 1}}})
	require.NoError(t, s.Login(ctx, "s3cret"))
	require.NoError(t, guest.Add(ctx, cart.Item{ID: "g1"}))

	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.SignedIn())
	require.Len(t, s.Items(), 1)
	assert.Equal(t, "g1", s.Items()[0].ID)
}
