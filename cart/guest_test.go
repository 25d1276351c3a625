package cart_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenspace/reqgate/cart"
	"github.com/greenspace/reqgate/storage"
)

func TestGuestAddMergesByID(t *testing.T) {
	ctx := context.Background()
	g := cart.NewGuest(storage.NewMemory(), nil)

	require.NoError(t, g.Add(ctx, cart.Item{ID: "p1", Name: "Fern", Quantity: 2, Price: 5}))
	require.NoError(t, g.Add(ctx, cart.Item{ID: "p2", Name: "Rake", Price: 12.5}))
	require.NoError(t, g.Add(ctx, cart.Item{ID: "p1", Name: "Boston Fern", Quantity: 1, Price: 6}))

	items, err := g.Items(ctx)
	require.NoError(t, err)
	want := []cart.Item{
		{ID: "p1", Name: "Boston Fern", Quantity: 3, Price: 6},
		{ID: "p2", Name: "Rake", Quantity: 1, Price: 12.5},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Fatalf("guest items mismatch (-want +got):\n%s", diff)
	}

	total, err := g.Total(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 30.5, total, 1e-9)
}

func TestGuestSetQuantityAndRemove(t *testing.T) {
	ctx := context.Background()
	g := cart.NewGuest(storage.NewMemory(), nil)
	require.NoError(t, g.Add(ctx, cart.Item{ID: "p1", Quantity: 1}))
	require.NoError(t, g.Add(ctx, cart.Item{ID: "p2", Quantity: 1}))

	require.NoError(t, g.SetQuantity(ctx, "p1", 4))
	require.NoError(t, g.Remove(ctx, "p2"))
	require.ErrorIs(t, g.Remove(ctx, "p9"), cart.ErrItemNotFound)

	items, err := g.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)

	require.NoError(t, g.Clear(ctx))
	items, err = g.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGuestRejectsItemWithoutID(t *testing.T) {
	g := cart.NewGuest(storage.NewMemory(), nil)
	require.ErrorIs(t, g.Add(context.Background(), cart.Item{Name: "?"}), cart.ErrNoItemID)
}

func TestGuestUnreadableCartIsEmpty(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()
	require.NoError(t, s.Set(ctx, cart.GuestKey, []byte("{not json")))
	g := cart.NewGuest(s, nil)

	items, err := g.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NoError(t, g.Add(ctx, cart.Item{ID: "p1"}))
	raw, err := s.Get(ctx, cart.GuestKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1","name":"","quantity":1,"price":0,"image":""}]`, string(raw))
}

func TestGuestDropRemovesListedLines(t *testing.T) {
	ctx := context.Background()
	g := cart.NewGuest(storage.NewMemory(), nil)
	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, g.Add(ctx, cart.Item{ID: id}))
	}

	require.NoError(t, g.Drop(ctx, "p1", "p3", "unknown"))
	require.NoError(t, g.Drop(ctx))

	items, err := g.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].ID)
}
