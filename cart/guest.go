package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/greenspace/reqgate/storage"
)

// Guest is the cart of a shopper who has not signed in.
type Guest struct {
	store storage.Store
	log   *zap.Logger
	mu    sync.Mutex
}

func NewGuest(store storage.Store, log *zap.Logger) *Guest {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guest{store: store, log: log}
}

// Items returns the stored lines. A missing or unreadable cart is empty.
func (g *Guest) Items(ctx context.Context) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.load(ctx)
}

func (g *Guest) load(ctx context.Context) ([]Item, error) {
	data, err := g.store.Get(ctx, GuestKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		g.log.Warn("discarding unreadable guest cart", zap.Error(err))
		return nil, nil
	}
	return items, nil
}

func (g *Guest) save(ctx context.Context, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, GuestKey, data); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

// Add puts item in the cart. An item already present gets its quantity
// increased and its details refreshed. Quantity defaults to 1.
func (g *Guest) Add(ctx context.Context, item Item) error {
	if item.ID == "" {
		return ErrNoItemID
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == item.ID })
	if i < 0 {
		items = append(items, item)
	} else {
		item.Quantity += items[i].Quantity
		items[i] = item
	}
	return g.save(ctx, items)
}

// SetQuantity changes the quantity of a line; zero or less removes it.
func (g *Guest) SetQuantity(ctx context.Context, id string, quantity int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(items, func(it Item) bool { return it.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if quantity <= 0 {
		items = slices.Delete(items, i, i+1)
	} else {
		items[i].Quantity = quantity
	}
	return g.save(ctx, items)
}

func (g *Guest) Remove(ctx context.Context, id string) error {
	return g.SetQuantity(ctx, id, 0)
}

// Drop removes the lines with the given ids in one write. Unknown ids are
// ignored.
func (g *Guest) Drop(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	items, err := g.load(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(items, func(it Item) bool { return slices.Contains(ids, it.ID) })
	return g.save(ctx, kept)
}

// Clear empties the guest cart.
func (g *Guest) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.Remove(ctx, GuestKey)
}

// Total returns the value of the guest cart.
func (g *Guest) Total(ctx context.Context) (float64, error) {
	items, err := g.Items(ctx)
	if err != nil {
		return 0, err
	}
	return Total(items), nil
}
