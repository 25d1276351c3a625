package cart

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/greenspace/reqgate"
)

const (
	cartPath  = "/api/cart"
	itemsPath = "/api/cart/items"
)

// DefaultMergeLimit bounds the concurrent item posts made on login.
const DefaultMergeLimit = 4

// Store mirrors the shopper's cart. Guests are served from local storage;
// signed-in shoppers from the backend, through the gate. Each Store owns a
// scope, and Dispose cancels whatever it still has in flight.
type Store struct {
	gate  *reqgate.Gate
	guest *Guest
	scope reqgate.Scope
	log   *zap.Logger
	limit int

	mu       sync.Mutex
	token    string
	items    []Item
	disposed bool
	// gen changes on every login, logout and dispose. A load only
	// publishes its result if gen is unchanged since it started.
	gen uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMergeLimit sets how many guest items are posted at once on login.
func WithMergeLimit(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func NewStore(gate *reqgate.Gate, guest *Guest, opts ...StoreOption) *Store {
	s := &Store{
		gate:  gate,
		guest: guest,
		scope: reqgate.NewScope("cart"),
		log:   zap.NewNop(),
		limit: DefaultMergeLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scope returns the scope the store tags its requests with.
func (s *Store) Scope() reqgate.Scope { return s.scope }

// Items returns a snapshot of the mirrored cart.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// SignedIn reports whether the store talks to the backend.
func (s *Store) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

func (s *Store) session() (token string, gen uint64, disposed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.gen, s.disposed
}

func (s *Store) authOptions(token string, extra ...reqgate.RequestOption) []reqgate.RequestOption {
	opts := []reqgate.RequestOption{
		reqgate.WithScope(s.scope),
		reqgate.WithHeader("Authorization", "Bearer "+token),
	}
	return append(opts, extra...)
}

// setItems publishes items read under session gen. Results from an older
// session are dropped.
func (s *Store) setItems(gen uint64, items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.gen != gen {
		s.log.Debug("dropping stale cart", zap.Uint64("gen", gen), zap.Uint64("current", s.gen))
		return
	}
	s.items = items
}

// Load refreshes the mirrored cart.
func (s *Store) Load(ctx context.Context) error {
	token, gen, disposed := s.session()
	if disposed {
		return nil
	}
	if token == "" {
		items, err := s.guest.Items(ctx)
		if err != nil {
			return err
		}
		s.setItems(gen, items)
		return nil
	}

	resp, err := s.gate.Get(ctx, cartPath, s.authOptions(token)...)
	if reqgate.IsCanceled(err) {
		s.log.Debug("cart load canceled", zap.String("scope", string(s.scope)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	var body struct {
		Items []Item `json:"items"`
	}
	if err := resp.Decode(&body); err != nil {
		return err
	}
	s.setItems(gen, body.Items)
	return nil
}

// Add puts item in the cart and reloads it.
func (s *Store) Add(ctx context.Context, item Item) error {
	token, _, disposed := s.session()
	if disposed {
		return nil
	}
	if token == "" {
		if err := s.guest.Add(ctx, item); err != nil {
			return err
		}
		return s.Load(ctx)
	}
	if item.ID == "" {
		return ErrNoItemID
	}

	// Adds of different products share a key, so they must not de-duplicate.
	_, err := s.gate.Post(ctx, itemsPath, s.authOptions(token, reqgate.WithBody(item), reqgate.AllowDuplicate())...)
	if reqgate.IsCanceled(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add %s to cart: %w", item.ID, err)
	}
	return s.Load(ctx)
}

// Login signs the shopper in and moves the guest cart to the backend. Lines
// the backend accepted leave the guest cart even when others fail, so a
// retried merge posts only what is still missing.
func (s *Store) Login(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.token = token
	s.gen++
	s.mu.Unlock()

	items, err := s.guest.Items(ctx)
	if err != nil {
		return err
	}
	if len(items) > 0 {
		var (
			mu     sync.Mutex
			merged []string
		)
		// One rejected line does not stop the others from merging.
		var g errgroup.Group
		g.SetLimit(s.limit)
		for _, it := range items {
			g.Go(func() error {
				_, err := s.gate.Post(ctx, itemsPath, s.authOptions(token, reqgate.WithBody(it), reqgate.AllowDuplicate())...)
				if err != nil {
					return err
				}
				mu.Lock()
				merged = append(merged, it.ID)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			// ctx may be done already; the guest cart must still shed
			// what the backend holds.
			if derr := s.guest.Drop(context.WithoutCancel(ctx), merged...); derr != nil {
				s.log.Warn("dropping merged guest items", zap.Strings("ids", merged), zap.Error(derr))
			}
			if reqgate.IsCanceled(err) {
				s.log.Debug("guest cart merge canceled", zap.String("scope", string(s.scope)))
				return nil
			}
			return fmt.Errorf("merge guest cart: %w", err)
		}
		if err := s.guest.Clear(ctx); err != nil {
			return err
		}
		s.log.Info("guest cart merged", zap.Int("items", len(items)))
	}
	return s.Load(ctx)
}

// Logout forgets the session and falls back to the guest cart.
func (s *Store) Logout(ctx context.Context) error {
	s.gate.ClearPendingRequests(s.scope)
	s.mu.Lock()
	s.token = ""
	s.items = nil
	s.gen++
	s.mu.Unlock()
	return s.Load(ctx)
}

// Dispose cancels the store's pending requests. Nothing that settles
// afterwards updates the store.
func (s *Store) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.gen++
	s.mu.Unlock()
	s.gate.ClearPendingRequests(s.scope)
}
