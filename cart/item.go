// Package cart mirrors the shopping cart on the client: a guest cart kept in
// local storage and a store that syncs with the backend once the shopper
// signs in.
package cart

import "errors"

// GuestKey is the local storage key holding the guest cart.
const GuestKey = "guest-cart-items"

var (
	ErrNoItemID     = errors.New("cart: item has no id")
	ErrItemNotFound = errors.New("cart: item not in cart")
)

// Item is one cart line, stored as {id, name, quantity, price, image}.
type Item struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
}

// Total returns the summed line prices.
func Total(items []Item) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	return sum
}
