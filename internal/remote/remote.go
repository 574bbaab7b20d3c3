package remote

import (
	"context"
	"errors"
)

// Store is the server-side cart collection, keyed by opaque row ids.
// It is the source of truth once the user is authenticated.
type Store interface {
	List(ctx context.Context) ([]Row, error)
	Create(ctx context.Context, item Item) (Row, error)
	Update(ctx context.Context, rowID string, quantity int) (Row, error)
	Delete(ctx context.Context, rowID string) error
	DeleteAll(ctx context.Context) error
	// Merge folds guest items into the cart in one call: quantities are
	// added to matching rows, non-matching items become new rows.
	Merge(ctx context.Context, items []Item) error
}

var (
	ErrRowNotFound = errors.New("cart row not found")
	ErrUnavailable = errors.New("remote cart store unavailable")
)

// Row is a server-side cart line.
type Row struct {
	ID              string            `json:"id"`
	ProductID       string            `json:"product_id"`
	VariantID       string            `json:"variant_id,omitempty"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
	Price           float64           `json:"price"`
	DiscountedPrice float64           `json:"discounted_price,omitempty"`
	Title           string            `json:"title,omitempty"`
	Images          []string          `json:"images,omitempty"`
}

// Item is the client-supplied part of a row: what to add or merge.
type Item struct {
	ProductID       string            `json:"product_id"`
	VariantID       string            `json:"variant_id,omitempty"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
}
