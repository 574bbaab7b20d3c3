package catalog

import (
	"context"
	"errors"
)

// Catalog looks up current product data. The engine uses it only to
// enrich a freshly restored guest snapshot with current prices.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

// ErrProductNotFound marks a deleted or unpublished product; the engine
// drops the affected guest line rather than failing the whole restore.
var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Price           float64   `json:"price"`
	DiscountedPrice float64   `json:"discounted_price,omitempty"`
	Images          []string  `json:"images,omitempty"`
	Variants        []Variant `json:"variants,omitempty"`
}

type Variant struct {
	ID              string  `json:"id"`
	Price           float64 `json:"price"`
	DiscountedPrice float64 `json:"discounted_price,omitempty"`
}

// Variant returns the variant with the given id, or nil.
func (p *Product) Variant(variantID string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == variantID {
			return &p.Variants[i]
		}
	}
	return nil
}
