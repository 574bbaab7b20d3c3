package domain

import (
	"sort"
	"strings"
)

// Line is a single row in the cart. Two lines with the same identity are
// the same row and must never coexist; Identity is derived, never stored.
type Line struct {
	ProductID           string            `json:"product_id"`
	VariantID           string            `json:"variant_id,omitempty"`
	SelectedOptions     map[string]string `json:"selected_options,omitempty"`
	Quantity            int               `json:"quantity"`
	UnitPrice           float64           `json:"unit_price"`
	UnitDiscountedPrice float64           `json:"unit_discounted_price,omitempty"`
	Title               string            `json:"title,omitempty"`
	Images              []string          `json:"images,omitempty"`

	// RemoteID is the opaque id of the corresponding row in the remote
	// store. Empty while the cart is in guest mode.
	RemoteID string `json:"remote_id,omitempty"`
}

const (
	identitySep = "/"
	optionSep   = "|"
	optionKVSep = ":"
)

// CanonicalOptions renders selected options in canonical form: entries
// with blank values are dropped, the rest are sorted by option name and
// joined as name:value pairs. Returns "" when nothing survives.
func CanonicalOptions(opts map[string]string) string {
	if len(opts) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(opts))
	for name, value := range opts {
		v := strings.TrimSpace(value)
		if v == "" {
			continue
		}
		pairs = append(pairs, name+optionKVSep+v)
	}
	if len(pairs) == 0 {
		return ""
	}

	sort.Strings(pairs)
	return strings.Join(pairs, optionSep)
}

// LineIdentity derives the canonical key that determines line uniqueness.
// A product without variant or options collapses to one line per product;
// each distinct variant/option combination gets its own line.
func LineIdentity(productID, variantID string, opts map[string]string) string {
	canon := CanonicalOptions(opts)

	switch {
	case variantID != "" && canon != "":
		return productID + identitySep + variantID + identitySep + canon
	case variantID != "":
		return productID + identitySep + variantID
	case canon != "":
		return productID + identitySep + canon
	default:
		return productID
	}
}

// Identity returns the line's canonical key.
func (l Line) Identity() string {
	return LineIdentity(l.ProductID, l.VariantID, l.SelectedOptions)
}

// EffectivePrice is the unit price used for totals: the discounted price
// when one is set, the regular price otherwise.
func (l Line) EffectivePrice() float64 {
	if l.UnitDiscountedPrice > 0 {
		return l.UnitDiscountedPrice
	}
	return l.UnitPrice
}

// SameCombination reports whether the line refers to the same
// product/variant/options combination as the given tuple, comparing the
// options by canonical value rather than by identity string so incidental
// formatting differences after a server round-trip do not break matching.
func (l Line) SameCombination(productID, variantID, canonicalOpts string) bool {
	return l.ProductID == productID &&
		l.VariantID == variantID &&
		CanonicalOptions(l.SelectedOptions) == canonicalOpts
}

// TotalPrice sums effective price times quantity over all lines.
func TotalPrice(lines []Line) float64 {
	var total float64
	for _, l := range lines {
		total += l.EffectivePrice() * float64(l.Quantity)
	}
	return total
}
