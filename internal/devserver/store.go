package devserver

import (
	"context"
	"errors"

	"cartsync/internal/remote"
)

// RowStore persists per-user cart rows for the dev server. Upsert and
// Merge apply the same identity rule as the client engine: a matching
// product/variant/options combination gains quantity, anything else
// becomes a new row.
type RowStore interface {
	List(ctx context.Context, userID string) ([]remote.Row, error)
	Upsert(ctx context.Context, userID string, row remote.Row) (remote.Row, error)
	UpdateQuantity(ctx context.Context, userID, rowID string, quantity int) (remote.Row, error)
	Delete(ctx context.Context, userID, rowID string) error
	DeleteAll(ctx context.Context, userID string) error
}

var ErrRowNotFound = errors.New("cart row not found")
