package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cartsync/internal/domain"
	"cartsync/internal/remote"
	"cartsync/internal/storage"
)

// reloadLocked fetches the authoritative line list from the remote store
// and replaces local lines wholesale. The selection set is carried across
// the rebuild by matching product/variant/canonical-options by value, so
// incidental formatting changes from the server round-trip do not drop
// selections.
func (e *Engine) reloadLocked(ctx context.Context) error {
	rows, err := e.remote.List(ctx)
	if err != nil {
		return fmt.Errorf("reload cart: %w", err)
	}

	// Capture the selected combinations before the old lines go away.
	type combo struct {
		productID string
		variantID string
		canonical string
	}
	oldSelected := make([]combo, 0, len(e.selected))
	for _, l := range e.lines {
		if _, ok := e.selected[l.Identity()]; ok {
			oldSelected = append(oldSelected, combo{
				productID: l.ProductID,
				variantID: l.VariantID,
				canonical: domain.CanonicalOptions(l.SelectedOptions),
			})
		}
	}

	newLines := make([]domain.Line, 0, len(rows))
	for _, row := range rows {
		newLines = append(newLines, domain.Line{
			ProductID:           row.ProductID,
			VariantID:           row.VariantID,
			SelectedOptions:     row.SelectedOptions,
			Quantity:            row.Quantity,
			UnitPrice:           row.Price,
			UnitDiscountedPrice: row.DiscountedPrice,
			Title:               row.Title,
			Images:              row.Images,
			RemoteID:            row.ID,
		})
	}

	remapped := make(map[string]struct{}, len(oldSelected))
	for _, c := range oldSelected {
		for _, l := range newLines {
			if l.SameCombination(c.productID, c.variantID, c.canonical) {
				remapped[l.Identity()] = struct{}{}
				break
			}
		}
	}

	// A transient mismatch must not mass-deselect the whole cart: when
	// nothing remapped but something was selected, keep the old set.
	if len(remapped) > 0 || len(e.selected) == 0 {
		e.selected = remapped
	}

	e.lines = newLines
	e.persistStateLocked()
	return nil
}

// mergeLocked folds the guest snapshot into the remote cart. The snapshot
// is deleted only after the remote call succeeds, so a failed merge is
// retried on the next login instead of losing the guest cart.
func (e *Engine) mergeLocked(ctx context.Context) error {
	// Drain queued writes and deletes first: a snapshot consumed by an
	// earlier login must not be readable here.
	e.flushLocked()

	data, err := e.blobs.Read(ctx, guestItemsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read guest snapshot: %w", err)
	}

	var rec guestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode guest snapshot: %w", err)
	}
	if len(rec.Items) == 0 {
		e.deleteBlob(guestItemsKey)
		return nil
	}

	if err := e.remote.Merge(ctx, guestItemsToRemote(rec.Items)); err != nil {
		return fmt.Errorf("merge guest cart: %w", err)
	}

	e.deleteBlob(guestItemsKey)
	return nil
}

func guestItemsToRemote(items []guestItem) []remote.Item {
	out := make([]remote.Item, 0, len(items))
	for _, it := range items {
		out = append(out, remote.Item{
			ProductID:       it.ProductID,
			VariantID:       it.VariantID,
			Quantity:        it.Quantity,
			SelectedOptions: it.SelectedOptions,
		})
	}
	return out
}
