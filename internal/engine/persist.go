package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"cartsync/internal/catalog"
	"cartsync/internal/domain"
	"cartsync/internal/storage"
	"golang.org/x/sync/errgroup"
)

// stateRecord is the full-state cache: everything needed to show the cart
// instantly on the next start.
type stateRecord struct {
	Lines    []domain.Line `json:"lines"`
	Selected []string      `json:"selected,omitempty"`
}

// guestItem is one entry of the merge snapshot. Deliberately minimal:
// prices and display metadata are refreshed from the catalog on restore
// and never trusted from storage.
type guestItem struct {
	ProductID       string            `json:"product_id"`
	VariantID       string            `json:"variant_id,omitempty"`
	Quantity        int               `json:"quantity"`
	SelectedOptions map[string]string `json:"selected_options,omitempty"`
}

type guestRecord struct {
	Items []guestItem `json:"items"`
}

// persistStateLocked writes the full-state cache. The snapshot is taken
// under the lock; the write itself is fire-and-forget so mutations never
// block on storage, and a failed write leaves in-memory state
// authoritative for the session.
func (e *Engine) persistStateLocked() {
	rec := stateRecord{
		Lines:    append([]domain.Line(nil), e.lines...),
		Selected: e.selectedSliceLocked(),
	}
	e.writeBlobAsync(stateKey, rec)
}

// persistGuestLocked writes both guest-mode records: the full-state cache
// and the minimal merge snapshot.
func (e *Engine) persistGuestLocked() {
	e.persistStateLocked()

	rec := guestRecord{Items: make([]guestItem, 0, len(e.lines))}
	for _, l := range e.lines {
		rec.Items = append(rec.Items, guestItem{
			ProductID:       l.ProductID,
			VariantID:       l.VariantID,
			Quantity:        l.Quantity,
			SelectedOptions: l.SelectedOptions,
		})
	}
	e.writeBlobAsync(guestItemsKey, rec)
}

// persistOp is one queued storage operation. data nil means delete;
// done set means a flush marker with no storage side effect.
type persistOp struct {
	key  string
	data []byte
	done chan struct{}
}

func (e *Engine) writeBlobAsync(key string, record interface{}) {
	data, err := json.Marshal(record)
	if err != nil {
		e.log.Warn("marshal cart record failed", "key", key, "error", err)
		return
	}
	e.enqueueLocked(persistOp{key: key, data: data})
}

func (e *Engine) deleteBlob(key string) {
	e.enqueueLocked(persistOp{key: key})
}

func (e *Engine) enqueueLocked(op persistOp) {
	if e.ops == nil {
		return
	}
	e.ops <- op
}

// flushLocked blocks until every queued storage operation has landed, so
// a read that follows observes the queue-consistent state.
func (e *Engine) flushLocked() {
	if e.ops == nil {
		return
	}
	done := make(chan struct{})
	e.ops <- persistOp{done: done}
	<-done
}

// persistLoop is the single writer: all storage mutations funnel through
// it in the order they were produced, so a delete can never be overtaken
// by an earlier write of the same key.
func (e *Engine) persistLoop() {
	for op := range e.ops {
		if op.done != nil {
			close(op.done)
			continue
		}
		if op.data == nil {
			if err := e.blobs.Delete(context.Background(), op.key); err != nil {
				e.log.Warn("delete cart record failed", "key", op.key, "error", err)
			}
			continue
		}
		if err := e.blobs.Write(context.Background(), op.key, op.data); err != nil {
			e.log.Warn("persist cart record failed", "key", op.key, "error", err)
		}
	}
}

func (e *Engine) selectedSliceLocked() []string {
	ids := make([]string, 0, len(e.selected))
	for id := range e.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// restoreCacheLocked loads the full-state cache, if any, for instant
// display before the authoritative load finishes.
func (e *Engine) restoreCacheLocked(ctx context.Context) {
	data, err := e.blobs.Read(ctx, stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Warn("read cart state cache failed", "error", err)
		return
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		e.log.Warn("decode cart state cache failed", "error", err)
		return
	}

	e.lines = rec.Lines
	e.selected = make(map[string]struct{}, len(rec.Selected))
	for _, id := range rec.Selected {
		e.selected[id] = struct{}{}
	}
}

// restoreGuestLocked rebuilds guest lines from the merge snapshot,
// enriched with current catalog prices. Lines whose product or variant no
// longer exists are dropped; a catalog outage keeps whatever the state
// cache restored.
func (e *Engine) restoreGuestLocked(ctx context.Context) {
	data, err := e.blobs.Read(ctx, guestItemsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Warn("read guest snapshot failed", "error", err)
		return
	}

	var rec guestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		e.log.Warn("decode guest snapshot failed", "error", err)
		return
	}

	lines, err := e.enrich(ctx, rec.Items)
	if err != nil {
		e.log.Warn("guest snapshot enrichment failed", "error", err)
		return
	}

	e.lines = lines
	e.pruneSelectionLocked()
	e.persistGuestLocked()
}

// enrich turns snapshot items into display-ready lines with current
// catalog pricing. Lookups run concurrently; a missing product or variant
// drops the item, any other catalog error fails the whole enrichment.
func (e *Engine) enrich(ctx context.Context, items []guestItem) ([]domain.Line, error) {
	enriched := make([]*domain.Line, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			product, err := e.catalog.GetProduct(gctx, item.ProductID)
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("enrich %s: %w", item.ProductID, err)
			}

			line := domain.Line{
				ProductID:           item.ProductID,
				VariantID:           item.VariantID,
				SelectedOptions:     item.SelectedOptions,
				Quantity:            item.Quantity,
				UnitPrice:           product.Price,
				UnitDiscountedPrice: product.DiscountedPrice,
				Title:               product.Title,
				Images:              product.Images,
			}
			if item.VariantID != "" {
				variant := product.Variant(item.VariantID)
				if variant == nil {
					return nil
				}
				line.UnitPrice = variant.Price
				line.UnitDiscountedPrice = variant.DiscountedPrice
			}

			enriched[i] = &line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lines := make([]domain.Line, 0, len(items))
	for _, l := range enriched {
		if l != nil {
			lines = append(lines, *l)
		}
	}
	return lines, nil
}

// pruneSelectionLocked drops selections that no longer point at a line.
func (e *Engine) pruneSelectionLocked() {
	existing := make(map[string]struct{}, len(e.lines))
	for _, l := range e.lines {
		existing[l.Identity()] = struct{}{}
	}
	for id := range e.selected {
		if _, ok := existing[id]; !ok {
			delete(e.selected, id)
		}
	}
}
