package engine

import (
	"cartsync/internal/domain"
)

// Toggle flips a line's membership in the checkout selection. Unknown
// identities are deselected if stale, otherwise ignored.
func (e *Engine) Toggle(identity string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.selected[identity]; ok {
		delete(e.selected, identity)
	} else if e.indexOfLocked(identity) >= 0 {
		e.selected[identity] = struct{}{}
	}
	e.persistStateLocked()
}

// SelectAll marks every line for checkout.
func (e *Engine) SelectAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = make(map[string]struct{}, len(e.lines))
	for _, l := range e.lines {
		e.selected[l.Identity()] = struct{}{}
	}
	e.persistStateLocked()
}

// DeselectAll empties the checkout selection.
func (e *Engine) DeselectAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.selected = make(map[string]struct{})
	e.persistStateLocked()
}

func (e *Engine) IsSelected(identity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.selected[identity]
	return ok
}

// IsAllSelected reports whether every line is selected. An empty cart is
// never "all selected".
func (e *Engine) IsAllSelected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.lines) == 0 {
		return false
	}
	for _, l := range e.lines {
		if _, ok := e.selected[l.Identity()]; !ok {
			return false
		}
	}
	return true
}

// SelectedIdentities returns the selection set, sorted.
func (e *Engine) SelectedIdentities() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selectedSliceLocked()
}

// TotalPrice sums effective price times quantity over all lines.
// Recomputed on every call; never cached.
func (e *Engine) TotalPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.TotalPrice(e.lines)
}

// SelectedTotalPrice is TotalPrice restricted to selected lines.
func (e *Engine) SelectedTotalPrice() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total float64
	for _, l := range e.lines {
		if _, ok := e.selected[l.Identity()]; ok {
			total += l.EffectivePrice() * float64(l.Quantity)
		}
	}
	return total
}
