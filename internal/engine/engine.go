// Package engine owns the in-memory cart and keeps it consistent across
// the local guest cart and the server-backed cart of an authenticated
// session. Guest mutations apply locally and persist snapshots to durable
// storage; authenticated mutations round-trip through the remote store
// and reload it as the source of truth. A login folds the guest snapshot
// into the remote cart exactly once.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cartsync/internal/catalog"
	"cartsync/internal/domain"
	"cartsync/internal/remote"
	"cartsync/internal/session"
	"cartsync/internal/storage"
)

const (
	// stateKey holds the full-state cache: lines plus selection, for
	// instant restore before any network round-trip.
	stateKey = "cart:state"
	// guestItemsKey holds the minimal merge snapshot: product, variant,
	// options and quantity only, so stale prices are never replayed.
	guestItemsKey = "cart:guest-items"
)

var (
	// ErrMissingRemoteID means an authenticated mutation targeted a line
	// that never got a remote row id. Local and remote state have
	// desynchronized; the operation is rejected, not silently skipped.
	ErrMissingRemoteID = errors.New("cart line has no remote row id")

	ErrLineNotFound    = errors.New("cart line not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrMissingProduct  = errors.New("product id is required")
)

// AddInput describes a line to add. Prices and display metadata are the
// caller's current snapshot and only matter in guest mode; authenticated
// adds take pricing from the remote store on reload.
type AddInput struct {
	ProductID           string
	VariantID           string
	SelectedOptions     map[string]string
	Quantity            int
	UnitPrice           float64
	UnitDiscountedPrice float64
	Title               string
	Images              []string
}

// Engine is the cart synchronization engine. All public methods are safe
// for concurrent use; operations are serialized by a per-engine mutex,
// including the session event handlers.
type Engine struct {
	catalog catalog.Catalog
	remote  remote.Store
	session session.Provider
	blobs   storage.BlobStore
	log     *slog.Logger

	mu          sync.Mutex
	lines       []domain.Line
	selected    map[string]struct{}
	ready       bool
	unsubscribe func()

	// ops feeds the persistence loop; all storage writes and deletes go
	// through it so they land in the order they were produced.
	ops chan persistOp
}

func New(cat catalog.Catalog, store remote.Store, sess session.Provider, blobs storage.BlobStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		catalog:  cat,
		remote:   store,
		session:  sess,
		blobs:    blobs,
		log:      log,
		selected: make(map[string]struct{}),
		ops:      make(chan persistOp, 64),
	}
	go e.persistLoop()
	return e
}

// mode is resolved from the session provider at the top of every public
// operation, never stored, so the guest and authenticated paths cannot
// drift apart.
type mode int

const (
	modeGuest mode = iota
	modeAuthenticated
)

func (e *Engine) resolveMode() mode {
	if e.session.Authenticated() {
		return modeAuthenticated
	}
	return modeGuest
}

// Start performs the initial load: restore the cached state, then either
// re-enrich the guest snapshot through the catalog or reload from the
// remote store, and subscribe to session transitions.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unsubscribe == nil {
		e.unsubscribe = e.session.Subscribe(e.onSessionEvent)
	}

	e.restoreCacheLocked(ctx)

	switch e.resolveMode() {
	case modeAuthenticated:
		if err := e.reloadLocked(ctx); err != nil {
			return fmt.Errorf("initial cart load: %w", err)
		}
	case modeGuest:
		e.restoreGuestLocked(ctx)
	}

	e.ready = true
	return nil
}

// Close detaches the engine from session notifications and stops the
// persistence loop once its queue drains.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
	if e.ops != nil {
		close(e.ops)
		e.ops = nil
	}
}

// Ready reports whether the initial load has completed.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Lines returns a copy of the current cart lines.
func (e *Engine) Lines() []domain.Line {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Line, len(e.lines))
	copy(out, e.lines)
	return out
}

// Add inserts a line or, when a line with the same identity exists,
// increases its quantity.
func (e *Engine) Add(ctx context.Context, in AddInput) error {
	if in.ProductID == "" {
		return ErrMissingProduct
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.resolveMode() {
	case modeAuthenticated:
		_, err := e.remote.Create(ctx, remote.Item{
			ProductID:       in.ProductID,
			VariantID:       in.VariantID,
			Quantity:        in.Quantity,
			SelectedOptions: in.SelectedOptions,
		})
		if err != nil {
			return fmt.Errorf("add cart line: %w", err)
		}
		return e.reloadLocked(ctx)

	default:
		e.addGuestLocked(in)
		e.persistGuestLocked()
		return nil
	}
}

// Remove deletes the line with the given identity and drops it from the
// selection set.
func (e *Engine) Remove(ctx context.Context, identity string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.removeLocked(ctx, identity)
}

// UpdateQuantity sets the line's quantity. A quantity of zero or below is
// equivalent to Remove.
func (e *Engine) UpdateQuantity(ctx context.Context, identity string, quantity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity <= 0 {
		return e.removeLocked(ctx, identity)
	}

	idx := e.indexOfLocked(identity)
	if idx < 0 {
		return ErrLineNotFound
	}

	switch e.resolveMode() {
	case modeAuthenticated:
		if e.lines[idx].RemoteID == "" {
			return fmt.Errorf("update quantity for %s: %w", identity, ErrMissingRemoteID)
		}
		if _, err := e.remote.Update(ctx, e.lines[idx].RemoteID, quantity); err != nil {
			return fmt.Errorf("update cart line: %w", err)
		}
		return e.reloadLocked(ctx)

	default:
		e.lines[idx].Quantity = quantity
		e.persistGuestLocked()
		return nil
	}
}

// Clear empties the cart. Authenticated carts are cleared on the server
// first; local state is only dropped once that call succeeds.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolveMode() == modeAuthenticated {
		if err := e.remote.DeleteAll(ctx); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		e.lines = nil
		e.selected = make(map[string]struct{})
		e.persistStateLocked()
		return nil
	}

	e.lines = nil
	e.selected = make(map[string]struct{})
	e.persistStateLocked()
	e.deleteBlob(guestItemsKey)
	return nil
}

func (e *Engine) removeLocked(ctx context.Context, identity string) error {
	idx := e.indexOfLocked(identity)
	if idx < 0 {
		return ErrLineNotFound
	}

	switch e.resolveMode() {
	case modeAuthenticated:
		if e.lines[idx].RemoteID == "" {
			return fmt.Errorf("remove %s: %w", identity, ErrMissingRemoteID)
		}
		if err := e.remote.Delete(ctx, e.lines[idx].RemoteID); err != nil {
			return fmt.Errorf("remove cart line: %w", err)
		}
		// The row is gone server-side; drop it from the selection now so
		// the reload's remap fallback cannot keep its identity alive.
		delete(e.selected, identity)
		return e.reloadLocked(ctx)

	default:
		e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
		delete(e.selected, identity)
		e.persistGuestLocked()
		return nil
	}
}

func (e *Engine) addGuestLocked(in AddInput) {
	line := domain.Line{
		ProductID:           in.ProductID,
		VariantID:           in.VariantID,
		SelectedOptions:     in.SelectedOptions,
		Quantity:            in.Quantity,
		UnitPrice:           in.UnitPrice,
		UnitDiscountedPrice: in.UnitDiscountedPrice,
		Title:               in.Title,
		Images:              in.Images,
	}

	identity := line.Identity()
	if idx := e.indexOfLocked(identity); idx >= 0 {
		e.lines[idx].Quantity += in.Quantity
		return
	}
	e.lines = append(e.lines, line)
}

func (e *Engine) indexOfLocked(identity string) int {
	for i := range e.lines {
		if e.lines[i].Identity() == identity {
			return i
		}
	}
	return -1
}

func (e *Engine) onSessionEvent(ev session.Event) {
	switch ev {
	case session.EventLogin:
		e.handleLogin()
	case session.EventLogout:
		e.handleLogout()
	}
}

func (e *Engine) handleLogin() {
	ctx := context.Background()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mergeLocked(ctx); err != nil {
		// Snapshot stays intact; the merge retries on the next login.
		e.log.Warn("guest cart merge failed", "error", err)
		return
	}
	if err := e.reloadLocked(ctx); err != nil {
		e.log.Warn("cart reload after login failed", "error", err)
		return
	}
	e.ready = true
}

func (e *Engine) handleLogout() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lines = nil
	e.selected = make(map[string]struct{})
	e.ready = false
	e.deleteBlob(stateKey)
	e.deleteBlob(guestItemsKey)
}
