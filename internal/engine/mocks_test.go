package engine

import (
	"context"
	"fmt"
	"sync"

	"cartsync/internal/catalog"
	"cartsync/internal/domain"
	"cartsync/internal/remote"
	"cartsync/internal/session"
)

type mockSession struct {
	mu       sync.Mutex
	authed   bool
	handlers map[int]func(session.Event)
	nextID   int
}

func newMockSession() *mockSession {
	return &mockSession{handlers: make(map[int]func(session.Event))}
}

func (m *mockSession) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authed
}

func (m *mockSession) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.authed {
		return "", false
	}
	return "test-token", true
}

func (m *mockSession) Subscribe(h func(session.Event)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.handlers, id)
		m.mu.Unlock()
	}
}

func (m *mockSession) login() {
	m.mu.Lock()
	m.authed = true
	handlers := m.snapshot()
	m.mu.Unlock()
	for _, h := range handlers {
		h(session.EventLogin)
	}
}

func (m *mockSession) logout() {
	m.mu.Lock()
	m.authed = false
	handlers := m.snapshot()
	m.mu.Unlock()
	for _, h := range handlers {
		h(session.EventLogout)
	}
}

func (m *mockSession) snapshot() []func(session.Event) {
	out := make([]func(session.Event), 0, len(m.handlers))
	for _, h := range m.handlers {
		out = append(out, h)
	}
	return out
}

// mockRemote applies the same identity rule as the engine, the way the
// real server is contracted to.
type mockRemote struct {
	mu         sync.Mutex
	rows       []remote.Row
	nextID     int
	err        error
	mergeCalls int
}

func (m *mockRemote) List(context.Context) ([]remote.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]remote.Row, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *mockRemote) Create(_ context.Context, item remote.Item) (remote.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return remote.Row{}, m.err
	}
	return m.upsert(item), nil
}

func (m *mockRemote) Update(_ context.Context, rowID string, quantity int) (remote.Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return remote.Row{}, m.err
	}
	for i := range m.rows {
		if m.rows[i].ID == rowID {
			m.rows[i].Quantity = quantity
			return m.rows[i], nil
		}
	}
	return remote.Row{}, remote.ErrRowNotFound
}

func (m *mockRemote) Delete(_ context.Context, rowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for i := range m.rows {
		if m.rows[i].ID == rowID {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return remote.ErrRowNotFound
}

func (m *mockRemote) DeleteAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = nil
	return nil
}

func (m *mockRemote) Merge(_ context.Context, items []remote.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeCalls++
	if m.err != nil {
		return m.err
	}
	for _, item := range items {
		m.upsert(item)
	}
	return nil
}

func (m *mockRemote) upsert(item remote.Item) remote.Row {
	identity := domain.LineIdentity(item.ProductID, item.VariantID, item.SelectedOptions)
	for i := range m.rows {
		r := m.rows[i]
		if domain.LineIdentity(r.ProductID, r.VariantID, r.SelectedOptions) == identity {
			m.rows[i].Quantity += item.Quantity
			return m.rows[i]
		}
	}

	m.nextID++
	row := remote.Row{
		ID:              fmt.Sprintf("row-%d", m.nextID),
		ProductID:       item.ProductID,
		VariantID:       item.VariantID,
		Quantity:        item.Quantity,
		SelectedOptions: item.SelectedOptions,
		Price:           10,
		Title:           "product " + item.ProductID,
	}
	m.rows = append(m.rows, row)
	return row
}

func (m *mockRemote) setRows(rows []remote.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = rows
}

func (m *mockRemote) getRows() []remote.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]remote.Row, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *mockRemote) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockRemote) getMergeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mergeCalls
}

type mockCatalog struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	err      error
}

func newMockCatalog(products ...*catalog.Product) *mockCatalog {
	m := &mockCatalog{products: make(map[string]*catalog.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockCatalog) GetProduct(_ context.Context, productID string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockCatalog) remove(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, productID)
}
