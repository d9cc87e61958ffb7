package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrPositionExists = errors.New("position already open for symbol")
	ErrNotFound       = errors.New("position not found")
)

// Manager is the open-position book, one record per symbol.
// Every mutation persists the full book before it becomes visible.
type Manager struct {
	mu        sync.RWMutex
	positions map[string]Position
	store     Persister
}

// NewManager creates a book backed by store; a nil store keeps it in memory.
func NewManager(store Persister) *Manager {
	return &Manager{
		positions: make(map[string]Position),
		store:     store,
	}
}

// Load seeds the book from the store on startup.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	pos, err := m.store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range pos {
		p.EnsureHits()
		m.positions[p.Symbol] = p
	}
	return nil
}

// commit persists next and swaps it in. Caller holds mu.
func (m *Manager) commit(ctx context.Context, next map[string]Position) error {
	if m.store != nil {
		if err := m.store.SavePositions(ctx, sortedValues(next)); err != nil {
			return fmt.Errorf("save positions: %w", err)
		}
	}
	m.positions = next
	return nil
}

func (m *Manager) copyMap() map[string]Position {
	next := make(map[string]Position, len(m.positions)+1)
	for k, v := range m.positions {
		next[k] = v
	}
	return next
}

// Add records a newly opened position.
func (m *Manager) Add(ctx context.Context, p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[p.Symbol]; exists {
		return fmt.Errorf("%w: %s", ErrPositionExists, p.Symbol)
	}
	p = p.Clone()
	p.EnsureHits()
	next := m.copyMap()
	next[p.Symbol] = p
	return m.commit(ctx, next)
}

// Update replaces an existing record.
func (m *Manager) Update(ctx context.Context, p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[p.Symbol]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, p.Symbol)
	}
	next := m.copyMap()
	next[p.Symbol] = p.Clone()
	return m.commit(ctx, next)
}

// Remove deletes the record for symbol.
func (m *Manager) Remove(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[symbol]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}
	next := m.copyMap()
	delete(next, symbol)
	return m.commit(ctx, next)
}

// Get returns a copy of the record for symbol.
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return p.Clone(), true
}

// List returns copies of all records ordered by creation time.
func (m *Manager) List() []Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := sortedValues(m.positions)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// Has reports whether symbol is open in direction.
func (m *Manager) Has(symbol string, d Direction) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[symbol]
	return ok && p.Direction == d
}

// CountByClass returns how many open records belong to class.
func (m *Manager) CountByClass(c TradeClass) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.positions {
		if p.Class == c {
			n++
		}
	}
	return n
}

// Len returns the number of open records.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

func sortedValues(in map[string]Position) []Position {
	out := make([]Position, 0, len(in))
	for _, p := range in {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
