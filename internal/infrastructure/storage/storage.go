package storage

import (
	"context"
	"sync"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

// InMemoryRepository keeps the instrument list and alerts for the life of the
// process only.
type InMemoryRepository struct {
	mu     sync.Mutex
	items  []domain.Instrument
	active domain.Instrument
	alerts []domain.Alert
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) LoadInstruments(ctx context.Context) ([]domain.Instrument, domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Instrument(nil), r.items...), r.active, nil
}

func (r *InMemoryRepository) SaveInstruments(ctx context.Context, items []domain.Instrument, active domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append([]domain.Instrument(nil), items...)
	r.active = active
	return nil
}

func (r *InMemoryRepository) LoadAlerts(ctx context.Context) ([]domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Alert(nil), r.alerts...), nil
}

func (r *InMemoryRepository) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append([]domain.Alert(nil), alerts...)
	return nil
}

func (r *InMemoryRepository) Close() error { return nil }

var _ port.Repository = (*InMemoryRepository)(nil)
