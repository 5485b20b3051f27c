package port

import (
	"context"

	"pricewatch/internal/domain"
)

// InstrumentStore persists the tracked instrument list.
type InstrumentStore interface {
	LoadInstruments(ctx context.Context) (items []domain.Instrument, active domain.Instrument, err error)
	SaveInstruments(ctx context.Context, items []domain.Instrument, active domain.Instrument) error
}

// AlertStore persists the alert registry as a flat collection.
type AlertStore interface {
	LoadAlerts(ctx context.Context) ([]domain.Alert, error)
	SaveAlerts(ctx context.Context, alerts []domain.Alert) error
}

type Repository interface {
	InstrumentStore
	AlertStore

	// Connection management
	Close() error
}
