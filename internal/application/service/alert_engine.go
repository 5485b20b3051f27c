package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

const persistTimeout = 5 * time.Second

// AlertEngine owns the alert registry and detects threshold crossings.
//
// Registry mutations (user edits and firings alike) go through mu, and the
// resulting snapshots reach the store in mutation order: saveMu is taken
// before mu is released.
type AlertEngine struct {
	store port.AlertStore
	cache *LastPriceCache
	now   func() time.Time

	observeMu sync.Mutex // cache swap + evaluate
	mu        sync.Mutex // alerts
	saveMu    sync.Mutex // store writes

	alerts []*domain.Alert
}

// NewAlertEngine creates an engine. store may be nil, in which case nothing is persisted.
func NewAlertEngine(store port.AlertStore, cache *LastPriceCache) *AlertEngine {
	if cache == nil {
		cache = NewLastPriceCache()
	}
	return &AlertEngine{
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

// Cache exposes the last-price cache shared with the supervisor.
func (e *AlertEngine) Cache() *LastPriceCache { return e.cache }

// Load replaces the registry with the persisted alert set.
func (e *AlertEngine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	alerts, err := e.store.LoadAlerts(ctx)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = make([]*domain.Alert, 0, len(alerts))
	for i := range alerts {
		a := alerts[i]
		a.Instrument = domain.NewInstrument(a.Instrument.String())
		e.alerts = append(e.alerts, &a)
	}
	return nil
}

// Add registers a new alert. ID and CreatedAt are filled in when empty.
func (e *AlertEngine) Add(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	a.Instrument = domain.NewInstrument(a.Instrument.String())
	if a.Instrument.IsZero() || a.Target.IsZero() || a.Target.IsNegative() {
		return domain.Alert{}, ErrInvalidAlert
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = e.now().UTC()
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, &a)
	return a, e.commitLocked(ctx)
}

// Remove deletes an alert by ID.
func (e *AlertEngine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return ErrAlertNotFound
	}
	e.alerts = append(e.alerts[:i], e.alerts[i+1:]...)
	return e.commitLocked(ctx)
}

// SetEnabled re-arms or disarms an alert.
func (e *AlertEngine) SetEnabled(ctx context.Context, id string, enabled bool) error {
	e.mu.Lock()
	i := e.indexLocked(id)
	if i < 0 {
		e.mu.Unlock()
		return ErrAlertNotFound
	}
	if e.alerts[i].Enabled == enabled {
		e.mu.Unlock()
		return nil
	}
	e.alerts[i].Enabled = enabled
	return e.commitLocked(ctx)
}

// List returns a copy of every alert in registration order.
func (e *AlertEngine) List() []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// PollCandidates returns the distinct instruments that have at least one
// enabled alert, excluding active.
func (e *AlertEngine) PollCandidates(active domain.Instrument) []domain.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{})
	var out []domain.Instrument
	for _, a := range e.alerts {
		if !a.Enabled || a.Instrument.Equal(active) {
			continue
		}
		if _, ok := seen[a.Instrument.Key()]; ok {
			continue
		}
		seen[a.Instrument.Key()] = struct{}{}
		out = append(out, a.Instrument)
	}
	return out
}

// Evaluate fires every enabled alert on inst whose target lies between
// previous and current. Fired one-shot alerts are disabled. The returned
// alerts reflect their state after firing. Nothing is persisted.
func (e *AlertEngine) Evaluate(inst domain.Instrument, previous, current decimal.Decimal) []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(inst, previous, current)
}

func (e *AlertEngine) evaluateLocked(inst domain.Instrument, previous, current decimal.Decimal) []domain.Alert {
	var fired []domain.Alert
	for _, a := range e.alerts {
		if !a.Enabled || !a.Instrument.Equal(inst) {
			continue
		}
		if !domain.Crossed(previous, current, a.Target) {
			continue
		}
		if !a.Persistent {
			a.Enabled = false
		}
		fired = append(fired, *a)
	}
	return fired
}

// Observe records obs in the cache and evaluates it against the previous
// price of the same instrument. Observations are applied one at a time, so a
// single instrument's sequence is never reordered. The alert set is saved once
// per non-empty batch.
func (e *AlertEngine) Observe(ctx context.Context, obs domain.Observation) []domain.AlertFired {
	e.observeMu.Lock()
	prev, ok := e.cache.Swap(obs.Instrument, obs.Price)
	if !ok {
		e.observeMu.Unlock()
		return nil
	}

	e.mu.Lock()
	fired := e.evaluateLocked(obs.Instrument, prev, obs.Price)
	e.observeMu.Unlock()
	if len(fired) == 0 {
		e.mu.Unlock()
		return nil
	}

	if err := e.commitLocked(ctx); err != nil {
		log.Error().Err(err).Str("instrument", obs.Instrument.String()).Msg("persist fired alerts failed")
	}

	at := obs.At
	if at.IsZero() {
		at = e.now()
	}
	events := make([]domain.AlertFired, 0, len(fired))
	for _, a := range fired {
		events = append(events, domain.AlertFired{
			Alert:    a,
			Previous: prev,
			Price:    obs.Price,
			Source:   obs.Source,
			At:       at,
		})
	}
	return events
}

// commitLocked must be called with mu held; it releases mu and writes the
// snapshot taken under it.
func (e *AlertEngine) commitLocked(ctx context.Context) error {
	if e.store == nil {
		e.mu.Unlock()
		return nil
	}
	snap := e.snapshotLocked()
	e.saveMu.Lock()
	e.mu.Unlock()
	defer e.saveMu.Unlock()

	// a firing seen during shutdown must still be written
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.store.SaveAlerts(ctx, snap); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

func (e *AlertEngine) snapshotLocked() []domain.Alert {
	out := make([]domain.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, *a)
	}
	return out
}

func (e *AlertEngine) indexLocked(id string) int {
	for i, a := range e.alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}
