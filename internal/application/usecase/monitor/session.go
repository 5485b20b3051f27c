package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

const saveTimeout = 5 * time.Second

// Session is the tracked instrument list and its selection. Every mutation
// is saved to the store; a save failure is logged and the in-memory state kept.
type Session struct {
	mu    sync.Mutex
	list  *domain.InstrumentList
	store port.InstrumentStore
}

// NewSession wraps list. store may be nil.
func NewSession(list *domain.InstrumentList, store port.InstrumentStore) *Session {
	if list == nil {
		list = domain.NewInstrumentList(nil, "")
	}
	return &Session{list: list, store: store}
}

// LoadSession restores the list from store, falling back to seed (which is
// then saved) when the store holds nothing.
func LoadSession(ctx context.Context, store port.InstrumentStore, seed []domain.Instrument, seedActive domain.Instrument) (*Session, error) {
	items, active, err := store.LoadInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load instruments: %w", err)
	}
	if len(items) == 0 {
		s := NewSession(domain.NewInstrumentList(seed, seedActive), store)
		s.mu.Lock()
		s.saveLocked()
		s.mu.Unlock()
		return s, nil
	}
	return NewSession(domain.NewInstrumentList(items, active), store), nil
}

func (s *Session) Current() (domain.Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Current()
}

func (s *Session) Items() []domain.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Items()
}

func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.Index()
}

func (s *Session) Step(delta int) (domain.Instrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.list.Step(delta)
	if ok {
		s.saveLocked()
	}
	return inst, ok
}

func (s *Session) Select(inst domain.Instrument) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.list.Select(inst) {
		return false
	}
	s.saveLocked()
	return true
}

func (s *Session) Add(inst domain.Instrument) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.list.Add(inst) {
		return false
	}
	s.saveLocked()
	return true
}

func (s *Session) Remove(inst domain.Instrument) (removed, wasActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, wasActive = s.list.Remove(inst)
	if removed {
		s.saveLocked()
	}
	return removed, wasActive
}

func (s *Session) saveLocked() {
	if s.store == nil {
		return
	}
	active, _ := s.list.Current()
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveInstruments(ctx, s.list.Items(), active); err != nil {
		log.Error().Err(err).Msg("save instruments failed")
	}
}
