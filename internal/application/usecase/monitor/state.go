package monitor

import (
	"sync"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// State is what the live line shows for the active instrument.
type State struct {
	mu sync.Mutex

	inst      domain.Instrument
	price     domain.PriceState
	change    decimal.Decimal
	hasChange bool
	closes    []decimal.Decimal
	conn      domain.ConnectionState
	stale     bool
}

// StateSnapshot is a copy of State safe to render without the lock.
type StateSnapshot struct {
	Instrument domain.Instrument
	Price      domain.PriceState
	Change     decimal.Decimal
	HasChange  bool
	Closes     []decimal.Decimal
	Conn       domain.ConnectionState
	// Stale is set once the feed drops and cleared by the next price.
	Stale bool
}

func NewState() *State {
	return &State{}
}

// switchTo forgets everything shown for the previous instrument.
func (s *State) switchTo(inst domain.Instrument) {
	if s.inst.Equal(inst) {
		return
	}
	s.inst = inst
	s.price.Reset()
	s.change = decimal.Zero
	s.hasChange = false
	s.closes = nil
	s.conn = domain.Disconnected
	s.stale = false
}

// ApplyConnection records a connection change and reports whether the line
// needs redrawing.
func (s *State) ApplyConnection(ev StateEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.switchTo(ev.Instrument)
	if s.conn == ev.State {
		return false
	}
	s.conn = ev.State
	if ev.State == domain.Disconnected || ev.State == domain.Reconnecting {
		s.stale = !s.inst.IsZero()
	}
	return true
}

// ApplyDisplay merges an update into the state and reports whether anything
// visible changed. Updates for another instrument replace the state.
func (s *State) ApplyDisplay(u DisplayUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.switchTo(u.Instrument)
	switch u.Kind {
	case DisplayPrice:
		wasStale := s.stale
		s.stale = false
		return s.price.Update(u.Price) || wasStale
	case DisplayChange:
		if s.hasChange && s.change.Equal(u.ChangePercent) {
			return false
		}
		s.change = u.ChangePercent
		s.hasChange = true
		return true
	case DisplayCloses:
		s.closes = append([]decimal.Decimal(nil), u.Closes...)
		return true
	}
	return false
}

func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StateSnapshot{
		Instrument: s.inst,
		Price:      s.price,
		Change:     s.change,
		HasChange:  s.hasChange,
		Closes:     append([]decimal.Decimal(nil), s.closes...),
		Conn:       s.conn,
		Stale:      s.stale,
	}
}
