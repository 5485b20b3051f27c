package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tells where an observation came from.
type Source string

const (
	SourceStream   Source = "stream"
	SourcePoll     Source = "poll"
	SourceSnapshot Source = "snapshot"
)

// Observation is a single price seen for an instrument.
type Observation struct {
	Instrument Instrument
	Price      decimal.Decimal
	At         time.Time
	Source     Source
}

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState holds the displayed state of a single price
type PriceState struct {
	Price     decimal.Decimal
	HasValue  bool
	Direction Direction
}

// Update applies a new price and reports whether it changed.
func (ps *PriceState) Update(price decimal.Decimal) bool {
	if !ps.HasValue {
		ps.HasValue = true
		ps.Price = price
		ps.Direction = DirectionSame
		return true
	}

	switch price.Cmp(ps.Price) {
	case 1:
		ps.Direction = DirectionUp
	case -1:
		ps.Direction = DirectionDown
	default:
		ps.Direction = DirectionSame
		return false
	}
	ps.Price = price
	return true
}

// Reset forgets the value, used when the displayed instrument changes.
func (ps *PriceState) Reset() {
	*ps = PriceState{}
}
