package monitor

import (
	"errors"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

type Feed = port.Feed

// EventSource is the observable side of the Supervisor.
type EventSource interface {
	States() <-chan StateEvent
	Displays() <-chan DisplayUpdate
	Alerts() <-chan domain.AlertFired
}

var (
	ErrNoInstruments     = errors.New("no instruments tracked")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrClosed            = errors.New("supervisor closed")
)
