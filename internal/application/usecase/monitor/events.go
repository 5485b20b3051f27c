package monitor

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// StateEvent reports a connection state change of the active feed.
// A zero Instrument means nothing is being streamed.
type StateEvent struct {
	Instrument domain.Instrument
	State      domain.ConnectionState
	At         time.Time
}

type DisplayKind int

const (
	DisplayPrice DisplayKind = iota
	DisplayChange
	DisplayCloses
)

// DisplayUpdate carries one piece of display data for the active instrument.
type DisplayUpdate struct {
	Kind          DisplayKind
	Instrument    domain.Instrument
	Price         decimal.Decimal
	ChangePercent decimal.Decimal
	Closes        []decimal.Decimal
	At            time.Time
}

// eventQueue is a bounded channel that drops its oldest element when full,
// so producers on the network paths never block on a slow consumer.
type eventQueue[T any] struct {
	name    string
	ch      chan T
	dropped atomic.Int64
}

func newEventQueue[T any](name string, size int) *eventQueue[T] {
	if size <= 0 {
		size = 1
	}
	return &eventQueue[T]{name: name, ch: make(chan T, size)}
}

func (q *eventQueue[T]) push(v T) {
	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

func (q *eventQueue[T]) out() <-chan T { return q.ch }

func (q *eventQueue[T]) close() { close(q.ch) }
