package composite

import (
	"context"

	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

// Notifier fans alert firings out to every target and reports the first error.
type Notifier struct {
	targets []port.Notifier
}

func NewNotifier(targets ...port.Notifier) *Notifier {
	// nil targets are allowed; filter in constructor for safety
	out := make([]port.Notifier, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Notifier{targets: out}
}

func (n *Notifier) Len() int { return len(n.targets) }

func (n *Notifier) NotifyAlert(ctx context.Context, ev domain.AlertFired) error {
	var firstErr error
	for _, t := range n.targets {
		if err := t.NotifyAlert(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recorder fans latest prices out to every target and reports the first error.
type Recorder struct {
	targets []port.PriceRecorder
}

func NewRecorder(targets ...port.PriceRecorder) *Recorder {
	out := make([]port.PriceRecorder, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Recorder{targets: out}
}

func (r *Recorder) Len() int { return len(r.targets) }

func (r *Recorder) UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error {
	var firstErr error
	for _, t := range r.targets {
		if err := t.UpsertLatestPrice(ctx, inst, price, ts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
