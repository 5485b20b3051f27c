package monitor

import (
	"context"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// NoopRepo discards alert notifications and latest prices.
type NoopRepo struct{}

func NewNoopRepo() *NoopRepo { return &NoopRepo{} }

func (n *NoopRepo) NotifyAlert(ctx context.Context, ev domain.AlertFired) error {
	return nil
}

func (n *NoopRepo) UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error {
	return nil
}
