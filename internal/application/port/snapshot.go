package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// ErrUnavailable is wrapped by every SnapshotFetcher failure.
var ErrUnavailable = errors.New("snapshot unavailable")

// SnapshotFetcher performs single bounded-time requests, without retries.
type SnapshotFetcher interface {
	FetchLastPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error)
	FetchChangePercent(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error)
	// FetchRecentCloses returns closing prices oldest first.
	FetchRecentCloses(ctx context.Context, inst domain.Instrument, interval string, count int) ([]decimal.Decimal, error)
}
