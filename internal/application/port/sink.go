package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Event line: append a line with timestamp, live line is redrawn on the next update
	WriteEvent(ts time.Time, line string) error
	// Bell rings the terminal bell
	Bell() error
	// Normal newline (for logs)
	NewLine() error
}

// Notifier receives every alert firing.
type Notifier interface {
	NotifyAlert(ctx context.Context, ev domain.AlertFired) error
}

// PriceRecorder mirrors the latest displayed price somewhere outside the process.
type PriceRecorder interface {
	UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error
}

// PriceHistory reads back what a PriceRecorder stored, ts in unix milliseconds.
type PriceHistory interface {
	LatestPrice(ctx context.Context, inst domain.Instrument) (price decimal.Decimal, ts int64, err error)
}
