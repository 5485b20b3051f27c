package port

import (
	"context"

	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

// Feed streams live trades for one instrument.
// Stream blocks until ctx is cancelled, reconnecting on its own; no trade is
// delivered after it returns.
type Feed interface {
	Name() string
	Stream(ctx context.Context, inst domain.Instrument, onTrade func(decimal.Decimal), onState func(domain.ConnectionState))
}
