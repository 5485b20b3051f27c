package binance

import (
	"time"

	"pricewatch/internal/application/port"
	"pricewatch/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(Name, pricefeed.Provider{
		NewFeed: func(wsURL string, backoff time.Duration) port.Feed {
			return NewTradeFeed(wsURL, backoff)
		},
		NewSnapshots: func(restURL string, timeout time.Duration) port.SnapshotFetcher {
			return NewSnapshotClient(restURL, timeout)
		},
	})
}
