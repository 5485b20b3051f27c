package pricefeed

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/application/port"
)

// Provider builds the streaming feed and the REST snapshot client of one venue.
type Provider struct {
	NewFeed      func(wsURL string, backoff time.Duration) port.Feed
	NewSnapshots func(restURL string, timeout time.Duration) port.SnapshotFetcher
}

var registry = make(map[string]Provider)

// Register is called from the init() of each venue package.
func Register(venue string, p Provider) {
	if p.NewFeed == nil || p.NewSnapshots == nil {
		log.Warn().Str("venue", venue).Msg("invalid price feed provider")
		return
	}
	if _, exists := registry[venue]; exists {
		log.Warn().Str("venue", venue).Msg("price feed provider already registered, overwriting")
	}
	registry[venue] = p
	log.Debug().Str("venue", venue).Msg("price feed provider registered")
}

func Get(venue string) (Provider, bool) {
	p, ok := registry[venue]
	return p, ok
}

// Names lists registered venues in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
