package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

const (
	DefaultRESTURL        = "https://api.binance.com"
	DefaultRequestTimeout = 10 * time.Second

	maxCloses = 1000
)

// SnapshotClient answers one-off price questions over the public REST API.
// Every call is a single request bounded by the client timeout.
type SnapshotClient struct {
	baseURL string
	client  *http.Client
}

func NewSnapshotClient(baseURL string, timeout time.Duration) *SnapshotClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultRESTURL
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &SnapshotClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type tickerPriceResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type ticker24hResp struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
}

// FetchLastPrice returns the latest traded price.
func (c *SnapshotClient) FetchLastPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	var resp tickerPriceResp
	if err := c.getJSON(ctx, "/api/v3/ticker/price", url.Values{"symbol": {inst.Key()}}, &resp); err != nil {
		return decimal.Zero, err
	}
	price, err := parseDecimal("price", resp.Price)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: price %s not positive", port.ErrUnavailable, price)
	}
	return price, nil
}

// FetchChangePercent returns the rolling 24h change in percent.
func (c *SnapshotClient) FetchChangePercent(ctx context.Context, inst domain.Instrument) (decimal.Decimal, error) {
	var resp ticker24hResp
	if err := c.getJSON(ctx, "/api/v3/ticker/24hr", url.Values{"symbol": {inst.Key()}}, &resp); err != nil {
		return decimal.Zero, err
	}
	return parseDecimal("priceChangePercent", resp.PriceChangePercent)
}

// FetchRecentCloses returns up to count candle closes, oldest first. Rows
// without a readable close are skipped.
func (c *SnapshotClient) FetchRecentCloses(ctx context.Context, inst domain.Instrument, interval string, count int) ([]decimal.Decimal, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > maxCloses {
		count = maxCloses
	}
	params := url.Values{
		"symbol":   {inst.Key()},
		"interval": {interval},
		"limit":    {strconv.Itoa(count)},
	}

	var rows [][]json.RawMessage
	if err := c.getJSON(ctx, "/api/v3/klines", params, &rows); err != nil {
		return nil, err
	}

	closes := make([]decimal.Decimal, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 {
			log.Debug().Int("row", i).Msg("kline row too short")
			continue
		}
		var s string
		if err := json.Unmarshal(row[4], &s); err != nil {
			log.Debug().Int("row", i).Err(err).Msg("kline close not a string")
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		closes = append(closes, d)
	}
	if len(closes) == 0 && len(rows) > 0 {
		return nil, fmt.Errorf("%w: no readable closes in %d klines", port.ErrUnavailable, len(rows))
	}
	return closes, nil
}

func (c *SnapshotClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", port.ErrUnavailable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", port.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: binance api error: %d %s", port.ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", port.ErrUnavailable, path, err)
	}
	return nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %s missing", port.ErrUnavailable, field)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", port.ErrUnavailable, field, err)
	}
	return d, nil
}
