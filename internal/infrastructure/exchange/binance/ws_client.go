package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"pricewatch/internal/domain"
)

const (
	Name = "binance"

	DefaultWSURL     = "wss://stream.binance.com:9443"
	DefaultBackoff   = 5 * time.Second
	dialTimeout      = 10 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 25 * time.Second
	writeCtrlTimeout = 5 * time.Second
)

// TradeFeed streams raw trades of one symbol over a single websocket and
// reconnects on a fixed schedule for as long as its context lives.
type TradeFeed struct {
	wsURL   string // e.g. wss://stream.binance.com:9443
	backoff time.Duration
	dialer  *websocket.Dialer
}

func NewTradeFeed(wsURL string, backoff time.Duration) *TradeFeed {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &TradeFeed{
		wsURL:   wsURL,
		backoff: backoff,
		dialer:  websocket.DefaultDialer,
	}
}

func (f *TradeFeed) Name() string { return Name }

type tradeMsg struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
}

func buildTradeURL(base string, inst domain.Instrument) (string, error) {
	sym := strings.ToLower(inst.Key())
	if sym == "" {
		return "", errors.New("instrument empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/ws/" + sym + "@trade"
	u.RawQuery = ""
	return u.String(), nil
}

// parseTrade extracts the price of a trade message; ok is false for anything
// that is not a well formed trade.
func parseTrade(b []byte) (decimal.Decimal, bool) {
	var msg tradeMsg
	if err := json.Unmarshal(b, &msg); err != nil {
		return decimal.Zero, false
	}
	if msg.Event != "" && msg.Event != "trade" {
		return decimal.Zero, false
	}
	p := strings.TrimSpace(msg.Price)
	if p == "" {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(p)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, false
	}
	return price, true
}

// Stream blocks until ctx is done. Every failed dial or dropped connection
// is followed by exactly one backoff wait before the next attempt.
func (f *TradeFeed) Stream(ctx context.Context, inst domain.Instrument, onTrade func(decimal.Decimal), onState func(domain.ConnectionState)) {
	wsURL, err := buildTradeURL(f.wsURL, inst)
	if err != nil {
		log.Error().Str("feed", f.Name()).Str("instrument", inst.String()).Err(err).Msg("invalid stream url")
		return
	}
	lg := log.With().Str("feed", f.Name()).Str("instrument", inst.String()).Logger()

	state := domain.Connecting
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		onState(state)

		lg.Debug().Int("attempt", attempt).Str("url", wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, _, err := f.dialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Warn().Err(err).Int("attempt", attempt).Msg("ws dial failed")
		} else {
			lg.Info().Msg("ws connected")
			onState(domain.Connected)

			err = readLoop(ctx, conn, func(b []byte) {
				price, ok := parseTrade(b)
				if !ok {
					lg.Debug().Bytes("msg", b).Msg("dropping malformed message")
					return
				}
				onTrade(price)
			})
			_ = conn.Close()

			if ctx.Err() != nil {
				lg.Info().Msg("ws closed")
				return
			}
			lg.Warn().Err(err).Msg("ws disconnected")
		}

		onState(domain.Disconnected)
		if !sleepCtx(ctx, f.backoff) {
			return
		}
		state = domain.Reconnecting
	}
}

// readLoop pumps messages to onMsg until the connection fails or ctx is done.
// It returns only after the reader goroutine has exited, so onMsg is never
// called afterwards.
func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if ctx.Err() != nil {
				continue
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeCtrlTimeout))
			_ = conn.Close()
			<-errCh
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeCtrlTimeout))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
