package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain"
)

type wsTestServer struct {
	mu       sync.Mutex
	failures int
	// dropAfter closes the upgraded connection once messages are written.
	dropAfter bool
	// hang, when set, stalls the handshake until it is closed.
	hang     chan struct{}
	attempts []time.Time
	paths    []string
	messages []string
}

func (s *wsTestServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.attempts = append(s.attempts, time.Now())
	s.paths = append(s.paths, r.URL.Path)
	fail := len(s.attempts) <= s.failures
	msgs := s.messages
	s.mu.Unlock()

	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	if s.hang != nil {
		select {
		case <-s.hang:
		case <-r.Context().Done():
		}
		return
	}

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}
	if s.dropAfter {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsTestServer) snapshot() ([]time.Time, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.attempts...), append([]string(nil), s.paths...)
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestTradeFeedReconnectsWithFixedBackoff(t *testing.T) {
	const (
		failures = 3
		backoff  = 50 * time.Millisecond
	)
	ts := &wsTestServer{
		failures: failures,
		messages: []string{
			`{not json`,
			`{"e":"trade","s":"BTCUSDT","p":"abc"}`,
			`{"e":"trade","s":"BTCUSDT"}`,
			`{"e":"trade","s":"BTCUSDT","p":"50000.10"}`,
		},
	}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	feed := NewTradeFeed(wsURL(srv), backoff)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		states []domain.ConnectionState
	)
	trades := make(chan decimal.Decimal, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Stream(ctx, "btcusdt",
			func(p decimal.Decimal) { trades <- p },
			func(s domain.ConnectionState) {
				mu.Lock()
				states = append(states, s)
				mu.Unlock()
			})
	}()

	select {
	case p := <-trades:
		assert.True(t, p.Equal(decimal.RequireFromString("50000.10")), "got %s", p)
	case <-time.After(3 * time.Second):
		t.Fatalf("no trade received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stream did not return after cancel")
	}

	attempts, paths := ts.snapshot()
	require.Len(t, attempts, failures+1)
	for i := 1; i < len(attempts); i++ {
		assert.GreaterOrEqual(t, attempts[i].Sub(attempts[i-1]), backoff)
	}
	assert.Equal(t, "/ws/btcusdt@trade", paths[0])
	assert.Empty(t, trades, "malformed messages must be dropped")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.ConnectionState{
		domain.Connecting, domain.Disconnected,
		domain.Reconnecting, domain.Disconnected,
		domain.Reconnecting, domain.Disconnected,
		domain.Reconnecting, domain.Connected,
	}, states)
}

func TestTradeFeedCancelDuringBackoff(t *testing.T) {
	ts := &wsTestServer{failures: 100}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	feed := NewTradeFeed(wsURL(srv), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Stream(ctx, "ETHUSDT", func(decimal.Decimal) {}, func(domain.ConnectionState) {})
	}()

	require.Eventually(t, func() bool {
		attempts, _ := ts.snapshot()
		return len(attempts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stream did not return promptly during backoff")
	}
}

func TestTradeFeedReconnectsAfterDroppedConnection(t *testing.T) {
	const backoff = 50 * time.Millisecond
	ts := &wsTestServer{
		dropAfter: true,
		messages:  []string{`{"e":"trade","s":"BTCUSDT","p":"42000"}`},
	}
	srv := httptest.NewServer(ts)
	defer srv.Close()

	feed := NewTradeFeed(wsURL(srv), backoff)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		states []domain.ConnectionState
	)
	trades := make(chan decimal.Decimal, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Stream(ctx, "BTCUSDT",
			func(p decimal.Decimal) { trades <- p },
			func(s domain.ConnectionState) {
				mu.Lock()
				states = append(states, s)
				mu.Unlock()
			})
	}()

	for i := 0; i < 2; i++ {
		select {
		case p := <-trades:
			assert.True(t, p.Equal(decimal.NewFromInt(42000)), "got %s", p)
		case <-time.After(3 * time.Second):
			t.Fatalf("trade %d not received", i+1)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stream did not return after cancel")
	}

	attempts, _ := ts.snapshot()
	require.GreaterOrEqual(t, len(attempts), 2)
	assert.GreaterOrEqual(t, attempts[1].Sub(attempts[0]), backoff)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(states), 5)
	assert.Equal(t, []domain.ConnectionState{
		domain.Connecting, domain.Connected,
		domain.Disconnected, domain.Reconnecting, domain.Connected,
	}, states[:5])
}

func TestTradeFeedCancelDuringHandshake(t *testing.T) {
	ts := &wsTestServer{hang: make(chan struct{})}
	srv := httptest.NewServer(ts)
	defer srv.Close()
	defer close(ts.hang)

	feed := NewTradeFeed(wsURL(srv), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		feed.Stream(ctx, "ETHUSDT", func(decimal.Decimal) {}, func(domain.ConnectionState) {})
	}()

	require.Eventually(t, func() bool {
		attempts, _ := ts.snapshot()
		return len(attempts) == 1
	}, 2*time.Second, 5*time.Millisecond)

	start := time.Now()
	cancel()
	select {
	case <-done:
		assert.Less(t, time.Since(start), 100*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatalf("Stream did not return while the handshake was pending")
	}
}

func TestParseTrade(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
		ok   bool
	}{
		{"trade", `{"e":"trade","s":"BTCUSDT","p":"0.00012300"}`, "0.000123", true},
		{"no event type", `{"p":"12.5"}`, "12.5", true},
		{"other event", `{"e":"aggTrade","p":"12.5"}`, "", false},
		{"missing price", `{"e":"trade"}`, "", false},
		{"bad price", `{"e":"trade","p":"1e"}`, "", false},
		{"zero price", `{"e":"trade","p":"0"}`, "", false},
		{"not json", `[`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseTrade([]byte(tt.msg))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			}
		})
	}
}

func TestBuildTradeURL(t *testing.T) {
	u, err := buildTradeURL("wss://stream.binance.com:9443", " SolUsdt ")
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.binance.com:9443/ws/solusdt@trade", u)

	_, err = buildTradeURL(DefaultWSURL, "")
	assert.Error(t, err)
}
