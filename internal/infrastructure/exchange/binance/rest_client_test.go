package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

func newRESTServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "BTCUSDT":
			fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"50123.45000000"}`)
		case "BADUSDT":
			fmt.Fprint(w, `{"symbol":"BADUSDT","price":"n/a"}`)
		case "ZEROUSDT":
			fmt.Fprint(w, `{"symbol":"ZEROUSDT","price":"0.00000000"}`)
		case "NEGUSDT":
			fmt.Fprint(w, `{"symbol":"NEGUSDT","price":"-1.5"}`)
		default:
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","priceChangePercent":"-1.234"}`)
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") == "EMPTYUSDT" {
			fmt.Fprint(w, `[[1,"1","1","1",null,"1"]]`)
			return
		}
		assert.Equal(t, "1h", q.Get("interval"))
		assert.Equal(t, "3", q.Get("limit"))
		fmt.Fprint(w, `[
			[1700000000000,"1.0","2.0","0.5","10.5","100"],
			[1700003600000,"1.0","2.0","0.5","oops","100"],
			[1700007200000,"1.0"],
			[1700010800000,"1.0","2.0","0.5","11.25","100"]
		]`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSnapshotClientFetchLastPrice(t *testing.T) {
	c := NewSnapshotClient(newRESTServer(t).URL, time.Second)
	ctx := context.Background()

	p, err := c.FetchLastPrice(ctx, "btcusdt")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("50123.45")))

	_, err = c.FetchLastPrice(ctx, "BADUSDT")
	assert.ErrorIs(t, err, port.ErrUnavailable)

	_, err = c.FetchLastPrice(ctx, "NOPE")
	assert.ErrorIs(t, err, port.ErrUnavailable)

	for _, inst := range []domain.Instrument{"ZEROUSDT", "NEGUSDT"} {
		_, err = c.FetchLastPrice(ctx, inst)
		assert.ErrorIs(t, err, port.ErrUnavailable, inst.String())
	}
}

func TestSnapshotClientFetchChangePercent(t *testing.T) {
	c := NewSnapshotClient(newRESTServer(t).URL, time.Second)

	pct, err := c.FetchChangePercent(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "-1.234", pct.String())
}

func TestSnapshotClientFetchRecentClosesSkipsBadRows(t *testing.T) {
	c := NewSnapshotClient(newRESTServer(t).URL, time.Second)
	ctx := context.Background()

	closes, err := c.FetchRecentCloses(ctx, "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.True(t, closes[0].Equal(decimal.RequireFromString("10.5")))
	assert.True(t, closes[1].Equal(decimal.RequireFromString("11.25")))

	_, err = c.FetchRecentCloses(ctx, "EMPTYUSDT", "1h", 3)
	assert.ErrorIs(t, err, port.ErrUnavailable)

	closes, err = c.FetchRecentCloses(ctx, "BTCUSDT", "1h", 0)
	require.NoError(t, err)
	assert.Empty(t, closes)
}

func TestSnapshotClientTimeout(t *testing.T) {
	srv := newRESTServer(t)
	c := NewSnapshotClient(srv.URL, 50*time.Millisecond)

	var out struct{}
	err := c.getJSON(context.Background(), "/slow", nil, &out)
	assert.ErrorIs(t, err, port.ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSnapshotClient(srv.URL, time.Second).FetchLastPrice(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, port.ErrUnavailable)
}
