package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("PRICEWATCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("PRICEWATCH_TEST_PG_DSN not set")
	}
	repo, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = repo.db.Exec(`DELETE FROM instruments; DELETE FROM alerts; DELETE FROM prices`)
		_ = repo.Close()
	})
	return repo
}

func TestPostgresRepoRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveInstruments(ctx, []domain.Instrument{"BTCUSDT", "ETHUSDT"}, "ETHUSDT"))
	items, active, err := repo.LoadInstruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Instrument{"BTCUSDT", "ETHUSDT"}, items)
	assert.Equal(t, domain.Instrument("ETHUSDT"), active)

	created := time.UnixMilli(1700000000000).UTC()
	require.NoError(t, repo.SaveAlerts(ctx, []domain.Alert{
		{ID: "x", Instrument: "BTCUSDT", Target: decimal.RequireFromString("50000.25"), Enabled: true, CreatedAt: created},
	}))
	alerts, err := repo.LoadAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Target.Equal(decimal.RequireFromString("50000.25")))
	assert.True(t, alerts[0].CreatedAt.Equal(created))

	require.NoError(t, repo.UpsertLatestPrice(ctx, "BTCUSDT", decimal.NewFromInt(1), 1))
	require.NoError(t, repo.UpsertLatestPrice(ctx, "BTCUSDT", decimal.NewFromInt(2), 2))

	p, ts, err := repo.LatestPrice(ctx, "btcusdt")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(2), ts)
}
