package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricewatch/internal/domain"
)

type mockAlertStore struct {
	mu      sync.Mutex
	saved   [][]domain.Alert
	loaded  []domain.Alert
	saveErr error
}

func (m *mockAlertStore) LoadAlerts(ctx context.Context) ([]domain.Alert, error) {
	return m.loaded, nil
}

func (m *mockAlertStore) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, alerts)
	return m.saveErr
}

func (m *mockAlertStore) saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func obs(inst, price string) domain.Observation {
	return domain.Observation{
		Instrument: domain.Instrument(inst),
		Price:      dec(price),
		At:         time.Now(),
		Source:     domain.SourceStream,
	}
}

func newEngine(t *testing.T, alerts ...domain.Alert) (*AlertEngine, *mockAlertStore) {
	t.Helper()
	store := &mockAlertStore{}
	e := NewAlertEngine(store, nil)
	for _, a := range alerts {
		_, err := e.Add(context.Background(), a)
		require.NoError(t, err)
	}
	return e, store
}

func oneShot(inst, target string) domain.Alert {
	return domain.Alert{Instrument: domain.Instrument(inst), Target: dec(target), Enabled: true}
}

func TestEvaluateCrossingPredicate(t *testing.T) {
	tests := []struct {
		name     string
		prev     string
		cur      string
		wantFire bool
	}{
		{"upward cross", "49500", "50200", true},
		{"upward touch", "49500", "50000", true},
		{"downward cross", "50500", "49000", true},
		{"downward touch", "50500", "50000", true},
		{"equal to equal", "50000", "50000", false},
		{"below to below", "49000", "49999", false},
		{"above to above", "50001", "52000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t, oneShot("BTCUSDT", "50000"))
			fired := e.Evaluate("btcusdt", dec(tt.prev), dec(tt.cur))
			assert.Equal(t, tt.wantFire, len(fired) == 1)
		})
	}
}

func TestEvaluateIgnoresOtherInstrumentsAndDisabled(t *testing.T) {
	disabled := oneShot("BTCUSDT", "50000")
	disabled.Enabled = false
	e, _ := newEngine(t, oneShot("ETHUSDT", "50000"), disabled)

	fired := e.Evaluate("BTCUSDT", dec("49000"), dec("51000"))
	assert.Empty(t, fired)
}

func TestOneShotAlertDisablesAndRearms(t *testing.T) {
	e, _ := newEngine(t, oneShot("BTCUSDT", "50000"))
	ctx := context.Background()

	fired := e.Evaluate("BTCUSDT", dec("49500"), dec("50200"))
	require.Len(t, fired, 1)
	assert.False(t, fired[0].Enabled)
	assert.False(t, e.List()[0].Enabled)

	// second crossing while disabled
	assert.Empty(t, e.Evaluate("BTCUSDT", dec("50200"), dec("49000")))

	require.NoError(t, e.SetEnabled(ctx, fired[0].ID, true))
	assert.Len(t, e.Evaluate("BTCUSDT", dec("49000"), dec("50500")), 1)
}

func TestPersistentAlertFiresEveryCrossing(t *testing.T) {
	a := oneShot("BTCUSDT", "100")
	a.Persistent = true
	e, _ := newEngine(t, a)

	moves := [][2]string{{"99", "101"}, {"101", "99"}, {"99", "100"}, {"100", "100"}, {"100", "98"}}
	var count int
	for _, m := range moves {
		count += len(e.Evaluate("BTCUSDT", dec(m[0]), dec(m[1])))
	}
	assert.Equal(t, 3, count)
	assert.True(t, e.List()[0].Enabled)
}

func TestObserveFirstObservationNeverFires(t *testing.T) {
	e, store := newEngine(t, oneShot("BTCUSDT", "50000"))
	before := store.saves()

	fired := e.Observe(context.Background(), obs("BTCUSDT", "50000"))
	assert.Empty(t, fired)

	p, ok := e.Cache().Get("btcusdt")
	require.True(t, ok)
	assert.True(t, p.Equal(dec("50000")))
	assert.Equal(t, before, store.saves())
}

func TestObserveExampleSequence(t *testing.T) {
	e, store := newEngine(t, oneShot("BTCUSDT", "50000"))
	ctx := context.Background()
	before := store.saves()

	assert.Empty(t, e.Observe(ctx, obs("BTCUSDT", "49500")))

	fired := e.Observe(ctx, obs("BTCUSDT", "50200"))
	require.Len(t, fired, 1)
	assert.True(t, fired[0].Previous.Equal(dec("49500")))
	assert.True(t, fired[0].Price.Equal(dec("50200")))
	assert.False(t, fired[0].Alert.Enabled)
	assert.Equal(t, before+1, store.saves())

	assert.Empty(t, e.Observe(ctx, obs("BTCUSDT", "49000")))
	assert.Equal(t, before+1, store.saves())
}

func TestObservePersistsOncePerBatch(t *testing.T) {
	e, store := newEngine(t,
		oneShot("BTCUSDT", "100"),
		oneShot("BTCUSDT", "105"),
		oneShot("BTCUSDT", "110"),
	)
	ctx := context.Background()
	before := store.saves()

	e.Observe(ctx, obs("BTCUSDT", "90"))
	fired := e.Observe(ctx, obs("BTCUSDT", "120"))

	assert.Len(t, fired, 3)
	assert.Equal(t, before+1, store.saves())
	for _, a := range store.saved[len(store.saved)-1] {
		assert.False(t, a.Enabled)
	}
}

func TestObserveSurvivesStoreFailure(t *testing.T) {
	e, store := newEngine(t, oneShot("BTCUSDT", "100"))
	store.saveErr = errors.New("disk full")
	ctx := context.Background()

	e.Observe(ctx, obs("BTCUSDT", "90"))
	fired := e.Observe(ctx, obs("BTCUSDT", "110"))
	assert.Len(t, fired, 1)
}

func TestAlertRegistryOperations(t *testing.T) {
	e, store := newEngine(t)
	ctx := context.Background()

	_, err := e.Add(ctx, domain.Alert{Instrument: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrInvalidAlert)

	a, err := e.Add(ctx, oneShot(" ethusdt ", "3000"))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.Instrument("ETHUSDT"), a.Instrument)
	assert.False(t, a.CreatedAt.IsZero())

	require.NoError(t, e.SetEnabled(ctx, a.ID, false))
	assert.False(t, e.List()[0].Enabled)

	assert.ErrorIs(t, e.Remove(ctx, "missing"), ErrAlertNotFound)
	assert.ErrorIs(t, e.SetEnabled(ctx, "missing", true), ErrAlertNotFound)

	require.NoError(t, e.Remove(ctx, a.ID))
	assert.Empty(t, e.List())
	assert.Empty(t, store.saved[len(store.saved)-1])
}

func TestLoadNormalisesInstruments(t *testing.T) {
	store := &mockAlertStore{loaded: []domain.Alert{
		{ID: "a", Instrument: "btcusdt", Target: dec("1"), Enabled: true},
	}}
	e := NewAlertEngine(store, nil)
	require.NoError(t, e.Load(context.Background()))
	assert.Equal(t, domain.Instrument("BTCUSDT"), e.List()[0].Instrument)
}

func TestPollCandidates(t *testing.T) {
	disabled := oneShot("XRPUSDT", "1")
	disabled.Enabled = false
	e, _ := newEngine(t,
		oneShot("BTCUSDT", "50000"),
		oneShot("ETHUSDT", "3000"),
		oneShot("ethusdt", "3500"),
		oneShot("SOLUSDT", "150"),
		disabled,
	)

	got := e.PollCandidates("btcusdt")
	assert.Equal(t, []domain.Instrument{"ETHUSDT", "SOLUSDT"}, got)
}

func TestObserveConcurrentInstrumentsKeepsPerInstrumentOrder(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, inst := range []string{"AAA", "BBB", "CCC"} {
		wg.Add(1)
		go func(inst string) {
			defer wg.Done()
			for i := 1; i <= 200; i++ {
				e.Observe(ctx, domain.Observation{Instrument: domain.Instrument(inst), Price: decimal.NewFromInt(int64(i))})
			}
		}(inst)
	}
	wg.Wait()

	for _, inst := range []domain.Instrument{"AAA", "BBB", "CCC"} {
		p, ok := e.Cache().Get(inst)
		require.True(t, ok)
		assert.True(t, p.Equal(decimal.NewFromInt(200)), "%s last price %s", inst, p)
	}
}
