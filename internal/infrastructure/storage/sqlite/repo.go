package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS instruments (
  position INTEGER PRIMARY KEY,
  symbol TEXT NOT NULL UNIQUE,
  active INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  position INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  target TEXT NOT NULL,
  enabled INTEGER NOT NULL,
  persistent INTEGER NOT NULL,
  sound INTEGER NOT NULL,
  flash INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);

CREATE TABLE IF NOT EXISTS prices (
  symbol TEXT PRIMARY KEY,
  price TEXT NOT NULL,
  ts_ms INTEGER NOT NULL
);
`)
	return err
}

func (r *Repo) LoadInstruments(ctx context.Context) ([]domain.Instrument, domain.Instrument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, active FROM instruments ORDER BY position`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var (
		items  []domain.Instrument
		active domain.Instrument
	)
	for rows.Next() {
		var (
			symbol string
			isAct  bool
		)
		if err := rows.Scan(&symbol, &isAct); err != nil {
			return nil, "", err
		}
		inst := domain.NewInstrument(symbol)
		items = append(items, inst)
		if isAct {
			active = inst
		}
	}
	return items, active, rows.Err()
}

// SaveInstruments replaces the stored list in one transaction.
func (r *Repo) SaveInstruments(ctx context.Context, items []domain.Instrument, active domain.Instrument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM instruments`); err != nil {
		return err
	}
	for i, inst := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instruments(position, symbol, active) VALUES(?, ?, ?)`,
			i, inst.Key(), inst.Equal(active),
		); err != nil {
			return fmt.Errorf("insert instrument %s: %w", inst, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) LoadAlerts(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, target, enabled, persistent, sound, flash, created_at
		FROM alerts ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a         domain.Alert
			symbol    string
			target    string
			createdMS int64
		)
		if err := rows.Scan(&a.ID, &symbol, &target, &a.Enabled, &a.Persistent,
			&a.Notify.Sound, &a.Notify.Flash, &createdMS); err != nil {
			return nil, err
		}
		a.Instrument = domain.NewInstrument(symbol)
		if a.Target, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("alert %s target %q: %w", a.ID, target, err)
		}
		a.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveAlerts replaces the stored alert set in one transaction.
func (r *Repo) SaveAlerts(ctx context.Context, alerts []domain.Alert) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alerts`); err != nil {
		return err
	}
	for i, a := range alerts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alerts(id, position, symbol, target, enabled, persistent, sound, flash, created_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, i, a.Instrument.Key(), a.Target.String(), a.Enabled, a.Persistent,
			a.Notify.Sound, a.Notify.Flash, a.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(symbol, price, ts_ms)
		VALUES(?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
		price=excluded.price, ts_ms=excluded.ts_ms
	`, inst.Key(), price.String(), ts)
	return err
}

// LatestPrice returns the last recorded price of inst.
func (r *Repo) LatestPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, int64, error) {
	var (
		price string
		ts    int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT price, ts_ms FROM prices WHERE symbol=?`, inst.Key()).Scan(&price, &ts)
	if err != nil {
		return decimal.Zero, 0, err
	}
	d, err := decimal.NewFromString(price)
	return d, ts, err
}

var (
	_ port.Repository    = (*Repo)(nil)
	_ port.PriceRecorder = (*Repo)(nil)
	_ port.PriceHistory  = (*Repo)(nil)
)
