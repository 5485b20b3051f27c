package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

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
  active BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS alerts (
  id TEXT PRIMARY KEY,
  position INTEGER NOT NULL,
  symbol TEXT NOT NULL,
  target NUMERIC NOT NULL,
  enabled BOOLEAN NOT NULL,
  persistent BOOLEAN NOT NULL,
  sound BOOLEAN NOT NULL,
  flash BOOLEAN NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_symbol ON alerts(symbol);

CREATE TABLE IF NOT EXISTS prices (
  symbol TEXT PRIMARY KEY,
  price NUMERIC NOT NULL,
  ts_ms BIGINT NOT NULL
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
			`INSERT INTO instruments(position, symbol, active) VALUES($1, $2, $3)`,
			i, inst.Key(), inst.Equal(active),
		); err != nil {
			return fmt.Errorf("insert instrument %s: %w", inst, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) LoadAlerts(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, target::text, enabled, persistent, sound, flash, created_at
		FROM alerts ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a       domain.Alert
			symbol  string
			target  string
			created time.Time
		)
		if err := rows.Scan(&a.ID, &symbol, &target, &a.Enabled, &a.Persistent,
			&a.Notify.Sound, &a.Notify.Flash, &created); err != nil {
			return nil, err
		}
		a.Instrument = domain.NewInstrument(symbol)
		if a.Target, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("alert %s target %q: %w", a.ID, target, err)
		}
		a.CreatedAt = created.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

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
			VALUES($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
			a.ID, i, a.Instrument.Key(), a.Target.String(), a.Enabled, a.Persistent,
			a.Notify.Sound, a.Notify.Flash, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prices(symbol, price, ts_ms) VALUES($1, $2::numeric, $3)
		ON CONFLICT(symbol) DO UPDATE SET price=excluded.price, ts_ms=excluded.ts_ms
	`, inst.Key(), price.String(), ts)
	return err
}

// LatestPrice returns the last recorded price of inst.
func (r *Repo) LatestPrice(ctx context.Context, inst domain.Instrument) (decimal.Decimal, int64, error) {
	var (
		price string
		ts    int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT price::text, ts_ms FROM prices WHERE symbol=$1`, inst.Key()).Scan(&price, &ts)
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
