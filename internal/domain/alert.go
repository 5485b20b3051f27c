package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotifyOptions controls how a fired alert is presented.
type NotifyOptions struct {
	Sound bool `json:"sound"`
	Flash bool `json:"flash"`
}

// Alert is a price threshold on one instrument.
// A non-persistent alert disables itself after it fires once.
type Alert struct {
	ID         string          `json:"id"`
	Instrument Instrument      `json:"instrument"`
	Target     decimal.Decimal `json:"target"`
	Enabled    bool            `json:"enabled"`
	Persistent bool            `json:"persistent"`
	Notify     NotifyOptions   `json:"notify"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AlertFired is emitted once per alert per crossing.
type AlertFired struct {
	Alert    Alert           `json:"alert"`
	Previous decimal.Decimal `json:"previous"`
	Price    decimal.Decimal `json:"price"`
	Source   Source          `json:"source"`
	At       time.Time       `json:"at"`
}

// Crossed reports whether the move from previous to current crossed target.
// Touching the target from either side counts; staying on it does not.
func Crossed(previous, current, target decimal.Decimal) bool {
	up := previous.LessThan(target) && current.GreaterThanOrEqual(target)
	down := previous.GreaterThan(target) && current.LessThanOrEqual(target)
	return up || down
}
