package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pricewatch/internal/application/service"
	"pricewatch/internal/domain"
	"pricewatch/internal/interfaces/console"
)

// alertList collects -alert-on values of the form SYMBOL>PRICE[,opt...].
type alertList []domain.Alert

func (i *alertList) String() string {
	parts := make([]string, 0, len(*i))
	for _, a := range *i {
		parts = append(parts, a.Instrument.String()+">"+a.Target.String())
	}
	return strings.Join(parts, " ")
}

func (i *alertList) Set(value string) error {
	fields := strings.Split(value, ",")
	parts := strings.Split(fields[0], ">")
	if len(parts) != 2 {
		return fmt.Errorf("invalid alert format %q, want SYMBOL>PRICE", value)
	}

	symbol := domain.NewInstrument(parts[0])
	if symbol.IsZero() {
		return fmt.Errorf("invalid alert format %q, empty symbol", value)
	}
	target, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil || !target.IsPositive() {
		return fmt.Errorf("failed to parse limit for '%s': %q", symbol, parts[1])
	}

	a := domain.Alert{Instrument: symbol, Target: target, Enabled: true}
	if err := console.ApplyAlertOptions(&a, fields[1:]); err != nil {
		return err
	}
	*i = append(*i, a)
	return nil
}

// register adds every flag alert that is not already stored with the same
// instrument, target and options.
func (i alertList) register(ctx context.Context, engine *service.AlertEngine) error {
	existing := engine.List()
	for _, a := range i {
		if containsAlert(existing, a) {
			continue
		}
		if _, err := engine.Add(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func containsAlert(list []domain.Alert, a domain.Alert) bool {
	for _, e := range list {
		if e.Instrument.Equal(a.Instrument) && e.Target.Equal(a.Target) &&
			e.Persistent == a.Persistent && e.Notify == a.Notify {
			return true
		}
	}
	return false
}
