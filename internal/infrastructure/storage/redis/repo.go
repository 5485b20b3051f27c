package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

// Repo mirrors alert firings and the latest displayed price into Redis.
type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	keyLatest   string // prefix + ":latest"
	alertStream string
	alertChan   string
}

type LatestPrice struct {
	Instrument string `json:"instrument"`
	Price      string `json:"price"`
	Ts         int64  `json:"ts"`
}

type AlertMessage struct {
	ID         string `json:"id"`
	Instrument string `json:"instrument"`
	Target     string `json:"target"`
	Previous   string `json:"previous"`
	Price      string `json:"price"`
	Source     string `json:"source"`
	Persistent bool   `json:"persistent"`
	Sound      bool   `json:"sound"`
	Flash      bool   `json:"flash"`
	TsMS       int64  `json:"ts_ms"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, alertStream, alertChan string) *Repo {
	if strings.TrimSpace(alertStream) == "" {
		alertStream = prefix + ":alerts"
	}
	if strings.TrimSpace(alertChan) == "" {
		alertChan = prefix + ":alerts:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		keyLatest:   prefix + ":latest",
		alertStream: alertStream,
		alertChan:   alertChan,
	}
}

func (r *Repo) UpsertLatestPrice(ctx context.Context, inst domain.Instrument, price decimal.Decimal, ts int64) error {
	if !price.IsPositive() {
		return nil
	}
	lp := LatestPrice{Instrument: inst.Key(), Price: price.String(), Ts: ts}
	b, _ := json.Marshal(lp)

	// Hash: field = "BTCUSDT" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, inst.Key(), string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func newAlertMessage(ev domain.AlertFired) AlertMessage {
	return AlertMessage{
		ID:         ev.Alert.ID,
		Instrument: ev.Alert.Instrument.Key(),
		Target:     ev.Alert.Target.String(),
		Previous:   ev.Previous.String(),
		Price:      ev.Price.String(),
		Source:     string(ev.Source),
		Persistent: ev.Alert.Persistent,
		Sound:      ev.Alert.Notify.Sound,
		Flash:      ev.Alert.Notify.Flash,
		TsMS:       ev.At.UnixMilli(),
	}
}

// NotifyAlert appends the firing to the alert stream and publishes it.
func (r *Repo) NotifyAlert(ctx context.Context, ev domain.AlertFired) error {
	msg := newAlertMessage(ev)
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// 1) Stream: XADD <stream> * ...
	_, err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.alertStream,
		Values: map[string]any{
			"ts_ms":      msg.TsMS,
			"id":         msg.ID,
			"instrument": msg.Instrument,
			"target":     msg.Target,
			"price":      msg.Price,
			"source":     msg.Source,
			"payload":    string(payload),
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	return r.rdb.Publish(ctx, r.alertChan, payload).Err()
}

var (
	_ port.Notifier      = (*Repo)(nil)
	_ port.PriceRecorder = (*Repo)(nil)
)
