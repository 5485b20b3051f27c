package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"pricewatch/internal/application/port"
	"pricewatch/internal/domain"
)

const notifyTimeout = 3 * time.Second

type ServiceDeps struct {
	Source   EventSource
	Sink     port.Sink
	Notifier port.Notifier
	Recorder port.PriceRecorder
}

// Service drains the supervisor's event streams into the console sink and
// the external notifiers. It returns once all three streams are closed.
type Service struct {
	deps ServiceDeps
	st   *State
	fmt  *Formatter
}

func NewService(deps ServiceDeps) *Service {
	if deps.Notifier == nil || deps.Recorder == nil {
		noop := NewNoopRepo()
		if deps.Notifier == nil {
			deps.Notifier = noop
		}
		if deps.Recorder == nil {
			deps.Recorder = noop
		}
	}
	return &Service{
		deps: deps,
		st:   NewState(),
		fmt:  NewFormatter(),
	}
}

func (s *Service) State() *State { return s.st }

func (s *Service) Run(ctx context.Context) error {
	if s.deps.Source == nil || s.deps.Sink == nil {
		return errors.New("monitor service: source and sink are required")
	}

	states := s.deps.Source.States()
	displays := s.deps.Source.Displays()
	alerts := s.deps.Source.Alerts()

	// initial live line
	s.redraw()

	for states != nil || displays != nil || alerts != nil {
		select {
		case ev, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			if s.st.ApplyConnection(ev) {
				s.redraw()
			}

		case u, ok := <-displays:
			if !ok {
				displays = nil
				continue
			}
			if s.st.ApplyDisplay(u) {
				s.redraw()
			}
			if u.Kind == DisplayPrice {
				s.record(ctx, u)
			}

		case ev, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			s.alert(ctx, ev)
		}
	}

	_ = s.deps.Sink.NewLine()
	return nil
}

func (s *Service) redraw() {
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st.Snapshot(), RenderLive))
}

func (s *Service) alert(ctx context.Context, ev domain.AlertFired) {
	_ = s.deps.Sink.WriteEvent(ev.At, s.fmt.RenderAlert(ev))
	if ev.Alert.Notify.Sound {
		_ = s.deps.Sink.Bell()
	}
	s.redraw()

	log.Info().
		Str("alert", ev.Alert.ID).
		Str("instrument", ev.Alert.Instrument.String()).
		Str("target", ev.Alert.Target.String()).
		Str("price", ev.Price.String()).
		Str("source", string(ev.Source)).
		Msg("alert fired")

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.deps.Notifier.NotifyAlert(nctx, ev); err != nil {
		log.Warn().Err(err).Str("alert", ev.Alert.ID).Msg("notify alert failed")
	}
}

func (s *Service) record(ctx context.Context, u DisplayUpdate) {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.deps.Recorder.UpsertLatestPrice(rctx, u.Instrument, u.Price, at.UnixMilli()); err != nil {
		log.Debug().Err(err).Str("instrument", u.Instrument.String()).Msg("record latest price failed")
	}
}
