package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"pricewatch/internal/application/port"
	"pricewatch/internal/application/service"
	"pricewatch/internal/domain"
)

const pollConcurrency = 4

// Options tunes the supervisor loops. Zero values take the defaults.
type Options struct {
	ThrottleInterval time.Duration
	PollInterval     time.Duration
	ChangeInterval   time.Duration
	ClosesInterval   time.Duration
	ClosesTimeframe  string
	ClosesCount      int
	EventBuffer      int
}

func (o *Options) applyDefaults() {
	if o.ThrottleInterval <= 0 {
		o.ThrottleInterval = 250 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 20 * time.Second
	}
	if o.ChangeInterval <= 0 {
		o.ChangeInterval = 60 * time.Second
	}
	if o.ClosesInterval <= 0 {
		o.ClosesInterval = 300 * time.Second
	}
	if o.ClosesTimeframe == "" {
		o.ClosesTimeframe = "1h"
	}
	if o.ClosesCount <= 0 {
		o.ClosesCount = 24
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
}

type SupervisorDeps struct {
	Feed      port.Feed
	Snapshots port.SnapshotFetcher
	// History, when set, supplies the last recorded price shown while a
	// session waits for its first snapshot or trade.
	History port.PriceHistory
	Engine  *service.AlertEngine
	Session *Session
	Options Options
}

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStreaming
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseStreaming:
		return "streaming"
	case PhaseClosed:
		return "closed"
	default:
		return "idle"
	}
}

// streamSession is everything tied to one active instrument: the feed and
// the two refresh loops. done closes once all of them have returned.
type streamSession struct {
	inst   domain.Instrument
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor decides which instrument is streamed, polls alert instruments
// that are not, and routes every observation to the AlertEngine and the
// throttled display stream.
type Supervisor struct {
	feed      port.Feed
	snapshots port.SnapshotFetcher
	history   port.PriceHistory
	engine    *service.AlertEngine
	session   *Session
	opts      Options
	throttle  *service.Throttle

	states   *eventQueue[StateEvent]
	displays *eventQueue[DisplayUpdate]
	alerts   *eventQueue[domain.AlertFired]

	mu         sync.Mutex
	phase      Phase
	rootCtx    context.Context
	rootCancel context.CancelFunc
	stream     *streamSession
	wg         sync.WaitGroup

	// pollMu orders poll results against stream restarts. streamGen grows
	// on every restart; a poll result from an older generation is dropped.
	pollMu    sync.Mutex
	streamed  domain.Instrument
	streamGen uint64

	closeOnce sync.Once
}

func NewSupervisor(deps SupervisorDeps) *Supervisor {
	opts := deps.Options
	opts.applyDefaults()

	session := deps.Session
	if session == nil {
		session = NewSession(nil, nil)
	}
	engine := deps.Engine
	if engine == nil {
		engine = service.NewAlertEngine(nil, nil)
	}

	return &Supervisor{
		feed:      deps.Feed,
		snapshots: deps.Snapshots,
		history:   deps.History,
		engine:    engine,
		session:   session,
		opts:      opts,
		throttle:  service.NewThrottle(opts.ThrottleInterval),
		states:    newEventQueue[StateEvent]("states", opts.EventBuffer),
		displays:  newEventQueue[DisplayUpdate]("displays", opts.EventBuffer),
		alerts:    newEventQueue[domain.AlertFired]("alerts", opts.EventBuffer),
	}
}

func (s *Supervisor) States() <-chan StateEvent { return s.states.out() }
func (s *Supervisor) Displays() <-chan DisplayUpdate { return s.displays.out() }
func (s *Supervisor) Alerts() <-chan domain.AlertFired { return s.alerts.out() }
func (s *Supervisor) Engine() *service.AlertEngine { return s.engine }
func (s *Supervisor) Session() *Session { return s.session }

// Phase returns the lifecycle phase.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Active returns the instrument currently streamed, zero when idle.
func (s *Supervisor) Active() domain.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return ""
	}
	return s.stream.inst
}

// Start launches the poll loop and streams inst (added to the list if
// needed). A zero inst streams the session's current selection.
func (s *Supervisor) Start(ctx context.Context, inst domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return ErrClosed
	}
	if !inst.IsZero() {
		s.session.Add(inst)
		s.session.Select(inst)
	}
	if s.rootCtx != nil {
		s.restartLocked()
		return nil
	}

	s.rootCtx, s.rootCancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pollLoop(s.rootCtx)
	}()

	s.restartLocked()
	return nil
}

// Switch moves the selection by step (wrapping) and restarts the stream.
func (s *Supervisor) Switch(step int) (domain.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return "", ErrClosed
	}
	inst, ok := s.session.Step(step)
	if !ok {
		return "", ErrNoInstruments
	}
	s.restartLocked()
	return inst, nil
}

// SwitchTo selects inst, which must already be tracked.
func (s *Supervisor) SwitchTo(inst domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return ErrClosed
	}
	if !s.session.Select(inst) {
		return ErrUnknownInstrument
	}
	s.restartLocked()
	return nil
}

// AddInstrument tracks inst without streaming it.
func (s *Supervisor) AddInstrument(inst domain.Instrument) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return false, ErrClosed
	}
	return s.session.Add(inst), nil
}

// RemoveInstrument stops tracking inst. Removing the streamed instrument
// restarts the stream on the fallback selection, or goes idle.
func (s *Supervisor) RemoveInstrument(inst domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosed {
		return ErrClosed
	}
	removed, wasActive := s.session.Remove(inst)
	if !removed {
		return ErrUnknownInstrument
	}
	if wasActive {
		s.restartLocked()
	}
	return nil
}

// Shutdown stops every loop, waits for them and closes the event streams.
func (s *Supervisor) Shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosed
		s.stopStreamLocked()
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.mu.Unlock()

		s.wg.Wait()

		s.states.close()
		s.displays.close()
		s.alerts.close()

		log.Info().
			Int64("dropped_states", s.states.dropped.Load()).
			Int64("dropped_displays", s.displays.dropped.Load()).
			Int64("dropped_alerts", s.alerts.dropped.Load()).
			Msg("supervisor stopped")
	})
}

// restartLocked tears down the current stream session, waits for it to
// finish and starts one for the current selection. It is a no-op before
// Start, which picks up the selection itself.
func (s *Supervisor) restartLocked() {
	if s.rootCtx == nil {
		return
	}
	s.stopStreamLocked()

	inst, ok := s.session.Current()
	s.pollMu.Lock()
	s.streamGen++
	s.streamed = inst
	s.pollMu.Unlock()

	if !ok {
		s.phase = PhaseIdle
		s.states.push(StateEvent{State: domain.Disconnected, At: time.Now()})
		log.Info().Msg("no instruments tracked, idle")
		return
	}

	ctx, cancel := context.WithCancel(s.rootCtx)
	ss := &streamSession{inst: inst, cancel: cancel, done: make(chan struct{})}
	s.stream = ss
	s.phase = PhaseStreaming
	s.throttle.Reset()

	var g errgroup.Group
	g.Go(func() error {
		s.runFeed(ctx, inst)
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.opts.ChangeInterval, func(ctx context.Context) { s.refreshChange(ctx, inst) })
		return nil
	})
	g.Go(func() error {
		s.every(ctx, s.opts.ClosesInterval, func(ctx context.Context) { s.refreshCloses(ctx, inst) })
		return nil
	})
	go func() {
		_ = g.Wait()
		close(ss.done)
	}()

	log.Info().Str("instrument", inst.String()).Msg("stream session started")
}

// stopStreamLocked cancels the current session and blocks until its feed
// and refresh loops have returned. Those goroutines never take s.mu.
func (s *Supervisor) stopStreamLocked() {
	if s.stream == nil {
		return
	}
	s.stream.cancel()
	<-s.stream.done
	log.Info().Str("instrument", s.stream.inst.String()).Msg("stream session stopped")
	s.stream = nil
}

func (s *Supervisor) runFeed(ctx context.Context, inst domain.Instrument) {
	s.showLastKnown(ctx, inst)
	if s.snapshots != nil {
		if price, err := s.snapshots.FetchLastPrice(ctx, inst); err == nil {
			s.observe(ctx, domain.Observation{Instrument: inst, Price: price, At: time.Now(), Source: domain.SourceSnapshot}, true)
		} else if ctx.Err() == nil {
			log.Warn().Err(err).Str("instrument", inst.String()).Msg("initial snapshot failed")
		}
	}
	if s.feed == nil || ctx.Err() != nil {
		return
	}

	s.feed.Stream(ctx, inst,
		func(price decimal.Decimal) {
			s.observe(ctx, domain.Observation{Instrument: inst, Price: price, At: time.Now(), Source: domain.SourceStream}, true)
		},
		func(state domain.ConnectionState) {
			s.states.push(StateEvent{Instrument: inst, State: state, At: time.Now()})
		},
	)
}

// showLastKnown displays the recorded price of inst. It is display only: an
// old price must not move the alert baseline.
func (s *Supervisor) showLastKnown(ctx context.Context, inst domain.Instrument) {
	if s.history == nil {
		return
	}
	price, ts, err := s.history.LatestPrice(ctx, inst)
	if err != nil {
		log.Debug().Err(err).Str("instrument", inst.String()).Msg("no recorded price")
		return
	}
	s.displays.push(DisplayUpdate{Kind: DisplayPrice, Instrument: inst, Price: price, At: time.UnixMilli(ts)})
}

// observe feeds the AlertEngine unconditionally; the display only sees what
// passes the throttle.
func (s *Supervisor) observe(ctx context.Context, o domain.Observation, display bool) {
	for _, f := range s.engine.Observe(ctx, o) {
		s.alerts.push(f)
	}
	if display && s.throttle.Allow() {
		s.displays.push(DisplayUpdate{Kind: DisplayPrice, Instrument: o.Instrument, Price: o.Price, At: o.At})
	}
}

func (s *Supervisor) refreshChange(ctx context.Context, inst domain.Instrument) {
	if s.snapshots == nil {
		return
	}
	pct, err := s.snapshots.FetchChangePercent(ctx, inst)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Str("instrument", inst.String()).Msg("change refresh failed")
		}
		return
	}
	s.displays.push(DisplayUpdate{Kind: DisplayChange, Instrument: inst, ChangePercent: pct, At: time.Now()})
}

func (s *Supervisor) refreshCloses(ctx context.Context, inst domain.Instrument) {
	if s.snapshots == nil {
		return
	}
	closes, err := s.snapshots.FetchRecentCloses(ctx, inst, s.opts.ClosesTimeframe, s.opts.ClosesCount)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Str("instrument", inst.String()).Msg("closes refresh failed")
		}
		return
	}
	s.displays.push(DisplayUpdate{Kind: DisplayCloses, Instrument: inst, Closes: closes, At: time.Now()})
}

// pollLoop fetches the last price of every instrument that has enabled
// alerts but is not streamed. It lives as long as the root context.
func (s *Supervisor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Supervisor) pollOnce(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.pollMu.Lock()
	active, gen := s.streamed, s.streamGen
	s.pollMu.Unlock()

	candidates := s.engine.PollCandidates(active)
	if len(candidates) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pollConcurrency)
	for _, inst := range candidates {
		inst := inst
		g.Go(func() error {
			price, err := s.snapshots.FetchLastPrice(gctx, inst)
			if err != nil {
				if gctx.Err() == nil {
					log.Warn().Err(err).Str("instrument", inst.String()).Msg("poll failed")
				}
				return nil
			}
			s.applyPoll(gctx, gen, domain.Observation{Instrument: inst, Price: price, At: time.Now(), Source: domain.SourcePoll})
			return nil
		})
	}
	_ = g.Wait()
}

// applyPoll evaluates a poll result unless a stream restart happened while
// it was in flight. The instrument may be streamed now, and its newer stream
// prices must not be overwritten by an older poll price.
func (s *Supervisor) applyPoll(ctx context.Context, gen uint64, o domain.Observation) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if gen != s.streamGen || o.Instrument.Equal(s.streamed) {
		log.Debug().Str("instrument", o.Instrument.String()).Msg("stale poll result dropped")
		return
	}
	s.observe(ctx, o, false)
}

// every runs fn now and then on each tick until ctx is done.
func (s *Supervisor) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
