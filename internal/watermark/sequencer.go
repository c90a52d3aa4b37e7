package watermark

import (
	"math"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
)

// State is the sequencer's position within a sweep.
type State int

const (
	StateIdle State = iota
	StateEnableMuxAndSettle
	StateReadPolarityA
	StateReadPolarityB
	StateAwaitFinalSettle
	StateFinalize
)

var stateNames = [...]string{
	"idle",
	"enable_mux_and_settle",
	"read_polarity_a",
	"read_polarity_b",
	"await_final_settle",
	"finalize",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// cycle is everything a sweep needs to resume after a suspend point.
type cycle struct {
	channel         Channel
	repetition      int
	sumA            float64
	sumB            float64
	lastTemperature float64
	started         time.Time
}

// Sequencer measures every active channel once per sweep without ever
// waiting on the settle delays itself. The host starts a sweep with Update
// and then calls Advance whenever the deadline Advance last returned has
// passed.
//
// A Sequencer is not safe for concurrent use; drive it from one goroutine.
type Sequencer struct {
	hw       handle
	cal      Calibration
	log      logger.Logger
	observer Observer
	channels [MaxChannels]binding

	state    State
	deadline time.Time
	cycle    cycle
}

type Option func(*Sequencer)

func WithLogger(log logger.Logger) Option {
	return func(s *Sequencer) {
		s.log = log
	}
}

func WithObserver(o Observer) Option {
	return func(s *Sequencer) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithDelay replaces the in-place wait used for the excitation settle.
func WithDelay(delay func(time.Duration)) Option {
	return func(s *Sequencer) {
		s.hw.delay = delay
	}
}

// New builds a Sequencer that owns pins. The calibration is copied.
func New(pins Pins, cal Calibration, opts ...Option) (*Sequencer, error) {
	errFactory := errors.New()

	if pins == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "pins are required")
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	cal.BandsA = append([]Band(nil), cal.BandsA...)
	cal.BandsB = append([]Band(nil), cal.BandsB...)

	s := &Sequencer{
		hw:       handle{pins: pins, delay: time.Sleep},
		cal:      cal,
		log:      logger.Default(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Calibration returns the constants the sequencer was built with.
func (s *Sequencer) Calibration() Calibration {
	return s.cal
}

func (s *Sequencer) State() State {
	return s.state
}

// Busy reports whether a sweep is in progress.
func (s *Sequencer) Busy() bool {
	return s.state != StateIdle
}

// Setup drives every line to its resting level.
func (s *Sequencer) Setup() error {
	s.log.Debug().Msg("Setting up multiplexer and excitation lines")

	if err := s.hw.idle(); err != nil {
		return err
	}

	s.state = StateIdle
	return nil
}

// Shutdown abandons any sweep in progress and leaves the lines safe.
func (s *Sequencer) Shutdown() error {
	if s.state != StateIdle {
		s.log.Warn().
			Int("channel", int(s.cycle.channel)).
			Str("state", s.state.String()).
			Msg("Abandoning sweep in progress")
	}
	s.state = StateIdle

	if err := s.hw.safe(); err != nil {
		return errors.New().Wrap(errors.ErrSafeState, err)
	}
	return nil
}

// Update starts a sweep over the active channels. It runs every step that
// is due immediately and returns; the rest happens in Advance. While a sweep
// is in progress the request is refused with ErrMeasurementInProgress.
func (s *Sequencer) Update(now time.Time) error {
	if s.state != StateIdle {
		s.log.Warn().
			Int("channel", int(s.cycle.channel)).
			Str("state", s.state.String()).
			Msg("Measurement already in progress, skipping update")
		s.observer.UpdateRejected()

		return errors.New().WithData(ErrMeasurementInProgress, int(s.cycle.channel))
	}

	first, ok := s.nextActive(0)
	if !ok {
		s.log.Debug().Msg("No active channels, nothing to measure")
		return nil
	}

	s.log.Debug().Int("channel", int(first)).Msg("Starting sweep")

	s.cycle = cycle{
		channel:         first,
		lastTemperature: DefaultTemperature,
		started:         now,
	}
	s.enter(StateEnableMuxAndSettle, now)
	s.observer.SweepStarted()

	_, err := s.Advance(now)
	return err
}

// Advance runs every step whose deadline is at or before now. It returns the
// time the next step is due, or the zero time once the sweep is over.
//
// A hardware error aborts the sweep: the lines are forced safe and the error
// is returned.
func (s *Sequencer) Advance(now time.Time) (time.Time, error) {
	for s.state != StateIdle && !now.Before(s.deadline) {
		if err := s.step(now); err != nil {
			s.abort(err)
			return time.Time{}, err
		}
	}

	if s.state == StateIdle {
		return time.Time{}, nil
	}
	return s.deadline, nil
}

func (s *Sequencer) enter(state State, at time.Time) {
	s.state = state
	s.deadline = at
}

func (s *Sequencer) step(now time.Time) error {
	c := &s.cycle

	switch s.state {
	case StateEnableMuxAndSettle:
		if err := s.hw.selectChannel(AddressOf(c.channel)); err != nil {
			return err
		}
		s.enter(StateReadPolarityA, now.Add(s.cal.Settle))

	case StateReadPolarityA:
		raw, err := s.hw.excite(LineExciteA, LineExciteB, s.cal.ExcitationSettle)
		if err != nil {
			return err
		}
		c.sumA += float64(raw)
		s.enter(StateReadPolarityB, now.Add(s.cal.Settle))

	case StateReadPolarityB:
		raw, err := s.hw.excite(LineExciteB, LineExciteA, s.cal.ExcitationSettle)
		if err != nil {
			return err
		}
		c.sumB += float64(raw)
		if err := s.hw.disableMux(); err != nil {
			return err
		}

		c.repetition++
		if c.repetition < s.cal.Repetitions {
			s.enter(StateEnableMuxAndSettle, now)
		} else {
			s.enter(StateAwaitFinalSettle, now.Add(s.cal.Settle))
		}

	case StateAwaitFinalSettle:
		s.enter(StateFinalize, now)

	case StateFinalize:
		s.finalize(now)

		next, ok := s.nextActive(c.channel + 1)
		if !ok {
			return s.finish(now)
		}

		c.channel = next
		c.repetition = 0
		c.sumA, c.sumB = 0, 0
		s.enter(StateEnableMuxAndSettle, now)
	}

	return nil
}

// finalize resolves and publishes the current channel.
func (s *Sequencer) finalize(now time.Time) {
	c := &s.cycle
	b := &s.channels[c.channel]

	sample := s.cal.Estimate(c.sumA, c.sumB, c.repetition)

	reading := func(kind Kind, value float64) Reading {
		return Reading{
			Channel: c.channel,
			Kind:    kind,
			Value:   value,
			Valid:   sample.Valid && !math.IsNaN(value),
			Time:    now,
		}
	}

	b.publish(reading(KindResistanceA, sample.ResistanceA))
	b.publish(reading(KindResistanceB, sample.ResistanceB))
	b.publish(reading(KindResistance, sample.Resistance))

	if !sample.Valid {
		s.log.Debug().
			Str("error_code", string(ErrSingularity)).
			Int("channel", int(c.channel)).
			Float64("sum_a", c.sumA).
			Float64("sum_b", c.sumB).
			Msg("Reading too close to a supply rail, reporting no data")
		s.observer.SampleInvalid(c.channel)

		return
	}

	if c.channel.IsTemperature() {
		c.lastTemperature = Temperature(sample.Resistance)
		b.publish(reading(KindTemperature, c.lastTemperature))

		s.log.Debug().
			Int("channel", int(c.channel)).
			Float64("resistance", sample.Resistance).
			Float64("temperature", c.lastTemperature).
			Msg("Temperature channel measured")

		return
	}

	cb := s.cal.Centibars(sample.Resistance, c.lastTemperature)
	b.publish(reading(KindTension, float64(cb)))

	s.log.Debug().
		Int("channel", int(c.channel)).
		Float64("resistance", sample.Resistance).
		Float64("temperature", c.lastTemperature).
		Int("centibars", cb).
		Msg("Tension channel measured")
}

func (s *Sequencer) finish(now time.Time) error {
	s.state = StateIdle

	if err := s.hw.safe(); err != nil {
		return err
	}

	elapsed := now.Sub(s.cycle.started)
	s.observer.SweepCompleted(elapsed)
	s.log.Debug().Dur("elapsed", elapsed).Msg("Sweep complete")

	return nil
}

func (s *Sequencer) abort(cause error) {
	log := s.log.Error()
	if e, ok := cause.(errors.Error); ok {
		log = s.log.ErrorWithCode(e)
	}
	log.Int("channel", int(s.cycle.channel)).
		Str("state", s.state.String()).
		Msg("Hardware access failed, aborting sweep")

	s.state = StateIdle
	if err := s.hw.safe(); err != nil {
		s.log.Error().Err(err).Msg("Failed to drive lines to safe state")
	}
}
