package scheduler

import (
	"context"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
)

// Sequencer is the cooperative state machine the loop drives.
type Sequencer interface {
	Update(now time.Time) error
	Advance(now time.Time) (time.Time, error)
}

// Loop triggers a sweep every interval and wakes the sequencer whenever its
// next step falls due. Everything runs on the goroutine that calls Run.
type Loop struct {
	seq      Sequencer
	interval time.Duration
	log      logger.Logger

	timer *time.Timer
	wake  <-chan time.Time
}

func New(seq Sequencer, interval time.Duration, log logger.Logger) (*Loop, error) {
	if interval <= 0 {
		return nil, errors.New().WithData(errors.ErrInvalidInterval, interval.String())
	}
	if log == nil {
		log = logger.Default()
	}

	return &Loop{seq: seq, interval: interval, log: log}, nil
}

// Run updates once immediately and then every interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.disarm()

	l.log.Debug().Dur("interval", l.interval).Msg("Starting measurement loop")
	l.trigger(time.Now())

	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Msg("Measurement loop stopped")
			return nil
		case now := <-ticker.C:
			l.trigger(now)
		case now := <-l.wake:
			l.advance(now)
		}
	}
}

func (l *Loop) trigger(now time.Time) {
	if err := l.seq.Update(now); err != nil {
		if errors.HasCode(err, watermark.ErrMeasurementInProgress) {
			// Already logged by the sequencer.
			return
		}
		l.logError(err, "Update failed")
	}
	l.advance(now)
}

func (l *Loop) advance(now time.Time) {
	next, err := l.seq.Advance(now)
	if err != nil {
		l.logError(err, "Sweep aborted")
	}
	l.arm(next)
}

func (l *Loop) arm(deadline time.Time) {
	l.disarm()
	if deadline.IsZero() {
		return
	}

	l.timer = time.NewTimer(time.Until(deadline))
	l.wake = l.timer.C
}

func (l *Loop) disarm() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.wake = nil
}

func (l *Loop) logError(err error, msg string) {
	if e, ok := err.(errors.Error); ok {
		l.log.ErrorWithCode(e).Msg(msg)
		return
	}
	l.log.Error().Err(err).Msg(msg)
}
