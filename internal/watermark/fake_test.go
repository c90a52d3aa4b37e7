package watermark_test

import (
	"time"

	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
)

// fakePins records line levels and answers conversions from per-channel
// tables keyed by the active excitation line.
type fakePins struct {
	levels   map[watermark.Line]watermark.Level
	writes   int
	reads    []watermark.Channel
	rawA     map[watermark.Channel]int
	rawB     map[watermark.Channel]int
	readErr  error
	writeErr error
	muxOff   int
}

func newFakePins() *fakePins {
	return &fakePins{
		levels: map[watermark.Line]watermark.Level{},
		rawA:   map[watermark.Channel]int{},
		rawB:   map[watermark.Channel]int{},
	}
}

func (f *fakePins) Write(line watermark.Line, level watermark.Level) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	if line == watermark.LineMuxEnable && level == watermark.High {
		f.muxOff++
	}
	f.levels[line] = level
	return nil
}

func (f *fakePins) selected() watermark.Channel {
	var ch watermark.Channel
	for i, line := range []watermark.Line{watermark.LineSelect1, watermark.LineSelect2, watermark.LineSelect3} {
		if f.levels[line] == watermark.High {
			ch |= 1 << i
		}
	}
	return ch
}

func (f *fakePins) ReadAnalog() (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	ch := f.selected()
	f.reads = append(f.reads, ch)
	if f.levels[watermark.LineExciteA] == watermark.High {
		return f.rawA[ch], nil
	}
	return f.rawB[ch], nil
}

// setRaw makes every conversion on ch return a for polarity A and b for B.
func (f *fakePins) setRaw(ch watermark.Channel, a, b int) {
	f.rawA[ch] = a
	f.rawB[ch] = b
}

type recorder struct {
	readings []watermark.Reading
}

func (r *recorder) Publish(reading watermark.Reading) {
	r.readings = append(r.readings, reading)
}

func (r *recorder) byKind(kind watermark.Kind) []watermark.Reading {
	var out []watermark.Reading
	for _, reading := range r.readings {
		if reading.Kind == kind {
			out = append(out, reading)
		}
	}
	return out
}

type countingObserver struct {
	started, completed, rejected int
	invalid                      []watermark.Channel
	elapsed                      time.Duration
}

func (o *countingObserver) SweepStarted() { o.started++ }
func (o *countingObserver) SweepCompleted(d time.Duration) {
	o.completed++
	o.elapsed = d
}
func (o *countingObserver) UpdateRejected()                    { o.rejected++ }
func (o *countingObserver) SampleInvalid(ch watermark.Channel) { o.invalid = append(o.invalid, ch) }

func newSequencer(pins watermark.Pins, opts ...watermark.Option) (*watermark.Sequencer, error) {
	opts = append([]watermark.Option{
		watermark.WithLogger(logger.Nop()),
		watermark.WithDelay(func(time.Duration) {}),
	}, opts...)
	return watermark.New(pins, watermark.DefaultCalibration(), opts...)
}

func bindAll(s *watermark.Sequencer, ch watermark.Channel, sink watermark.Sink) error {
	if err := s.Activate(ch); err != nil {
		return err
	}
	for _, kind := range watermark.Kinds() {
		if err := s.Bind(ch, kind, sink); err != nil {
			return err
		}
	}
	return nil
}
