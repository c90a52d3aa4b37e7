package main

import (
	"strconv"
	"sync"

	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
)

// fanout forwards every reading to each attached sink in order.
type fanout struct {
	mu    sync.RWMutex
	sinks []watermark.Sink
}

func (f *fanout) Attach(sink watermark.Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *fanout) Publish(r watermark.Reading) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Publish(r)
	}
}

// logSink reports readings through the logger, rounded to the output's
// accuracy.
type logSink struct {
	log logger.Logger
}

func (s logSink) Publish(r watermark.Reading) {
	if !r.Valid {
		s.log.Warn().
			Int("channel", int(r.Channel)).
			Str("output", r.Kind.String()).
			Msg("No data")
		return
	}

	s.log.Info().
		Int("channel", int(r.Channel)).
		Str("output", r.Kind.String()).
		Str("value", formatReading(r)).
		Msg("")
}

func formatReading(r watermark.Reading) string {
	return strconv.FormatFloat(r.Value, 'f', r.Kind.Decimals(), 64) + " " + r.Kind.Unit()
}
