package hardware

import (
	"sync"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
)

const (
	// Typical of a thermistor near 26°C and a moist tension sensor.
	defaultThermistorOhms = 10000
	defaultSensorOhms     = 5000

	// Series reference resistor of the divider being simulated.
	simulatedReferenceOhms = 10003
)

// Simulated models the sensor array as a resistive divider per channel. It
// is a complete backend for running the daemon without hardware.
type Simulated struct {
	cfg Config
	log logger.Logger

	levels      map[watermark.Line]watermark.Level
	resistances [watermark.MaxChannels]float64
	conversions int

	initialized bool
	mu          sync.Mutex
}

// Ensure Simulated implements Backend.
var _ Backend = (*Simulated)(nil)

func NewSimulated(cfg Config, log logger.Logger) *Simulated {
	if log == nil {
		log = logger.Default()
	}
	if cfg.SupplyVoltage <= 0 {
		cfg.SupplyVoltage = DefaultConfig().SupplyVoltage
	}
	if cfg.FullScale <= 0 {
		cfg.FullScale = DefaultConfig().FullScale
	}

	s := &Simulated{
		cfg:    cfg,
		log:    log,
		levels: make(map[watermark.Line]watermark.Level),
	}
	for ch := range s.resistances {
		if watermark.Channel(ch).IsTemperature() {
			s.resistances[ch] = defaultThermistorOhms
		} else {
			s.resistances[ch] = defaultSensorOhms
		}
	}
	for ch, ohms := range cfg.Resistances {
		if watermark.Channel(ch).Valid() {
			s.resistances[ch] = ohms
		}
	}

	return s
}

func (s *Simulated) Name() string {
	return BackendSimulated
}

func (s *Simulated) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.log.Info().Msg("Using simulated sensor array")

	return nil
}

func (s *Simulated) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = false
	return nil
}

// SetResistance changes the resistance a channel presents. Zero models a
// short and a very large value an open circuit.
func (s *Simulated) SetResistance(ch watermark.Channel, ohms float64) error {
	if !ch.Valid() {
		return errors.New().WithData(errors.ErrInvalidChannel, int(ch))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resistances[ch] = ohms
	return nil
}

// Level returns the last level written to line.
func (s *Simulated) Level(line watermark.Line) (watermark.Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level, ok := s.levels[line]
	return level, ok
}

// Conversions returns how many analog reads have been taken.
func (s *Simulated) Conversions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.conversions
}

func (s *Simulated) Write(line watermark.Line, level watermark.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New().New(ErrNotInitialized)
	}

	s.levels[line] = level
	return nil
}

func (s *Simulated) ReadAnalog() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return 0, errors.New().New(ErrNotInitialized)
	}
	s.conversions++

	// Mux enable is active low; a disabled mux leaves the input floating low.
	if s.levels[watermark.LineMuxEnable] != watermark.Low {
		return 0, nil
	}

	r := s.resistances[s.selected()]
	supply := s.cfg.SupplyVoltage

	var volts float64
	switch a, b := s.levels[watermark.LineExciteA], s.levels[watermark.LineExciteB]; {
	case a == watermark.High && b == watermark.Low:
		// Sensor on the high side, reference resistor to ground.
		volts = supply * simulatedReferenceOhms / (r + simulatedReferenceOhms)
	case b == watermark.High && a == watermark.Low:
		volts = supply * r / (r + simulatedReferenceOhms)
	default:
		return 0, nil
	}

	return toCounts(volts, supply, s.cfg.FullScale), nil
}

func (s *Simulated) selected() watermark.Channel {
	var ch watermark.Channel
	for i, line := range []watermark.Line{watermark.LineSelect1, watermark.LineSelect2, watermark.LineSelect3} {
		if s.levels[line] == watermark.High {
			ch |= 1 << i
		}
	}
	return ch
}
