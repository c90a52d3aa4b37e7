package hardware

import (
	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
)

// New returns the named backend, not yet initialized.
func New(name string, cfg Config, log logger.Logger) (Backend, error) {
	if log == nil {
		log = logger.Default()
	}

	switch name {
	case BackendPeriph:
		return newPeriph(cfg, log), nil
	case BackendSimulated, "":
		return NewSimulated(cfg, log), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidBackend, name)
	}
}

func (c Config) validate() error {
	errFactory := errors.New()

	for line, name := range c.lineNames() {
		if name == "" {
			return errFactory.WithData(ErrInvalidConfig, struct {
				Line string
			}{line.String()})
		}
	}
	if c.ADCChannel < 0 || c.ADCChannel > 3 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			ADCChannel int
		}{c.ADCChannel})
	}
	if c.SupplyVoltage <= 0 || c.FullScale <= 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			SupplyVoltage float64
			FullScale     float64
		}{c.SupplyVoltage, c.FullScale})
	}

	return nil
}

// toCounts maps a voltage onto the 0..fullScale range the calibration
// expects, whatever the resolution of the converter that produced it.
func toCounts(volts, supply, fullScale float64) int {
	counts := volts / supply * fullScale
	switch {
	case counts < 0:
		counts = 0
	case counts > fullScale:
		counts = fullScale
	}
	return int(counts + 0.5)
}
