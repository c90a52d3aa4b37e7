package hardware

import (
	"sync"

	"codeberg.org/mutker/soilctl/internal/errors"
	"codeberg.org/mutker/soilctl/internal/logger"
	"codeberg.org/mutker/soilctl/internal/watermark"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

var adcChannels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// periphBackend drives the lines through the host GPIO registry and reads
// the sensor divider from an ADS1115.
type periphBackend struct {
	cfg Config
	log logger.Logger

	lines map[watermark.Line]gpio.PinIO
	bus   i2c.BusCloser
	adc   *ads1x15.Dev
	pin   analog.PinADC

	initialized bool
	mu          sync.Mutex
}

func newPeriph(cfg Config, log logger.Logger) *periphBackend {
	return &periphBackend{cfg: cfg, log: log}
}

func (p *periphBackend) Name() string {
	return BackendPeriph
}

func (p *periphBackend) Initialize() error {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if err := p.cfg.validate(); err != nil {
		return err
	}

	state, err := host.Init()
	if err != nil {
		return errFactory.Wrap(ErrInitFailed, err)
	}
	p.log.Debug().Int("drivers", len(state.Loaded)).Msg("Host drivers loaded")

	p.lines = make(map[watermark.Line]gpio.PinIO, len(watermark.Lines()))
	for line, name := range p.cfg.lineNames() {
		pin := gpioreg.ByName(name)
		if pin == nil {
			return errFactory.WithData(ErrPinNotFound, name)
		}
		p.lines[line] = pin
		p.log.Debug().Str("line", line.String()).Str("pin", pin.Name()).Msg("Resolved control line")
	}

	if p.bus, err = i2creg.Open(p.cfg.I2CBus); err != nil {
		return errFactory.Wrap(ErrBusOpen, err)
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = p.cfg.I2CAddress
	if p.adc, err = ads1x15.NewADS1115(p.bus, &opts); err != nil {
		p.bus.Close()
		return errFactory.Wrap(ErrADCNotFound, err)
	}

	maxVoltage := physic.ElectricPotential(p.cfg.SupplyVoltage * float64(physic.Volt))
	p.pin, err = p.adc.PinForChannel(adcChannels[p.cfg.ADCChannel], maxVoltage, 860*physic.Hertz, ads1x15.BestQuality)
	if err != nil {
		p.bus.Close()
		return errFactory.Wrap(ErrADCNotFound, err)
	}

	p.initialized = true
	p.log.Info().
		Str("bus", p.bus.String()).
		Int("channel", p.cfg.ADCChannel).
		Msg("Sensor array hardware initialized")

	return nil
}

func (p *periphBackend) Shutdown() error {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false

	var first error
	if err := p.pin.Halt(); err != nil {
		first = err
	}
	if err := p.adc.Halt(); err != nil && first == nil {
		first = err
	}
	if err := p.bus.Close(); err != nil && first == nil {
		first = err
	}
	if first != nil {
		return errFactory.Wrap(ErrShutdownFailed, first)
	}

	return nil
}

func (p *periphBackend) Write(line watermark.Line, level watermark.Level) error {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return errFactory.New(ErrNotInitialized)
	}

	pin, ok := p.lines[line]
	if !ok {
		return errFactory.WithData(ErrPinNotFound, line.String())
	}
	if err := pin.Out(gpio.Level(level)); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (p *periphBackend) ReadAnalog() (int, error) {
	errFactory := errors.New()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	sample, err := p.pin.Read()
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	volts := float64(sample.V) / float64(physic.Volt)
	return toCounts(volts, p.cfg.SupplyVoltage, p.cfg.FullScale), nil
}
