package hardware

import "codeberg.org/mutker/soilctl/internal/watermark"

// Backend is the control lines and analog input behind a sensor array.
type Backend interface {
	watermark.Pins

	// Lifecycle
	Initialize() error
	Shutdown() error

	Name() string
}

const (
	BackendPeriph    = "periph"
	BackendSimulated = "simulated"
)

// Config describes how the multiplexer and ADC are wired.
type Config struct {
	// GPIO names as known to gpioreg, e.g. "GPIO17".
	Select  [3]string
	Enable  string
	ExciteA string
	ExciteB string

	// ADS1115 on I2C. An empty bus name opens the first bus found.
	I2CBus     string
	I2CAddress uint16
	ADCChannel int

	SupplyVoltage float64
	FullScale     float64

	// Simulated sensor resistances in ohms, indexed by channel.
	Resistances map[int]float64
}

func DefaultConfig() Config {
	return Config{
		Select:        [3]string{"GPIO5", "GPIO6", "GPIO13"},
		Enable:        "GPIO19",
		ExciteA:       "GPIO20",
		ExciteB:       "GPIO21",
		I2CAddress:    0x48,
		SupplyVoltage: 3.3,
		FullScale:     1024,
	}
}

func (c Config) lineNames() map[watermark.Line]string {
	return map[watermark.Line]string{
		watermark.LineSelect1:   c.Select[0],
		watermark.LineSelect2:   c.Select[1],
		watermark.LineSelect3:   c.Select[2],
		watermark.LineMuxEnable: c.Enable,
		watermark.LineExciteA:   c.ExciteA,
		watermark.LineExciteB:   c.ExciteB,
	}
}
