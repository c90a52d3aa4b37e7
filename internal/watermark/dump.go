package watermark

import (
	"codeberg.org/mutker/soilctl/internal/errors"
	"gopkg.in/yaml.v3"
)

type dumpOutput struct {
	Name     string `yaml:"name"`
	Unit     string `yaml:"unit"`
	Decimals int    `yaml:"accuracy_decimals"`
}

type dumpChannel struct {
	Index   int          `yaml:"index"`
	Sensor  string       `yaml:"sensor"`
	Outputs []dumpOutput `yaml:"outputs,omitempty"`
}

type dumpBand struct {
	Below  float64 `yaml:"below"`
	Offset float64 `yaml:"offset"`
}

type dumpCalibration struct {
	SupplyVoltage       float64    `yaml:"supply_voltage"`
	ReferenceResistance float64    `yaml:"reference_resistance"`
	Repetitions         int        `yaml:"repetitions"`
	ADCFullScale        float64    `yaml:"adc_full_scale"`
	Settle              string     `yaml:"settle"`
	ExcitationSettle    string     `yaml:"excitation_settle"`
	ShortResistance     float64    `yaml:"short_resistance"`
	OpenResistance      float64    `yaml:"open_resistance"`
	ShortCentibar       int        `yaml:"short_centibar"`
	OpenCentibar        int        `yaml:"open_centibar"`
	CalibrationFactor   float64    `yaml:"calibration_factor"`
	BandsA              []dumpBand `yaml:"bands_a"`
	BandsB              []dumpBand `yaml:"bands_b"`
}

type dumpDocument struct {
	Calibration dumpCalibration `yaml:"calibration"`
	Channels    []dumpChannel   `yaml:"channels"`
}

func dumpBands(bands []Band) []dumpBand {
	out := make([]dumpBand, len(bands))
	for i, b := range bands {
		out[i] = dumpBand{Below: b.Below, Offset: b.Offset}
	}
	return out
}

// Dump renders the calibration and channel layout as YAML for diagnostics.
func (s *Sequencer) Dump() (string, error) {
	c := s.cal
	doc := dumpDocument{
		Calibration: dumpCalibration{
			SupplyVoltage:       c.SupplyVoltage,
			ReferenceResistance: c.ReferenceResistance,
			Repetitions:         c.Repetitions,
			ADCFullScale:        c.ADCFullScale,
			Settle:              c.Settle.String(),
			ExcitationSettle:    c.ExcitationSettle.String(),
			ShortResistance:     c.ShortResistance,
			OpenResistance:      c.OpenResistance,
			ShortCentibar:       c.ShortCentibar,
			OpenCentibar:        c.OpenCentibar,
			CalibrationFactor:   c.CalibrationFactor,
			BandsA:              dumpBands(c.BandsA),
			BandsB:              dumpBands(c.BandsB),
		},
		Channels: []dumpChannel{},
	}

	for _, ch := range s.Active() {
		dc := dumpChannel{Index: int(ch), Sensor: "tension"}
		if ch.IsTemperature() {
			dc.Sensor = "temperature"
		}
		for _, kind := range Kinds() {
			if _, ok := s.channels[ch].sinks[kind]; ok {
				dc.Outputs = append(dc.Outputs, dumpOutput{
					Name:     kind.String(),
					Unit:     kind.Unit(),
					Decimals: kind.Decimals(),
				})
			}
		}
		doc.Channels = append(doc.Channels, dc)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", errors.New().Wrap(ErrDumpFailed, err)
	}

	return string(out), nil
}
