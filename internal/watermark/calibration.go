package watermark

import (
	"math"
	"time"

	"codeberg.org/mutker/soilctl/internal/errors"
)

const (
	defaultSupplyVoltage       = 3.3
	defaultReferenceResistance = 10003
	defaultRepetitions         = 3
	defaultADCFullScale        = 1024
	defaultSettle              = 100 * time.Millisecond
	defaultExcitationSettle    = 90 * time.Microsecond
	defaultShortResistance     = 200
	defaultOpenResistance      = 35000
	defaultShortCentibar       = 240
	defaultOpenCentibar        = 255
	defaultCalibrationFactor   = 1.0
)

// Band applies Offset to any resistance below Below. Bands are checked in
// order and the first match wins; resistances above the last band are left
// uncorrected.
type Band struct {
	Below  float64
	Offset float64
}

// Calibration holds the constants shared by the estimator, the converters
// and the sequencer. It is read-only once a Sequencer has been built.
type Calibration struct {
	SupplyVoltage       float64
	ReferenceResistance float64
	Repetitions         int
	ADCFullScale        float64

	Settle           time.Duration
	ExcitationSettle time.Duration

	ShortResistance   float64
	OpenResistance    float64
	ShortCentibar     int
	OpenCentibar      int
	CalibrationFactor float64

	BandsA []Band
	BandsB []Band
}

// DefaultBandsA corrects the polarity A estimate.
func DefaultBandsA() []Band {
	return []Band{
		{Below: 1400, Offset: 580},
		{Below: 2340, Offset: 597},
		{Below: 3300, Offset: 648},
		{Below: 4250, Offset: 680},
		{Below: 9000, Offset: 740},
		{Below: 20000, Offset: 964},
	}
}

// DefaultBandsB corrects the polarity B estimate.
func DefaultBandsB() []Band {
	return []Band{
		{Below: 2400, Offset: -277},
		{Below: 3500, Offset: -412},
		{Below: 4600, Offset: -510},
		{Below: 5700, Offset: -629},
		{Below: 11450, Offset: -731},
		{Below: 20000, Offset: -1470},
	}
}

func DefaultCalibration() Calibration {
	return Calibration{
		SupplyVoltage:       defaultSupplyVoltage,
		ReferenceResistance: defaultReferenceResistance,
		Repetitions:         defaultRepetitions,
		ADCFullScale:        defaultADCFullScale,
		Settle:              defaultSettle,
		ExcitationSettle:    defaultExcitationSettle,
		ShortResistance:     defaultShortResistance,
		OpenResistance:      defaultOpenResistance,
		ShortCentibar:       defaultShortCentibar,
		OpenCentibar:        defaultOpenCentibar,
		CalibrationFactor:   defaultCalibrationFactor,
		BandsA:              DefaultBandsA(),
		BandsB:              DefaultBandsB(),
	}
}

func (c Calibration) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value any) error {
		return errFactory.WithData(ErrInvalidCalibration, struct {
			Field string
			Value any
		}{field, value})
	}

	switch {
	case !(c.SupplyVoltage > 0) || math.IsInf(c.SupplyVoltage, 0):
		return invalid("supply_voltage", c.SupplyVoltage)
	case !(c.ReferenceResistance > 0) || math.IsInf(c.ReferenceResistance, 0):
		return invalid("reference_resistance", c.ReferenceResistance)
	case c.Repetitions < 1:
		return invalid("repetitions", c.Repetitions)
	case !(c.ADCFullScale > 0):
		return invalid("adc_full_scale", c.ADCFullScale)
	case c.Settle < 0:
		return invalid("settle", c.Settle)
	case c.ExcitationSettle < 0:
		return invalid("excitation_settle", c.ExcitationSettle)
	case c.ShortResistance < 0 || c.OpenResistance <= c.ShortResistance:
		return invalid("open_resistance", c.OpenResistance)
	}

	for _, bands := range [][]Band{c.BandsA, c.BandsB} {
		for i := 1; i < len(bands); i++ {
			if bands[i].Below <= bands[i-1].Below {
				return invalid("bands", bands)
			}
		}
	}

	return nil
}
