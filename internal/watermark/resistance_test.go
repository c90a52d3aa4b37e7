package watermark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateMidpoint(t *testing.T) {
	cal := DefaultCalibration()

	// 3 x 512 counts of 1024 is half the supply on both polarities, so both
	// raw estimates equal the reference resistor.
	s := cal.Estimate(1536, 1536, 3)

	assert.True(t, s.Valid)
	assert.InDelta(t, 10003+964, s.ResistanceA, 1e-6)
	assert.InDelta(t, 10003-731, s.ResistanceB, 1e-6)
	assert.InDelta(t, (10967+9272)/2.0, s.Resistance, 1e-6)
}

func TestEstimateSingularity(t *testing.T) {
	cal := DefaultCalibration()

	tests := []struct {
		name       string
		sumA, sumB float64
		reps       int
	}{
		{"polarity a at zero", 0, 1536, 3},
		{"polarity b at zero", 1536, 0, 3},
		{"polarity a at supply", 3072, 1536, 3},
		{"polarity b at supply", 1536, 3072, 3},
		{"no repetitions", 1536, 1536, 0},
		{"nan sum", math.NaN(), 1536, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cal.Estimate(tt.sumA, tt.sumB, tt.reps)
			assert.False(t, s.Valid)
			assert.True(t, math.IsNaN(s.ResistanceA))
			assert.True(t, math.IsNaN(s.ResistanceB))
			assert.True(t, math.IsNaN(s.Resistance))
		})
	}
}

func TestEstimateNearRailEpsilon(t *testing.T) {
	cal := DefaultCalibration()
	cal.Repetitions = 1

	// One count is 3.2mV, comfortably outside the 1mV guard.
	assert.True(t, cal.Estimate(1, 1023, 1).Valid)

	// A quarter count is 0.8mV, inside it.
	assert.False(t, cal.Estimate(0.25, 1536, 1).Valid)
	assert.False(t, cal.Estimate(1536, 1024-0.25, 1).Valid)
}

func TestCorrectBands(t *testing.T) {
	a := DefaultBandsA()
	b := DefaultBandsB()

	tests := []struct {
		raw, wantA, wantB float64
	}{
		{1000, 1580, 723},
		{1400, 1997, 1123},
		{2339, 2936, 2062},
		{2400, 3048, 1988},
		{3300, 3980, 2888},
		{4250, 4990, 3740},
		{5000, 5740, 4371},
		{8999, 9739, 8268},
		{11450, 12414, 9980},
		{19999, 20963, 18529},
		{20000, 20000, 20000},
		{50000, 50000, 50000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.wantA, correct(tt.raw, a), "A at %v", tt.raw)
		assert.Equal(t, tt.wantB, correct(tt.raw, b), "B at %v", tt.raw)
	}
}

func TestCorrectAppliesExactlyOneBand(t *testing.T) {
	bands := DefaultBandsA()

	for r := 0.0; r < 25000; r += 50 {
		offset := correct(r, bands) - r

		var want float64
		for _, band := range bands {
			if r < band.Below {
				want = band.Offset
				break
			}
		}
		assert.Equal(t, want, offset, "resistance %v", r)
	}
}

func TestCalibrationValidate(t *testing.T) {
	assert.NoError(t, DefaultCalibration().Validate())

	mutations := map[string]func(*Calibration){
		"zero supply":         func(c *Calibration) { c.SupplyVoltage = 0 },
		"nan reference":       func(c *Calibration) { c.ReferenceResistance = math.NaN() },
		"no repetitions":      func(c *Calibration) { c.Repetitions = 0 },
		"zero full scale":     func(c *Calibration) { c.ADCFullScale = 0 },
		"negative settle":     func(c *Calibration) { c.Settle = -1 },
		"open below short":    func(c *Calibration) { c.OpenResistance = 100 },
		"unordered bands":     func(c *Calibration) { c.BandsA[1].Below = 100 },
		"negative excitation": func(c *Calibration) { c.ExcitationSettle = -1 },
	}
	for name, mutate := range mutations {
		cal := DefaultCalibration()
		mutate(&cal)
		assert.Error(t, cal.Validate(), name)
	}
}
