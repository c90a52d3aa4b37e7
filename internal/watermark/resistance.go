package watermark

import "math"

// singularityEpsilon is how close (in volts) a mean reading may get to either
// rail before the divider equations are considered unusable.
const singularityEpsilon = 0.001

// Sample is one channel's resolved resistance measurement.
type Sample struct {
	ResistanceA float64
	ResistanceB float64
	Resistance  float64
	Valid       bool
}

func invalidSample() Sample {
	nan := math.NaN()
	return Sample{ResistanceA: nan, ResistanceB: nan, Resistance: nan}
}

// Estimate turns the accumulated raw ADC sums of both excitation polarities
// into corrected resistance values.
//
// With polarity A the sensor sits above the reference resistor and the
// measured node is across the reference, so R = Rref*(Vs-V)/V. With polarity B
// the reference is on top, so R = Rref*V/(Vs-V). Each estimate is then
// shifted by its band offset and the two are averaged.
func (c Calibration) Estimate(sumA, sumB float64, repetitions int) Sample {
	if repetitions <= 0 {
		return invalidSample()
	}

	vA := c.meanVoltage(sumA, repetitions)
	vB := c.meanVoltage(sumB, repetitions)
	if c.nearRail(vA) || c.nearRail(vB) {
		return invalidSample()
	}

	rA := correct(c.ReferenceResistance*(c.SupplyVoltage-vA)/vA, c.BandsA)
	rB := correct(c.ReferenceResistance*vB/(c.SupplyVoltage-vB), c.BandsB)
	mean := (rA + rB) / 2

	if !finite(rA) || !finite(rB) || !finite(mean) {
		return invalidSample()
	}

	return Sample{
		ResistanceA: rA,
		ResistanceB: rB,
		Resistance:  mean,
		Valid:       true,
	}
}

func (c Calibration) meanVoltage(sum float64, repetitions int) float64 {
	return (sum / c.ADCFullScale) * c.SupplyVoltage / float64(repetitions)
}

func (c Calibration) nearRail(v float64) bool {
	return !finite(v) ||
		math.Abs(v) < singularityEpsilon ||
		math.Abs(c.SupplyVoltage-v) < singularityEpsilon
}

func correct(r float64, bands []Band) float64 {
	for _, b := range bands {
		if r < b.Below {
			return r + b.Offset
		}
	}
	return r
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
