package watermark

import "math"

// Centibars converts a sensor resistance in ohms into soil water tension,
// compensated for soil temperature in degrees Celsius. Short and open
// circuits are reported as ShortCentibar and OpenCentibar.
func (c Calibration) Centibars(resistance, temperature float64) int {
	resK := resistance / 1000
	tempFactor := 1 + 0.018*(temperature-DefaultTemperature)
	cf := c.CalibrationFactor

	var cb float64
	switch {
	case resistance > 8000:
		cb = (-2.246 - 5.239*resK*tempFactor - 0.06756*resK*resK*tempFactor*tempFactor) * cf
	case resistance > 1000:
		cb = ((-3.213*resK - 4.093) / (1 - 0.009733*resK - 0.01205*temperature)) * cf
	case resistance > 550:
		cb = (resK*23.156 - 12.736) * tempFactor * cf
	case resistance > 300:
		cb = 0
	case resistance >= c.ShortResistance:
		cb = float64(c.ShortCentibar)
	default:
		cb = float64(c.OpenCentibar)
	}

	if resistance >= c.OpenResistance || resistance == 0 {
		cb = float64(c.OpenCentibar)
	}

	if !finite(cb) {
		return c.OpenCentibar
	}

	return int(math.Abs(math.Trunc(cb)))
}
