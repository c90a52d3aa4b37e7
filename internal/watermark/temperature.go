package watermark

import "math"

const (
	// DefaultTemperature is reported when a resistance cannot be converted,
	// and seeds tension calculations at the start of every sweep.
	DefaultTemperature = 24.0

	maxTemperatureResistance = 30000
)

// Temperature converts a thermistor resistance in ohms to degrees Celsius.
func Temperature(resistance float64) float64 {
	if resistance <= 0 || resistance > maxTemperatureResistance {
		return DefaultTemperature
	}

	return -23.89*math.Log(resistance) + 246.0
}
