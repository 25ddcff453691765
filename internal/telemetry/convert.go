package telemetry

// ToCelsius converts a temperature in the given unit to Celsius.
func ToCelsius(unit Unit, v float64) float64 {
	switch unit {
	case Fahrenheit:
		return (v - 32) / 1.8
	case Kelvin:
		return v - 273.15
	}
	return v
}

// NormalizeTemperature converts v to Celsius using the unit implied by label.
func NormalizeTemperature(label string, v float64) float64 {
	return ToCelsius(Classify(label).Unit, v)
}

// NormalizeValue converts a reading of the given kind into canonical units.
// Only temperatures change; humidity and CO2 pass through.
func NormalizeValue(k Kind, v float64) float64 {
	if k.Category() == CategoryTemperature {
		return ToCelsius(k.Unit, v)
	}
	return v
}

// FromCelsius converts a Celsius temperature to the given unit.
func FromCelsius(unit Unit, c float64) float64 {
	switch unit {
	case Fahrenheit:
		return c*1.8 + 32
	case Kelvin:
		return c + 273.15
	}
	return c
}
