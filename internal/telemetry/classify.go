package telemetry

import "strings"

// Unit is the temperature scale a raw reading was recorded in.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
	Kelvin     Unit = "K"
)

// Kind describes what a raw reading column measures. The flags are not
// mutually exclusive; use Category to resolve a single meaning.
type Kind struct {
	IsTemperature bool
	IsHumidity    bool
	IsCO2         bool
	Unit          Unit
}

// Category is the resolved meaning of a reading.
type Category int

const (
	CategoryNone Category = iota
	CategoryTemperature
	CategoryHumidity
	CategoryCO2
)

func (c Category) String() string {
	switch c {
	case CategoryTemperature:
		return "temperature"
	case CategoryHumidity:
		return "humidity"
	case CategoryCO2:
		return "co2"
	}
	return "none"
}

// Classify maps a device-type label such as "temperature_f" or "co2_ppm"
// onto a Kind using case-insensitive substring matching. Unrecognised labels
// yield the zero Kind with a Celsius unit.
func Classify(label string) Kind {
	l := strings.ToLower(label)

	k := Kind{
		IsTemperature: strings.Contains(l, "temp"),
		IsHumidity:    strings.Contains(l, "humid"),
		IsCO2:         strings.Contains(l, "co2"),
		Unit:          Celsius,
	}

	if k.IsTemperature {
		switch {
		case strings.Contains(l, "_f") || strings.HasSuffix(l, "f"):
			k.Unit = Fahrenheit
		case strings.Contains(l, "_k") || strings.HasSuffix(l, "k"):
			k.Unit = Kelvin
		}
	}

	return k
}

// ClassifyPtr classifies a nullable label; nil classifies as nothing.
func ClassifyPtr(label *string) Kind {
	if label == nil {
		return Kind{Unit: Celsius}
	}
	return Classify(*label)
}

// Category resolves overlapping flags with the fixed priority
// temperature > humidity > co2.
func (k Kind) Category() Category {
	switch {
	case k.IsTemperature:
		return CategoryTemperature
	case k.IsHumidity:
		return CategoryHumidity
	case k.IsCO2:
		return CategoryCO2
	}
	return CategoryNone
}
