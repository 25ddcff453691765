package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cropwatch/internal/telemetry"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		label    string
		category telemetry.Category
		unit     telemetry.Unit
	}{
		{"temperature_c", telemetry.CategoryTemperature, telemetry.Celsius},
		{"temperature_f", telemetry.CategoryTemperature, telemetry.Fahrenheit},
		{"temperature_k", telemetry.CategoryTemperature, telemetry.Kelvin},
		{"TEMPERATURE_F", telemetry.CategoryTemperature, telemetry.Fahrenheit},
		{"soil_tempf", telemetry.CategoryTemperature, telemetry.Fahrenheit},
		{"Humidity", telemetry.CategoryHumidity, telemetry.Celsius},
		{"co2_ppm", telemetry.CategoryCO2, telemetry.Celsius},
		{"CO2", telemetry.CategoryCO2, telemetry.Celsius},
		{"battery_level", telemetry.CategoryNone, telemetry.Celsius},
		{"", telemetry.CategoryNone, telemetry.Celsius},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			k := telemetry.Classify(tt.label)
			assert.Equal(t, tt.category, k.Category())
			assert.Equal(t, tt.unit, k.Unit)
		})
	}
}

func TestClassify_OverlapUsesPriority(t *testing.T) {
	k := telemetry.Classify("temp_humidity_co2")
	assert.True(t, k.IsTemperature)
	assert.True(t, k.IsHumidity)
	assert.True(t, k.IsCO2)
	assert.Equal(t, telemetry.CategoryTemperature, k.Category())

	k = telemetry.Classify("humidity_co2")
	assert.Equal(t, telemetry.CategoryHumidity, k.Category())
}

func TestClassifyPtr_Nil(t *testing.T) {
	assert.Equal(t, telemetry.CategoryNone, telemetry.ClassifyPtr(nil).Category())
}

func TestToCelsius(t *testing.T) {
	assert.InDelta(t, 0.0, telemetry.ToCelsius(telemetry.Fahrenheit, 32), 1e-9)
	assert.InDelta(t, 100.0, telemetry.ToCelsius(telemetry.Fahrenheit, 212), 1e-9)
	assert.InDelta(t, 0.0, telemetry.ToCelsius(telemetry.Kelvin, 273.15), 1e-9)
	assert.InDelta(t, 21.5, telemetry.ToCelsius(telemetry.Celsius, 21.5), 1e-9)
}

func TestToCelsius_RoundTrip(t *testing.T) {
	for _, c := range []float64{-40, -12.3, 0, 21.7, 37, 100} {
		f := c*1.8 + 32
		k := c + 273.15
		assert.InDelta(t, c, telemetry.NormalizeTemperature("temperature_f", f), 1e-9)
		assert.InDelta(t, c, telemetry.NormalizeTemperature("temperature_k", k), 1e-9)
		assert.InDelta(t, c, telemetry.NormalizeTemperature("temperature_c", c), 1e-9)
	}
}
