package telemetry

import (
	"sort"
	"strings"

	"cropwatch/internal/models"
)

// Slot is one declared reading column of a row: its label and raw value.
type Slot struct {
	Label string
	Kind  Kind
	Value any
}

// LookupInput is everything a secondary lookup strategy may consult.
type LookupInput struct {
	Slots  []Slot
	Fields map[string]any
}

// Strategy tries to find a value; ok is false when it has nothing to offer.
type Strategy func(in LookupInput) (value float64, ok bool)

// Lookup evaluates strategies in order and returns the first hit.
func Lookup(in LookupInput, strategies ...Strategy) *float64 {
	for _, s := range strategies {
		if v, ok := s(in); ok {
			return &v
		}
	}
	return nil
}

// FromSlotCategory returns the first declared slot resolving to category c.
func FromSlotCategory(c Category) Strategy {
	return func(in LookupInput) (float64, bool) {
		for _, slot := range in.Slots {
			if slot.Kind.Category() != c {
				continue
			}
			if v, ok := models.AsFloat(slot.Value); ok {
				return NormalizeValue(slot.Kind, v), true
			}
		}
		return 0, false
	}
}

// FromLabelledField reads the row field named after a slot label whose kind
// matches c, for rows that store readings under their semantic name.
func FromLabelledField(c Category) Strategy {
	return func(in LookupInput) (float64, bool) {
		for _, slot := range in.Slots {
			if slot.Label == "" || slot.Kind.Category() != c {
				continue
			}
			if v, ok := models.AsFloat(in.Fields[slot.Label]); ok {
				return NormalizeValue(slot.Kind, v), true
			}
		}
		return 0, false
	}
}

// FromFieldContaining scans field names, in sorted order, for one containing
// substr (case-insensitive).
func FromFieldContaining(substr string) Strategy {
	substr = strings.ToLower(substr)
	return func(in LookupInput) (float64, bool) {
		keys := make([]string, 0, len(in.Fields))
		for k := range in.Fields {
			if strings.Contains(strings.ToLower(k), substr) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v, ok := models.AsFloat(in.Fields[k]); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// FromField reads exactly the named fields, first hit wins.
func FromField(names ...string) Strategy {
	return func(in LookupInput) (float64, bool) {
		for _, name := range names {
			if v, ok := models.AsFloat(in.Fields[name]); ok {
				return v, true
			}
		}
		return 0, false
	}
}

// CO2Strategies is the ordered CO2 resolution: a declared CO2 slot, then the
// field named by a CO2 label, then any field whose name contains "co2".
var CO2Strategies = []Strategy{
	FromSlotCategory(CategoryCO2),
	FromLabelledField(CategoryCO2),
	FromFieldContaining("co2"),
}

// BatteryStrategies resolves the battery level of a history row.
var BatteryStrategies = []Strategy{
	FromField("battery_level", "battery"),
}
