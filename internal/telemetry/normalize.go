package telemetry

import (
	"strconv"
	"time"

	"cropwatch/internal/models"
)

const (
	DefaultPrimaryKind   = "temperature_c"
	DefaultSecondaryKind = "humidity"
)

// Normalizer turns raw device rows into canonical Device records. Now is
// injected so status derivation is reproducible; nil means time.Now.
type Normalizer struct {
	Now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{Now: time.Now}
}

// Clock returns the normalizer's current time.
func (n *Normalizer) Clock() time.Time {
	if n == nil || n.Now == nil {
		return time.Now()
	}
	return n.Now()
}

// Slots returns the primary and secondary reading slots of a row. Labels
// fall back to temperature_c / humidity when the device type leaves them
// unset.
func Slots(dt *models.DeviceType, primary, secondary any) []Slot {
	pl := labelOr(dt.PrimaryKind(), DefaultPrimaryKind)
	sl := labelOr(dt.SecondaryKind(), DefaultSecondaryKind)
	return []Slot{
		{Label: pl, Kind: Classify(pl), Value: primary},
		{Label: sl, Kind: Classify(sl), Value: secondary},
	}
}

func labelOr(label *string, fallback string) string {
	if label == nil || *label == "" {
		return fallback
	}
	return *label
}

// Normalize builds the canonical record for row. It never fails: unresolved
// references and malformed values degrade to defaults.
func (n *Normalizer) Normalize(row models.DeviceRow, dt *models.DeviceType, loc *models.LocationRow) models.Device {
	in := LookupInput{
		Slots:  Slots(dt, row.PrimaryData, row.SecondaryData),
		Fields: row.Fields,
	}

	d := models.Device{
		ID:       row.DevEUI,
		Name:     row.Name,
		CO2:      Lookup(in, CO2Strategies...),
		LastSeen: LastSeen(row),
		HasAlert: false,
	}
	if v := Lookup(in, FromSlotCategory(CategoryTemperature)); v != nil {
		d.TemperatureC = *v
		d.Reported.Temperature = true
	}
	if v := Lookup(in, FromSlotCategory(CategoryHumidity)); v != nil {
		d.Humidity = *v
		d.Reported.Humidity = true
	}

	if loc != nil {
		d.LocationID = strconv.FormatInt(loc.LocationID, 10)
	} else {
		d.LocationID = UnknownLocationID
	}
	d.FacilityID = FacilityID(loc)

	var typeInterval *int64
	if dt != nil {
		typeInterval = dt.DefaultUploadInterval
	}
	d.Status = DeriveStatus(d.LastSeen, EffectiveInterval(row.UploadInterval, typeInterval), n.Clock())

	return d
}

// LastSeen is last_data_updated_at, then installed_at, then empty.
func LastSeen(row models.DeviceRow) string {
	switch {
	case row.LastDataUpdatedAt != nil:
		return *row.LastDataUpdatedAt
	case row.InstalledAt != nil:
		return *row.InstalledAt
	}
	return ""
}

// HistoryPoint maps one row of a device history table. The primary and
// secondary columns are read by their type labels and converted to canonical
// units.
func HistoryPoint(dt *models.DeviceType, fields map[string]any) models.DeviceDataHistory {
	in := HistoryInput(dt, fields)

	p := models.DeviceDataHistory{
		CO2:     Lookup(in, CO2Strategies...),
		Battery: Lookup(in, BatteryStrategies...),
		Raw:     fields,
	}
	if ts := models.AsTimestamp(fields["created_at"]); ts != nil {
		p.Timestamp = *ts
	}
	p.Primary = slotValue(in.Slots[0])
	p.Secondary = slotValue(in.Slots[1])
	return p
}

// HistoryInput builds lookup input for a history row, whose readings are
// stored in columns named after the type labels.
func HistoryInput(dt *models.DeviceType, fields map[string]any) LookupInput {
	slots := Slots(dt, nil, nil)
	for i := range slots {
		slots[i].Value = fields[slots[i].Label]
	}
	return LookupInput{Slots: slots, Fields: fields}
}

func slotValue(s Slot) *float64 {
	v, ok := models.AsFloat(s.Value)
	if !ok {
		return nil
	}
	v = NormalizeValue(s.Kind, v)
	return &v
}
