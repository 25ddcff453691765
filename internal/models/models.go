package models

import "time"

// DeviceStatus is the presentation state of a device. Derivation only ever
// yields online or offline; alert and loading are set by the UI.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusAlert   DeviceStatus = "alert"
	StatusLoading DeviceStatus = "loading"
)

// Device is the canonical, unit-consistent device record. It is rebuilt on
// every fetch or merge and never persisted in this form.
type Device struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	LocationID   string              `json:"locationId"`
	FacilityID   string              `json:"facilityId"`
	TemperatureC float64             `json:"temperatureC"`
	Humidity     float64             `json:"humidity"`
	CO2          *float64            `json:"co2"`
	LastSeen     string              `json:"lastSeen"`
	Status       DeviceStatus        `json:"status"`
	HasAlert     bool                `json:"hasAlert"`
	Reported     Readings            `json:"reported"`
	Data         []DeviceDataHistory `json:"data,omitempty"`
}

// Readings marks which canonical readings a device actually reported.
// TemperatureC and Humidity read 0 when theirs is false.
type Readings struct {
	Temperature bool `json:"temperature"`
	Humidity    bool `json:"humidity"`
}

// DeviceDataHistory is one historical sample of a device.
type DeviceDataHistory struct {
	Timestamp string         `json:"timestamp"`
	Primary   *float64       `json:"primary"`
	Secondary *float64       `json:"secondary"`
	CO2       *float64       `json:"co2,omitempty"`
	Battery   *float64       `json:"battery,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

type Location struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	FacilityID string `json:"facilityId"`
}

type Facility struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// AppState is the first page of devices handed to a freshly loaded client.
type AppState struct {
	Facilities []Facility `json:"facilities"`
	Locations  []Location `json:"locations"`
	Devices    []Device   `json:"devices"`
	IsLoggedIn bool       `json:"isLoggedIn"`
	NextCursor *string    `json:"nextCursor"`
}

// DeviceRow is a cw_devices row as delivered by the store or a change event.
type DeviceRow struct {
	DevEUI            string
	Name              string
	TypeID            *int64
	LocationID        *int64
	UploadInterval    *int64
	PrimaryData       any
	SecondaryData     any
	LastDataUpdatedAt *string
	InstalledAt       *string
	// Fields holds every column of the row, keyed by column name.
	Fields map[string]any
}

// DeviceRowFromMap builds a DeviceRow from a column map, tolerating missing
// or oddly typed columns.
func DeviceRowFromMap(m map[string]any) DeviceRow {
	row := DeviceRow{Fields: m}
	if m == nil {
		return row
	}
	row.DevEUI, _ = AsString(m["dev_eui"])
	row.Name, _ = AsString(m["name"])
	row.TypeID = AsInt(m["type"])
	row.LocationID = AsInt(m["location_id"])
	row.UploadInterval = AsInt(m["upload_interval"])
	row.PrimaryData = m["primary_data"]
	row.SecondaryData = m["secondary_data"]
	row.LastDataUpdatedAt = AsTimestamp(m["last_data_updated_at"])
	row.InstalledAt = AsTimestamp(m["installed_at"])
	return row
}

// LocationRow is a cw_locations row.
type LocationRow struct {
	LocationID int64    `json:"location_id"`
	Name       *string  `json:"name"`
	Lat        *float64 `json:"lat"`
	Long       *float64 `json:"long"`
	OwnerID    *string  `json:"owner_id"`
}

// DeviceType is a cw_device_type row declaring what the two raw reading
// columns of a device measure.
type DeviceType struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	PrimaryData           *string `json:"primary_data"`
	SecondaryData         *string `json:"secondary_data"`
	PrimaryDataV2         *string `json:"primary_data_v2"`
	SecondaryDataV2       *string `json:"secondary_data_v2"`
	DefaultUploadInterval *int64  `json:"default_upload_interval"`
	DataTableV2           *string `json:"data_table_v2"`
}

// DefaultHistoryTable is used when a device type does not name its own table.
const DefaultHistoryTable = "cw_air_data"

// PrimaryKind returns the label of the primary reading, preferring the v2 field.
func (t *DeviceType) PrimaryKind() *string {
	if t == nil {
		return nil
	}
	return preferV2(t.PrimaryDataV2, t.PrimaryData)
}

// SecondaryKind returns the label of the secondary reading, preferring the v2 field.
func (t *DeviceType) SecondaryKind() *string {
	if t == nil {
		return nil
	}
	return preferV2(t.SecondaryDataV2, t.SecondaryData)
}

// HistoryTable returns the table holding this type's historical samples.
func (t *DeviceType) HistoryTable() string {
	if t == nil || t.DataTableV2 == nil || *t.DataTableV2 == "" {
		return DefaultHistoryTable
	}
	return *t.DataTableV2
}

func preferV2(v2, legacy *string) *string {
	if v2 != nil && *v2 != "" {
		return v2
	}
	if legacy != nil && *legacy != "" {
		return legacy
	}
	return nil
}

// Rule is an alert rule bound to one device.
type Rule struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	DevEUI        string          `json:"dev_eui"`
	IsTriggered   bool            `json:"is_triggered"`
	TriggerCount  int             `json:"trigger_count"`
	LastTriggered *time.Time      `json:"last_triggered"`
	Criteria      []RuleCriterion `json:"criteria"`
}

// RuleCriterion compares one canonical metric against a threshold.
type RuleCriterion struct {
	Subject      string   `json:"subject"`
	Operator     string   `json:"operator"`
	TriggerValue float64  `json:"trigger_value"`
	ResetValue   *float64 `json:"reset_value"`
}

// ReportSchedule is a report_user_schedule row joined with its report.
// A schedule fires at the end of each week, each month, or both.
type ReportSchedule struct {
	ID         int64  `json:"report_user_schedule_id"`
	ReportID   string `json:"report_id"`
	Name       string `json:"name"`
	DevEUI     string `json:"dev_eui"`
	IsActive   bool   `json:"is_active"`
	EndOfWeek  bool   `json:"end_of_week"`
	EndOfMonth bool   `json:"end_of_month"`
}

// ReportPeriod is the window a scheduled report covers.
type ReportPeriod string

const (
	PeriodWeekly  ReportPeriod = "weekly"
	PeriodMonthly ReportPeriod = "monthly"
)

// ReportRun is one generated report.
type ReportRun struct {
	ID          string        `json:"id"`
	ReportID    string        `json:"report_id"`
	ScheduleID  int64         `json:"report_user_schedule_id"`
	Period      ReportPeriod  `json:"period"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     ReportSummary `json:"summary"`
}

// ReportSummary aggregates a device history window.
type ReportSummary struct {
	DevEUI    string     `json:"dev_eui"`
	Start     time.Time  `json:"start"`
	End       time.Time  `json:"end"`
	Count     int        `json:"count"`
	Primary   *Aggregate `json:"primary,omitempty"`
	Secondary *Aggregate `json:"secondary,omitempty"`
	MaxCO2    *float64   `json:"max_co2,omitempty"`
}

type Aggregate struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// LatestReading is the newest stored sample of a device, used by the
// comparison view.
type LatestReading struct {
	DevEUI       string     `json:"devEui"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	TemperatureC float64    `json:"temperatureC"`
	Humidity     float64    `json:"humidity"`
	CO2          float64    `json:"co2"`
	Battery      float64    `json:"battery"`
	LastSeen     *time.Time `json:"lastSeen"`
	Status       string     `json:"status"`

	GatewayCount    int           `json:"gatewayCount"`
	StrongestSignal *float64      `json:"strongestSignal"`
	Gateways        []GatewayLink `json:"gateways"`
}

// GatewayLink is one cw_device_gateway row: a gateway that heard the device.
type GatewayLink struct {
	GatewayID  string     `json:"id"`
	RSSI       *float64   `json:"rssi"`
	SNR        *float64   `json:"snr"`
	LastUpdate *time.Time `json:"lastUpdate"`
}
