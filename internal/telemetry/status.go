package telemetry

import (
	"strings"
	"time"

	"cropwatch/internal/models"
)

// DefaultUploadInterval applies when neither the device nor its type declares one.
const DefaultUploadInterval = 30 * time.Minute

// EffectiveInterval picks the device interval, then the device-type default,
// then DefaultUploadInterval. Values are in minutes.
func EffectiveInterval(deviceMinutes, typeMinutes *int64) time.Duration {
	switch {
	case deviceMinutes != nil:
		return time.Duration(*deviceMinutes) * time.Minute
	case typeMinutes != nil:
		return time.Duration(*typeMinutes) * time.Minute
	}
	return DefaultUploadInterval
}

// DeriveStatus reports offline when lastSeen cannot be parsed or is older
// than the allowed interval at now.
func DeriveStatus(lastSeen string, interval time.Duration, now time.Time) models.DeviceStatus {
	seen, ok := ParseTimestamp(lastSeen)
	if !ok {
		return models.StatusOffline
	}
	if now.Sub(seen) > interval {
		return models.StatusOffline
	}
	return models.StatusOnline
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts ISO-8601 as well as the space-separated form Postgres
// emits. Timestamps without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
