package telemetry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cropwatch/internal/models"
	"cropwatch/internal/telemetry"
)

func ptr[T any](v T) *T { return &v }

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := 30 * time.Minute

	seen := now.Add(-10 * time.Minute).Format(time.RFC3339)
	assert.Equal(t, models.StatusOnline, telemetry.DeriveStatus(seen, interval, now))

	seen = now.Add(-40 * time.Minute).Format(time.RFC3339)
	assert.Equal(t, models.StatusOffline, telemetry.DeriveStatus(seen, interval, now))

	assert.Equal(t, models.StatusOffline, telemetry.DeriveStatus("", interval, now))
	assert.Equal(t, models.StatusOffline, telemetry.DeriveStatus("yesterday", interval, now))
}

func TestDeriveStatus_PostgresTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, models.StatusOnline,
		telemetry.DeriveStatus("2025-06-01 11:55:00.123456+00", 30*time.Minute, now))
}

func TestEffectiveInterval(t *testing.T) {
	assert.Equal(t, 15*time.Minute, telemetry.EffectiveInterval(ptr[int64](15), ptr[int64](60)))
	assert.Equal(t, 60*time.Minute, telemetry.EffectiveInterval(nil, ptr[int64](60)))
	assert.Equal(t, 30*time.Minute, telemetry.EffectiveInterval(nil, nil))
	// zero is a value, not a missing interval
	assert.Equal(t, time.Duration(0), telemetry.EffectiveInterval(ptr[int64](0), ptr[int64](60)))
}

func TestDeriveStatus_FallbackInterval(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	interval := telemetry.EffectiveInterval(nil, nil)

	assert.Equal(t, models.StatusOnline,
		telemetry.DeriveStatus(now.Add(-29*time.Minute).Format(time.RFC3339), interval, now))
	assert.Equal(t, models.StatusOffline,
		telemetry.DeriveStatus(now.Add(-31*time.Minute).Format(time.RFC3339), interval, now))
}
