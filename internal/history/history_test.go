package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cropwatch/internal/db"
	"cropwatch/internal/history"
	"cropwatch/internal/models"
	"cropwatch/internal/telemetry"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type historyCall struct {
	table      string
	start, end time.Time
	limit      int
}

type fakeStore struct {
	devices map[string]models.DeviceRow
	rows    []map[string]any
	calls   []historyCall
}

func (f *fakeStore) DeviceByEUI(_ context.Context, devEUI string) (models.DeviceRow, error) {
	r, ok := f.devices[devEUI]
	if !ok {
		return models.DeviceRow{}, fmt.Errorf("get device %s: %w", devEUI, db.ErrNotFound)
	}
	return r, nil
}

func (f *fakeStore) HistoryRows(_ context.Context, table, _ string, start, end time.Time, limit int) ([]map[string]any, error) {
	f.calls = append(f.calls, historyCall{table: table, start: start, end: end, limit: limit})
	return f.rows, nil
}

type fakeResolver struct{ dt *models.DeviceType }

func (f fakeResolver) DeviceType(context.Context, int64) (*models.DeviceType, error) {
	return f.dt, nil
}
func (f fakeResolver) Location(context.Context, int64) (*models.LocationRow, error) { return nil, nil }

func newService(store *fakeStore, dt *models.DeviceType) *history.Service {
	n := &telemetry.Normalizer{Now: func() time.Time { return now }}
	return history.NewService(store, fakeResolver{dt: dt}, n, zap.NewNop())
}

func soilStore() *fakeStore {
	return &fakeStore{
		devices: map[string]models.DeviceRow{
			"S1": models.DeviceRowFromMap(map[string]any{"dev_eui": "S1", "type": 4, "primary_data": 68}),
		},
		rows: []map[string]any{
			{"created_at": now.Add(-2 * time.Hour), "temperature_f": 50.0, "moisture": 31.0, "battery": 90},
			{"created_at": now.Add(-time.Hour), "temperature_f": nil, "moisture": 30.0},
		},
	}
}

func soilType() *models.DeviceType {
	return &models.DeviceType{
		ID:            4,
		PrimaryData:   ptr("temperature_f"),
		SecondaryData: ptr("moisture"),
		DataTableV2:   ptr("cw_soil_data"),
	}
}

func TestFetchDeviceHistory(t *testing.T) {
	store := soilStore()
	d, err := newService(store, soilType()).FetchDeviceHistory(context.Background(), history.Query{DevEUI: "S1"})
	require.NoError(t, err)

	require.Len(t, store.calls, 1)
	call := store.calls[0]
	assert.Equal(t, "cw_soil_data", call.table)
	assert.Equal(t, now, call.end)
	assert.Equal(t, now.Add(-24*time.Hour), call.start)
	assert.Equal(t, history.DefaultLimit, call.limit)

	assert.InDelta(t, 20.0, d.TemperatureC, 1e-9)
	require.Len(t, d.Data, 2)
	require.NotNil(t, d.Data[0].Primary)
	assert.InDelta(t, 10.0, *d.Data[0].Primary, 1e-9)
	require.NotNil(t, d.Data[0].Battery)
	assert.InDelta(t, 90.0, *d.Data[0].Battery, 1e-9)
	assert.Nil(t, d.Data[1].Primary)
	require.NotNil(t, d.Data[1].Secondary)
	assert.InDelta(t, 30.0, *d.Data[1].Secondary, 1e-9)
}

func TestFetchDeviceHistory_DefaultTableAndClamp(t *testing.T) {
	store := soilStore()
	_, err := newService(store, nil).FetchDeviceHistory(context.Background(), history.Query{
		DevEUI: "S1", HoursBack: 2, Limit: 100_000,
	})
	require.NoError(t, err)

	call := store.calls[0]
	assert.Equal(t, models.DefaultHistoryTable, call.table)
	assert.Equal(t, history.MaxLimit, call.limit)
	assert.Equal(t, now.Add(-2*time.Hour), call.start)
}

func TestFetchDeviceHistory_Errors(t *testing.T) {
	svc := newService(soilStore(), soilType())

	_, err := svc.FetchDeviceHistory(context.Background(), history.Query{})
	assert.ErrorIs(t, err, history.ErrInvalidQuery)

	_, err = svc.FetchDeviceHistory(context.Background(), history.Query{DevEUI: "missing"})
	assert.ErrorIs(t, err, db.ErrNotFound)

	start := now
	end := now.Add(-time.Hour)
	_, err = svc.FetchDeviceHistory(context.Background(), history.Query{DevEUI: "S1", Start: &start, End: &end})
	assert.ErrorIs(t, err, history.ErrInvalidQuery)
}

func TestFetchMetricSeries(t *testing.T) {
	store := soilStore()
	svc := newService(store, soilType())

	s, err := svc.FetchMetricSeries(context.Background(), history.SeriesQuery{DevEUI: "S1", Metric: history.MetricTemperature})
	require.NoError(t, err)

	assert.Equal(t, now.Add(-history.DefaultSeriesSpan), store.calls[0].start)
	require.Equal(t, 1, s.Count)
	assert.InDelta(t, 10.0, s.Points[0].Value, 1e-9)
	assert.Equal(t, now.Add(-2*time.Hour).Format(time.RFC3339Nano), s.Points[0].Timestamp)
}

func TestFetchMetricSeries_CO2AndHumidityFallbacks(t *testing.T) {
	store := &fakeStore{
		devices: map[string]models.DeviceRow{"A": models.DeviceRowFromMap(map[string]any{"dev_eui": "A"})},
		rows: []map[string]any{
			{"created_at": now.Add(-time.Hour), "temperature_c": 21.0, "humidity": 44.0, "co2": 600},
			{"created_at": now, "temperature_c": 22.0, "humidity": nil, "co2": nil},
		},
	}
	svc := newService(store, nil)

	s, err := svc.FetchMetricSeries(context.Background(), history.SeriesQuery{DevEUI: "A", Metric: history.MetricCO2})
	require.NoError(t, err)
	require.Equal(t, 1, s.Count)
	assert.InDelta(t, 600.0, s.Points[0].Value, 1e-9)

	s, err = svc.FetchMetricSeries(context.Background(), history.SeriesQuery{DevEUI: "A", Metric: history.MetricHumidity})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)

	s, err = svc.FetchMetricSeries(context.Background(), history.SeriesQuery{DevEUI: "A"})
	require.NoError(t, err)
	assert.Equal(t, history.MetricTemperature, s.Metric)
	assert.Equal(t, 2, s.Count)
}

func TestParseMetric(t *testing.T) {
	_, err := history.ParseMetric("pressure")
	assert.ErrorIs(t, err, history.ErrInvalidQuery)

	m, err := history.ParseMetric("co2")
	require.NoError(t, err)
	assert.Equal(t, history.MetricCO2, m)
}
