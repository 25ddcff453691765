package history

import (
	"context"
	"fmt"
	"time"

	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
	MetricCO2         Metric = "co2"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricTemperature, MetricHumidity, MetricCO2:
		return m, nil
	case "":
		return MetricTemperature, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, s)
}

func (m Metric) strategies() []telemetry.Strategy {
	switch m {
	case MetricHumidity:
		return []telemetry.Strategy{
			telemetry.FromSlotCategory(telemetry.CategoryHumidity),
			telemetry.FromField("humidity"),
		}
	case MetricCO2:
		return telemetry.CO2Strategies
	}
	return []telemetry.Strategy{
		telemetry.FromSlotCategory(telemetry.CategoryTemperature),
		telemetry.FromField("temperature_c"),
	}
}

type SeriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type Series struct {
	DevEUI string        `json:"devEui"`
	Metric Metric        `json:"metric"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Points []SeriesPoint `json:"points"`
	Count  int           `json:"count"`
}

type SeriesQuery struct {
	DevEUI string
	Metric Metric
	Start  *time.Time
	End    *time.Time
	Limit  int
}

// FetchMetricSeries returns one canonical metric over a window (default the
// last seven days). Samples without a value are dropped.
func (s *Service) FetchMetricSeries(ctx context.Context, q SeriesQuery) (Series, error) {
	if q.DevEUI == "" {
		return Series{}, fmt.Errorf("%w: dev_eui is required", ErrInvalidQuery)
	}
	metric, err := ParseMetric(string(q.Metric))
	if err != nil {
		return Series{}, err
	}
	start, end, err := s.window(q.Start, q.End, DefaultSeriesSpan)
	if err != nil {
		return Series{}, err
	}

	row, err := s.store.DeviceByEUI(ctx, q.DevEUI)
	if err != nil {
		return Series{}, fmt.Errorf("fetch metric series: %w", err)
	}
	dt, _ := realtime.ResolveReferences(ctx, s.resolver, row, s.logger)

	rows, err := s.store.HistoryRows(ctx, dt.HistoryTable(), q.DevEUI, start, end, clampLimit(q.Limit))
	if err != nil {
		return Series{}, fmt.Errorf("fetch metric series: %w", err)
	}

	strategies := metric.strategies()
	out := Series{DevEUI: q.DevEUI, Metric: metric, Start: start, End: end, Points: []SeriesPoint{}}
	for _, r := range rows {
		v := telemetry.Lookup(telemetry.HistoryInput(dt, r), strategies...)
		if v == nil {
			continue
		}
		ts := models.AsTimestamp(r["created_at"])
		if ts == nil {
			continue
		}
		out.Points = append(out.Points, SeriesPoint{Timestamp: *ts, Value: *v})
	}
	out.Count = len(out.Points)
	return out, nil
}
