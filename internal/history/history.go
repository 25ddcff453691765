package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

const (
	DefaultLimit      = 1000
	MaxLimit          = 5000
	DefaultHoursBack  = 24
	DefaultSeriesSpan = 7 * 24 * time.Hour
)

// ErrInvalidQuery marks caller mistakes such as an inverted window.
var ErrInvalidQuery = errors.New("invalid history query")

type Store interface {
	DeviceByEUI(ctx context.Context, devEUI string) (models.DeviceRow, error)
	HistoryRows(ctx context.Context, table, devEUI string, start, end time.Time, limit int) ([]map[string]any, error)
}

// Query selects a history window. End defaults to now and Start to
// HoursBack hours before End.
type Query struct {
	DevEUI    string
	Start     *time.Time
	End       *time.Time
	HoursBack int
	Limit     int
}

type Service struct {
	store      Store
	resolver   realtime.Resolver
	normalizer *telemetry.Normalizer
	logger     *zap.Logger
}

func NewService(store Store, resolver realtime.Resolver, normalizer *telemetry.Normalizer, logger *zap.Logger) *Service {
	return &Service{store: store, resolver: resolver, normalizer: normalizer, logger: logger}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

func (s *Service) window(start, end *time.Time, span time.Duration) (time.Time, time.Time, error) {
	e := s.normalizer.Clock().UTC()
	if end != nil {
		e = end.UTC()
	}
	st := e.Add(-span)
	if start != nil {
		st = start.UTC()
	}
	if st.After(e) {
		return st, e, fmt.Errorf("%w: start %s is after end %s", ErrInvalidQuery, st.Format(time.RFC3339), e.Format(time.RFC3339))
	}
	return st, e, nil
}

// FetchDeviceHistory returns the canonical device with its samples for the
// window attached, oldest first.
func (s *Service) FetchDeviceHistory(ctx context.Context, q Query) (models.Device, error) {
	if q.DevEUI == "" {
		return models.Device{}, fmt.Errorf("%w: dev_eui is required", ErrInvalidQuery)
	}
	hours := q.HoursBack
	if hours <= 0 {
		hours = DefaultHoursBack
	}
	start, end, err := s.window(q.Start, q.End, time.Duration(hours)*time.Hour)
	if err != nil {
		return models.Device{}, err
	}

	row, err := s.store.DeviceByEUI(ctx, q.DevEUI)
	if err != nil {
		return models.Device{}, fmt.Errorf("fetch device history: %w", err)
	}
	dt, loc := realtime.ResolveReferences(ctx, s.resolver, row, s.logger)

	rows, err := s.store.HistoryRows(ctx, dt.HistoryTable(), q.DevEUI, start, end, clampLimit(q.Limit))
	if err != nil {
		return models.Device{}, fmt.Errorf("fetch device history: %w", err)
	}

	device := s.normalizer.Normalize(row, dt, loc)
	device.Data = make([]models.DeviceDataHistory, 0, len(rows))
	for _, r := range rows {
		device.Data = append(device.Data, telemetry.HistoryPoint(dt, r))
	}
	return device, nil
}
