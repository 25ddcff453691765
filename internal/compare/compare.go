// Package compare builds the side-by-side view of the newest reading of
// several devices.
package compare

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cropwatch/internal/db"
	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

const (
	StatusOnline  = "online"
	StatusWarning = "warning"
	StatusOffline = "offline"

	onlineWithin  = time.Hour
	warningWithin = 24 * time.Hour
)

type Store interface {
	DeviceByEUI(ctx context.Context, devEUI string) (models.DeviceRow, error)
	LatestRow(ctx context.Context, table, devEUI string) (map[string]any, error)
	GatewaysByDevices(ctx context.Context, devEUIs []string) (map[string][]models.GatewayLink, error)
}

type Service struct {
	store       Store
	resolver    realtime.Resolver
	normalizer  *telemetry.Normalizer
	logger      *zap.Logger
	concurrency int
}

func NewService(store Store, resolver realtime.Resolver, normalizer *telemetry.Normalizer, logger *zap.Logger) *Service {
	return &Service{store: store, resolver: resolver, normalizer: normalizer, logger: logger, concurrency: 8}
}

// Status bands the age of the newest reading.
func Status(lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return StatusOffline
	}
	switch age := now.Sub(*lastSeen); {
	case age < onlineWithin:
		return StatusOnline
	case age < warningWithin:
		return StatusWarning
	}
	return StatusOffline
}

// LatestReadings fetches the newest reading of each device concurrently.
// Devices that cannot be read are logged and left out; duplicates are
// collapsed and input order is kept.
func (s *Service) LatestReadings(ctx context.Context, devEUIs []string) ([]models.LatestReading, error) {
	ids := dedupe(devEUIs)
	results := make([]*models.LatestReading, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			r, err := s.latest(gctx, id)
			if err != nil {
				s.logger.Warn("skipping device in comparison", zap.String("dev_eui", id), zap.Error(err))
				return nil
			}
			results[i] = r
			return nil
		})
	}

	var gateways map[string][]models.GatewayLink
	g.Go(func() error {
		var err error
		if gateways, err = s.store.GatewaysByDevices(gctx, ids); err != nil {
			s.logger.Warn("failed to load gateways", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.LatestReading, 0, len(ids))
	for _, r := range results {
		if r == nil {
			continue
		}
		attachGateways(r, gateways[r.DevEUI])
		out = append(out, *r)
	}
	return out, nil
}

func (s *Service) latest(ctx context.Context, devEUI string) (*models.LatestReading, error) {
	row, err := s.store.DeviceByEUI(ctx, devEUI)
	if err != nil {
		return nil, err
	}
	dt, _ := realtime.ResolveReferences(ctx, s.resolver, row, s.logger)

	r := &models.LatestReading{DevEUI: row.DevEUI, Name: row.Name, Type: "Unknown"}
	if r.Name == "" {
		r.Name = row.DevEUI
	}
	if dt != nil && dt.Name != "" {
		r.Type = dt.Name
	}

	fields, err := s.store.LatestRow(ctx, dt.HistoryTable(), devEUI)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	var lastSeen *string
	if fields != nil {
		in := telemetry.HistoryInput(dt, fields)
		r.TemperatureC = valueOr(telemetry.Lookup(in,
			telemetry.FromSlotCategory(telemetry.CategoryTemperature), telemetry.FromField("temperature_c")))
		r.Humidity = valueOr(telemetry.Lookup(in,
			telemetry.FromSlotCategory(telemetry.CategoryHumidity), telemetry.FromField("humidity")))
		r.CO2 = valueOr(telemetry.Lookup(in, telemetry.CO2Strategies...))
		r.Battery = valueOr(telemetry.Lookup(in, telemetry.BatteryStrategies...))
		lastSeen = models.AsTimestamp(fields["created_at"])
	}
	if lastSeen == nil {
		lastSeen = row.LastDataUpdatedAt
	}
	if lastSeen != nil {
		if t, ok := telemetry.ParseTimestamp(*lastSeen); ok {
			r.LastSeen = &t
		}
	}
	r.Status = Status(r.LastSeen, s.normalizer.Clock())
	return r, nil
}

func attachGateways(r *models.LatestReading, gateways []models.GatewayLink) {
	r.Gateways = gateways
	if r.Gateways == nil {
		r.Gateways = []models.GatewayLink{}
	}
	r.GatewayCount = len(gateways)
	for _, g := range gateways {
		if g.RSSI == nil {
			continue
		}
		if r.StrongestSignal == nil || *g.RSSI > *r.StrongestSignal {
			v := *g.RSSI
			r.StrongestSignal = &v
		}
	}
}

func valueOr(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
