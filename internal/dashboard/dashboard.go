package dashboard

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cropwatch/internal/db"
	"cropwatch/internal/models"
	"cropwatch/internal/realtime"
	"cropwatch/internal/telemetry"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
	InitialPageLimit = 100
)

type Store interface {
	DevicePage(ctx context.Context, q db.DevicePageQuery) ([]models.DeviceRow, error)
}

type PageRequest struct {
	Limit      int
	Cursor     *string
	LocationID *int64
}

// Page is one keyset page of canonical devices with the locations and
// facilities they reference.
type Page struct {
	Devices    []models.Device   `json:"devices"`
	Locations  []models.Location `json:"locations"`
	Facilities []models.Facility `json:"facilities"`
	NextCursor *string           `json:"nextCursor"`
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
		return DefaultPageLimit
	case n > MaxPageLimit:
		return MaxPageLimit
	}
	return n
}

// FetchPage returns devices ordered by dev_eui starting at req.Cursor. One
// extra row is read to learn whether another page exists; its id becomes
// the next cursor.
func (s *Service) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	limit := clampLimit(req.Limit)

	rows, err := s.store.DevicePage(ctx, db.DevicePageQuery{
		Limit:      limit + 1,
		From:       req.Cursor,
		LocationID: req.LocationID,
	})
	if err != nil {
		return Page{}, fmt.Errorf("fetch page: %w", err)
	}

	page := Page{
		Devices:    make([]models.Device, 0, min(len(rows), limit)),
		Locations:  []models.Location{},
		Facilities: []models.Facility{},
	}
	if len(rows) > limit {
		next := rows[limit].DevEUI
		page.NextCursor = &next
		rows = rows[:limit]
	}

	seenLoc := map[string]struct{}{}
	seenFac := map[string]struct{}{}
	for _, row := range rows {
		dt, loc := realtime.ResolveReferences(ctx, s.resolver, row, s.logger)
		page.Devices = append(page.Devices, s.normalizer.Normalize(row, dt, loc))
		if loc == nil {
			continue
		}

		l := telemetry.MapLocation(*loc)
		if _, ok := seenLoc[l.ID]; !ok {
			seenLoc[l.ID] = struct{}{}
			page.Locations = append(page.Locations, l)
		}
		f := telemetry.MapFacility(*loc)
		if _, ok := seenFac[f.ID]; !ok {
			seenFac[f.ID] = struct{}{}
			page.Facilities = append(page.Facilities, f)
		}
	}
	return page, nil
}

// LoadInitialAppState is the first page a freshly loaded client sees.
func (s *Service) LoadInitialAppState(ctx context.Context, loggedIn bool) (models.AppState, error) {
	page, err := s.FetchPage(ctx, PageRequest{Limit: InitialPageLimit})
	if err != nil {
		return models.AppState{}, fmt.Errorf("load initial app state: %w", err)
	}
	return models.AppState{
		Facilities: page.Facilities,
		Locations:  page.Locations,
		Devices:    page.Devices,
		IsLoggedIn: loggedIn,
		NextCursor: page.NextCursor,
	}, nil
}
