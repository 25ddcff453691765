package db

import (
	"context"
	"fmt"

	"cropwatch/internal/models"
)

// DevicePageQuery selects a keyset page of devices ordered by dev_eui.
type DevicePageQuery struct {
	Limit      int
	From       *string
	LocationID *int64
}

// devicePageSQL starts at the cursor inclusively: a page cursor is the first
// row of the next page.
const devicePageSQL = `SELECT * FROM cw_devices
	WHERE ($1::text IS NULL OR dev_eui >= $1)
	  AND ($2::bigint IS NULL OR location_id = $2)
	ORDER BY dev_eui ASC
	LIMIT $3`

// DevicePage returns up to q.Limit device rows with dev_eui >= q.From.
func (d *DB) DevicePage(ctx context.Context, q DevicePageQuery) ([]models.DeviceRow, error) {
	var out []models.DeviceRow
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, devicePageSQL, q.From, q.LocationID, q.Limit)
		if err != nil {
			return err
		}
		maps, err := collectMaps(rows)
		if err != nil {
			return err
		}
		out = make([]models.DeviceRow, 0, len(maps))
		for _, m := range maps {
			out = append(out, models.DeviceRowFromMap(m))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query device page: %w", err)
	}
	return out, nil
}

// DeviceByEUI fetches one device row.
func (d *DB) DeviceByEUI(ctx context.Context, devEUI string) (models.DeviceRow, error) {
	var row models.DeviceRow
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, "SELECT * FROM cw_devices WHERE dev_eui = $1", devEUI)
		if err != nil {
			return err
		}
		maps, err := collectMaps(rows)
		if err != nil {
			return err
		}
		if len(maps) == 0 {
			return ErrNotFound
		}
		row = models.DeviceRowFromMap(maps[0])
		return nil
	})
	if err != nil {
		return row, fmt.Errorf("failed to get device %s: %w", devEUI, err)
	}
	return row, nil
}

// DeviceType fetches one cw_device_type row. Reference rows are cached and
// shared between callers, so they are read without the request scope.
func (d *DB) DeviceType(ctx context.Context, id int64) (*models.DeviceType, error) {
	var t models.DeviceType
	err := d.run(Unscoped(ctx), func(db querier) error {
		return notFound(db.QueryRow(ctx, `SELECT id, name, primary_data, secondary_data,
				primary_data_v2, secondary_data_v2, default_upload_interval, data_table_v2
			FROM cw_device_type WHERE id = $1`, id).
			Scan(&t.ID, &t.Name, &t.PrimaryData, &t.SecondaryData,
				&t.PrimaryDataV2, &t.SecondaryDataV2, &t.DefaultUploadInterval, &t.DataTableV2))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get device type %d: %w", id, err)
	}
	return &t, nil
}

// Location fetches one cw_locations row, read without the request scope
// like DeviceType.
func (d *DB) Location(ctx context.Context, id int64) (*models.LocationRow, error) {
	var l models.LocationRow
	err := d.run(Unscoped(ctx), func(db querier) error {
		return notFound(db.QueryRow(ctx, `SELECT location_id, name, lat, long, owner_id::text
			FROM cw_locations WHERE location_id = $1`, id).
			Scan(&l.LocationID, &l.Name, &l.Lat, &l.Long, &l.OwnerID))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get location %d: %w", id, err)
	}
	return &l, nil
}

// DeviceVisible reports whether the caller of ctx can see a device.
func (d *DB) DeviceVisible(ctx context.Context, devEUI string) (bool, error) {
	var visible bool
	err := d.run(ctx, func(db querier) error {
		return db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM cw_devices WHERE dev_eui = $1)", devEUI).Scan(&visible)
	})
	if err != nil {
		return false, fmt.Errorf("failed to check device %s: %w", devEUI, err)
	}
	return visible, nil
}
