package db

import (
	"context"
	"fmt"
	"time"
)

// HistoryRows returns rows of a device history table between start and end,
// oldest first.
func (d *DB) HistoryRows(ctx context.Context, table, devEUI string, start, end time.Time, limit int) ([]map[string]any, error) {
	sql := fmt.Sprintf(`SELECT * FROM %s
		WHERE dev_eui = $1 AND created_at >= $2 AND created_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`, TableIdent(table))

	var out []map[string]any
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, sql, devEUI, start, end, limit)
		if err != nil {
			return err
		}
		out, err = collectMaps(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", devEUI, err)
	}
	return out, nil
}

// LatestRow returns the newest row of a device history table.
func (d *DB) LatestRow(ctx context.Context, table, devEUI string) (map[string]any, error) {
	sql := fmt.Sprintf(`SELECT * FROM %s WHERE dev_eui = $1
		ORDER BY created_at DESC LIMIT 1`, TableIdent(table))

	var out map[string]any
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, sql, devEUI)
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
		out = maps[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest row of %s: %w", devEUI, err)
	}
	return out, nil
}
