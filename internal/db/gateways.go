package db

import (
	"context"
	"fmt"

	"cropwatch/internal/models"
)

// GatewaysByDevices returns the gateways that heard each of the devices.
func (d *DB) GatewaysByDevices(ctx context.Context, devEUIs []string) (map[string][]models.GatewayLink, error) {
	out := map[string][]models.GatewayLink{}
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, `SELECT dev_eui, gateway_id::text, rssi::float8, snr::float8, last_update
			FROM cw_device_gateway WHERE dev_eui = ANY($1)`, devEUIs)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var devEUI string
			var g models.GatewayLink
			if err := rows.Scan(&devEUI, &g.GatewayID, &g.RSSI, &g.SNR, &g.LastUpdate); err != nil {
				return err
			}
			out[devEUI] = append(out[devEUI], g)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gateways: %w", err)
	}
	return out, nil
}
