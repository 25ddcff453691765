package db

import (
	"context"
	"encoding/json"
	"fmt"

	"cropwatch/internal/models"
)

const scheduleColumns = `s.report_user_schedule_id, s.report_id::text, COALESCE(r.name, ''),
	COALESCE(s.dev_eui, r.dev_eui, ''), COALESCE(s.is_active, false),
	COALESCE(s.end_of_week, false), COALESCE(s.end_of_month, false)`

// ActiveReportSchedules fetches every active report schedule.
func (d *DB) ActiveReportSchedules(ctx context.Context) ([]models.ReportSchedule, error) {
	var out []models.ReportSchedule
	err := d.run(ctx, func(db querier) error {
		rows, err := db.Query(ctx, `SELECT `+scheduleColumns+`
			FROM report_user_schedule s JOIN reports r ON r.report_id = s.report_id
			WHERE s.is_active`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s models.ReportSchedule
			if err := rows.Scan(&s.ID, &s.ReportID, &s.Name, &s.DevEUI, &s.IsActive, &s.EndOfWeek, &s.EndOfMonth); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get report schedules: %w", err)
	}
	return out, nil
}

// ReportSchedule fetches one report schedule by id.
func (d *DB) ReportSchedule(ctx context.Context, id int64) (*models.ReportSchedule, error) {
	var s models.ReportSchedule
	err := d.run(ctx, func(db querier) error {
		return notFound(db.QueryRow(ctx, `SELECT `+scheduleColumns+`
			FROM report_user_schedule s JOIN reports r ON r.report_id = s.report_id
			WHERE s.report_user_schedule_id = $1`, id).
			Scan(&s.ID, &s.ReportID, &s.Name, &s.DevEUI, &s.IsActive, &s.EndOfWeek, &s.EndOfMonth))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get report schedule %d: %w", id, err)
	}
	return &s, nil
}

// InsertReportRun stores a generated report.
func (d *DB) InsertReportRun(ctx context.Context, run models.ReportRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal report summary: %w", err)
	}
	err = d.run(ctx, func(db querier) error {
		_, err := db.Exec(ctx, `INSERT INTO report_runs
			(id, report_id, report_user_schedule_id, period, generated_at, summary)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			run.ID, run.ReportID, run.ScheduleID, string(run.Period), run.GeneratedAt, summary)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert report run %s: %w", run.ID, err)
	}
	return nil
}
