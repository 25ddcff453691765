// Package reports generates the periodic device summaries requested by
// report schedules.
package reports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cropwatch/internal/db"
	"cropwatch/internal/history"
	"cropwatch/internal/models"
	"cropwatch/internal/taskqueue"
)

type Store interface {
	ReportSchedule(ctx context.Context, id int64) (*models.ReportSchedule, error)
	InsertReportRun(ctx context.Context, run models.ReportRun) error
}

type HistorySource interface {
	FetchDeviceHistory(ctx context.Context, q history.Query) (models.Device, error)
}

type Generator struct {
	store   Store
	history HistorySource
	logger  *zap.Logger
	newID   func() string
	now     func() time.Time
}

func NewGenerator(store Store, hist HistorySource, logger *zap.Logger) *Generator {
	return &Generator{
		store:   store,
		history: hist,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Window returns the period covered by a report firing at end.
func Window(period models.ReportPeriod, end time.Time) (time.Time, time.Time) {
	if period == models.PeriodMonthly {
		return end.AddDate(0, -1, 0), end
	}
	return end.AddDate(0, 0, -7), end
}

// Generate builds and stores one report run. Inactive or deleted schedules
// are skipped.
func (g *Generator) Generate(ctx context.Context, p taskqueue.ReportPayload) error {
	sched, err := g.store.ReportSchedule(ctx, p.ScheduleID)
	if errors.Is(err, db.ErrNotFound) {
		g.logger.Info("report schedule gone, skipping", zap.Int64("schedule_id", p.ScheduleID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	if !sched.IsActive {
		g.logger.Info("report schedule inactive, skipping", zap.Int64("schedule_id", p.ScheduleID))
		return nil
	}

	end := p.FiredAt
	if end.IsZero() {
		end = g.now()
	}
	start, end := Window(p.Period, end.UTC())

	d, err := g.history.FetchDeviceHistory(ctx, history.Query{
		DevEUI: sched.DevEUI,
		Start:  &start,
		End:    &end,
		Limit:  history.MaxLimit,
	})
	if err != nil {
		return fmt.Errorf("generate report %s: %w", sched.ReportID, err)
	}

	run := models.ReportRun{
		ID:          g.newID(),
		ReportID:    sched.ReportID,
		ScheduleID:  sched.ID,
		Period:      p.Period,
		GeneratedAt: g.now().UTC(),
		Summary:     Summarize(sched.DevEUI, start, end, d.Data),
	}
	if err := g.store.InsertReportRun(ctx, run); err != nil {
		return fmt.Errorf("generate report %s: %w", sched.ReportID, err)
	}

	g.logger.Info("report generated",
		zap.String("report_id", sched.ReportID),
		zap.String("run_id", run.ID),
		zap.Int("samples", run.Summary.Count))
	return nil
}

type accumulator struct {
	n             int
	min, max, sum float64
}

func (a *accumulator) add(v *float64) {
	if v == nil {
		return
	}
	if a.n == 0 || *v < a.min {
		a.min = *v
	}
	if a.n == 0 || *v > a.max {
		a.max = *v
	}
	a.sum += *v
	a.n++
}

func (a *accumulator) result() *models.Aggregate {
	if a.n == 0 {
		return nil
	}
	return &models.Aggregate{Min: a.min, Max: a.max, Avg: a.sum / float64(a.n)}
}

// Summarize aggregates a history window. Missing values are ignored.
func Summarize(devEUI string, start, end time.Time, points []models.DeviceDataHistory) models.ReportSummary {
	var primary, secondary accumulator
	maxCO2 := math.Inf(-1)
	for _, p := range points {
		primary.add(p.Primary)
		secondary.add(p.Secondary)
		if p.CO2 != nil && *p.CO2 > maxCO2 {
			maxCO2 = *p.CO2
		}
	}

	s := models.ReportSummary{
		DevEUI:    devEUI,
		Start:     start,
		End:       end,
		Count:     len(points),
		Primary:   primary.result(),
		Secondary: secondary.result(),
	}
	if !math.IsInf(maxCO2, -1) {
		s.MaxCO2 = &maxCO2
	}
	return s
}
