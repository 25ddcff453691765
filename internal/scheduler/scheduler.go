package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"cropwatch/internal/models"
	"cropwatch/internal/taskqueue"
)

// Cron specs for the report periods. Weekly runs at the start of Monday and
// monthly at the start of the first day, both in UTC, each covering the
// period that just ended.
const (
	WeeklySpec  = "0 0 * * 1"
	MonthlySpec = "0 0 1 * *"
)

type Store interface {
	ActiveReportSchedules(ctx context.Context) ([]models.ReportSchedule, error)
}

type Enqueuer interface {
	EnqueueReport(ctx context.Context, p taskqueue.ReportPayload) error
}

// Scheduler turns report schedules into cron jobs that enqueue report tasks.
type Scheduler struct {
	cron      *cron.Cron
	store     Store
	queue     Enqueuer
	logger    *zap.Logger
	jobMap    map[string]cron.EntryID // "<schedule id>:<period>" to cron entry
	jobMapMux sync.RWMutex
	now       func() time.Time
}

func NewScheduler(store Store, queue Enqueuer, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		store:  store,
		queue:  queue,
		logger: logger,
		jobMap: make(map[string]cron.EntryID),
		now:    time.Now,
	}
}

// Start starts the scheduler. With a positive refresh interval schedules are
// reloaded from the store periodically so edits made elsewhere are picked up.
func (s *Scheduler) Start(refresh time.Duration) error {
	if refresh > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", refresh), func() {
			if err := s.ReloadSchedules(context.Background()); err != nil {
				s.logger.Warn("failed to refresh schedules", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("failed to add refresh job: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("cron scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopped")
}

func jobKey(scheduleID int64, p models.ReportPeriod) string {
	return fmt.Sprintf("%d:%s", scheduleID, p)
}

func periods(sch models.ReportSchedule) map[models.ReportPeriod]string {
	out := map[models.ReportPeriod]string{}
	if sch.EndOfWeek {
		out[models.PeriodWeekly] = WeeklySpec
	}
	if sch.EndOfMonth {
		out[models.PeriodMonthly] = MonthlySpec
	}
	return out
}

// LoadSchedules adds a cron job per active schedule and period.
func (s *Scheduler) LoadSchedules(ctx context.Context) error {
	schedules, err := s.store.ActiveReportSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	s.logger.Info("loading report schedules", zap.Int("count", len(schedules)))
	for _, sch := range schedules {
		if err := s.AddOrUpdateSchedule(sch); err != nil {
			s.logger.Warn("failed to schedule report", zap.Int64("schedule_id", sch.ID), zap.Error(err))
		}
	}
	return nil
}

// ReloadSchedules removes every report job and loads them again.
func (s *Scheduler) ReloadSchedules(ctx context.Context) error {
	s.jobMapMux.Lock()
	for key, entryID := range s.jobMap {
		s.cron.Remove(entryID)
		delete(s.jobMap, key)
	}
	s.jobMapMux.Unlock()

	return s.LoadSchedules(ctx)
}

// RemoveSchedule removes every job of a schedule.
func (s *Scheduler) RemoveSchedule(scheduleID int64) {
	s.jobMapMux.Lock()
	defer s.jobMapMux.Unlock()

	for _, p := range []models.ReportPeriod{models.PeriodWeekly, models.PeriodMonthly} {
		key := jobKey(scheduleID, p)
		if entryID, ok := s.jobMap[key]; ok {
			s.cron.Remove(entryID)
			delete(s.jobMap, key)
			s.logger.Debug("removed report job", zap.String("job", key))
		}
	}
}

// AddOrUpdateSchedule replaces the jobs of one schedule.
func (s *Scheduler) AddOrUpdateSchedule(sch models.ReportSchedule) error {
	s.RemoveSchedule(sch.ID)
	if !sch.IsActive {
		return nil
	}

	for period, spec := range periods(sch) {
		scheduleID := sch.ID
		entryID, err := s.cron.AddFunc(spec, func() {
			s.fire(scheduleID, period)
		})
		if err != nil {
			return fmt.Errorf("failed to add %s job for schedule %d: %w", period, sch.ID, err)
		}

		s.jobMapMux.Lock()
		s.jobMap[jobKey(sch.ID, period)] = entryID
		s.jobMapMux.Unlock()

		s.logger.Info("scheduled report",
			zap.Int64("schedule_id", sch.ID),
			zap.String("report_id", sch.ReportID),
			zap.String("period", string(period)),
			zap.String("cron", spec))
	}
	return nil
}

func (s *Scheduler) fire(scheduleID int64, period models.ReportPeriod) {
	p := taskqueue.ReportPayload{
		ScheduleID: scheduleID,
		Period:     period,
		FiredAt:    s.now().UTC().Truncate(time.Minute),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.queue.EnqueueReport(ctx, p); err != nil {
		s.logger.Error("failed to enqueue report", zap.Int64("schedule_id", scheduleID), zap.Error(err))
	}
}

// GetScheduledJobCount returns the number of report jobs.
func (s *Scheduler) GetScheduledJobCount() int {
	s.jobMapMux.RLock()
	defer s.jobMapMux.RUnlock()
	return len(s.jobMap)
}
