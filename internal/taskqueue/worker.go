package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"cropwatch/internal/models"
)

type AlertHandler func(ctx context.Context, d models.Device) error
type ReportHandler func(ctx context.Context, p ReportPayload) error

// Server runs the asynq workers.
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(opt asynq.RedisConnOpt, concurrency int, logger *zap.Logger) *Server {
	return &Server{
		srv: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
			}),
		}),
		mux:    asynq.NewServeMux(),
		logger: logger,
	}
}

// Mux exposes the handler registry, mainly for tests.
func (s *Server) Mux() *asynq.ServeMux { return s.mux }

func (s *Server) HandleAlerts(h AlertHandler) {
	s.mux.HandleFunc(TypeAlertEvaluate, func(ctx context.Context, t *asynq.Task) error {
		var p AlertPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("bad alert payload: %v: %w", err, asynq.SkipRetry)
		}
		s.logger.Debug("evaluating alerts", zap.String("dev_eui", p.Device.ID))
		return h(ctx, p.Device)
	})
}

func (s *Server) HandleReports(h ReportHandler) {
	s.mux.HandleFunc(TypeReportGenerate, func(ctx context.Context, t *asynq.Task) error {
		var p ReportPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("bad report payload: %v: %w", err, asynq.SkipRetry)
		}
		s.logger.Info("generating report", zap.Int64("schedule_id", p.ScheduleID), zap.String("period", string(p.Period)))
		return h(ctx, p)
	})
}

// Start runs the workers in the background.
func (s *Server) Start() error {
	s.logger.Info("starting task workers")
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.logger.Info("task workers stopped")
}
