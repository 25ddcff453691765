package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"cropwatch/internal/models"
)

const (
	TypeAlertEvaluate  = "alerts:evaluate"
	TypeReportGenerate = "reports:generate"

	maxRetry    = 3
	taskTimeout = 10 * time.Second
)

// AlertPayload carries the canonical device as merged, so evaluation sees
// exactly the state that produced the task.
type AlertPayload struct {
	Device models.Device `json:"device"`
}

type ReportPayload struct {
	ScheduleID int64               `json:"schedule_id"`
	Period     models.ReportPeriod `json:"period"`
	// FiredAt is the scheduled time; the report window ends here.
	FiredAt time.Time `json:"fired_at"`
}

func NewAlertTask(d models.Device) (*asynq.Task, error) {
	payload, err := json.Marshal(AlertPayload{Device: d})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAlertEvaluate, payload, asynq.MaxRetry(maxRetry), asynq.Timeout(taskTimeout)), nil
}

func NewReportTask(p ReportPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// one run per schedule, period and firing time even if several instances fire
	id := fmt.Sprintf("report-%d-%s-%d", p.ScheduleID, p.Period, p.FiredAt.Unix())
	return asynq.NewTask(TypeReportGenerate, payload,
		asynq.MaxRetry(maxRetry), asynq.Timeout(taskTimeout), asynq.TaskID(id), asynq.Retention(24*time.Hour)), nil
}

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewClient(opt asynq.RedisConnOpt, logger *zap.Logger) *Client {
	return &Client{client: asynq.NewClient(opt), logger: logger}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueAlertEvaluation queues rule evaluation for a merged device.
func (c *Client) EnqueueAlertEvaluation(ctx context.Context, d models.Device) error {
	task, err := NewAlertTask(d)
	if err != nil {
		return fmt.Errorf("failed to build alert task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue alert evaluation for %s: %w", d.ID, err)
	}
	c.logger.Debug("enqueued alert evaluation", zap.String("dev_eui", d.ID), zap.String("task_id", info.ID))
	return nil
}

// EnqueueReport queues generation of a scheduled report. A duplicate of an
// already queued run is not an error.
func (c *Client) EnqueueReport(ctx context.Context, p ReportPayload) error {
	task, err := NewReportTask(p)
	if err != nil {
		return fmt.Errorf("failed to build report task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			c.logger.Debug("report run already queued", zap.Int64("schedule_id", p.ScheduleID))
			return nil
		}
		return fmt.Errorf("failed to enqueue report %d: %w", p.ScheduleID, err)
	}
	c.logger.Info("enqueued report", zap.Int64("schedule_id", p.ScheduleID),
		zap.String("period", string(p.Period)), zap.String("task_id", info.ID))
	return nil
}
