package cron

import (
	"context"
	"fmt"

	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type upcomingRunner interface {
	RunUpcomingCycle(ctx context.Context) (int, error)
}

type retryRunner interface {
	RunRetryCycle(ctx context.Context) (int, error)
}

// NotificationUpcomingJobParams configure the upcoming-turn push job.
type NotificationUpcomingJobParams struct {
	Logger    *logger.Logger
	Scheduler upcomingRunner
}

// NewNotificationUpcomingJob wraps the scheduler's milestone cycle as a
// periodic task.
func NewNotificationUpcomingJob(params NotificationUpcomingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("notification scheduler required")
	}
	return &notificationUpcomingJob{logg: params.Logger, scheduler: params.Scheduler}, nil
}

type notificationUpcomingJob struct {
	logg      *logger.Logger
	scheduler upcomingRunner
}

func (j *notificationUpcomingJob) Name() string { return "notification-upcoming" }

func (j *notificationUpcomingJob) Run(ctx context.Context) error {
	sent, err := j.scheduler.RunUpcomingCycle(ctx)
	if err != nil {
		return fmt.Errorf("upcoming cycle: %w", err)
	}
	if sent > 0 {
		logCtx := j.logg.WithField(ctx, "sent", sent)
		j.logg.Info(logCtx, "upcoming-turn notifications delivered")
	}
	return nil
}

// NotificationRetryJobParams configure the pending-message retry job.
type NotificationRetryJobParams struct {
	Logger    *logger.Logger
	Scheduler retryRunner
}

// NewNotificationRetryJob wraps the scheduler's retry cycle as a periodic
// task.
func NewNotificationRetryJob(params NotificationRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("notification scheduler required")
	}
	return &notificationRetryJob{logg: params.Logger, scheduler: params.Scheduler}, nil
}

type notificationRetryJob struct {
	logg      *logger.Logger
	scheduler retryRunner
}

func (j *notificationRetryJob) Name() string { return "notification-retry" }

func (j *notificationRetryJob) Run(ctx context.Context) error {
	delivered, err := j.scheduler.RunRetryCycle(ctx)
	if err != nil {
		return fmt.Errorf("retry cycle: %w", err)
	}
	if delivered > 0 {
		logCtx := j.logg.WithField(ctx, "delivered", delivered)
		j.logg.Info(logCtx, "pending notifications delivered")
	}
	return nil
}
