package cron

import (
	"context"
	"fmt"

	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type recoveryRunner interface {
	RunCycle(ctx context.Context) (int, error)
}

// RecoveryJobParams configure the dead-worker reclaim job.
type RecoveryJobParams struct {
	Logger  *logger.Logger
	Monitor recoveryRunner
}

// NewRecoveryJob wraps the recovery monitor as a periodic task.
func NewRecoveryJob(params RecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Monitor == nil {
		return nil, fmt.Errorf("recovery monitor required")
	}
	return &recoveryJob{logg: params.Logger, monitor: params.Monitor}, nil
}

type recoveryJob struct {
	logg    *logger.Logger
	monitor recoveryRunner
}

func (j *recoveryJob) Name() string { return "dead-worker-recovery" }

func (j *recoveryJob) Run(ctx context.Context) error {
	recovered, err := j.monitor.RunCycle(ctx)
	if recovered > 0 {
		logCtx := j.logg.WithField(ctx, "recovered", recovered)
		j.logg.Info(logCtx, "dead workers reclaimed")
	}
	if err != nil {
		return fmt.Errorf("recovery cycle: %w", err)
	}
	return nil
}
