package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type loanSweeper interface {
	RunMaintenanceSweep(ctx context.Context) (loans.SweepResult, error)
}

type LoanMaintenanceJobParams struct {
	Logger  *logger.Logger
	Sweeper loanSweeper
}

// NewLoanMaintenanceJob wraps the loan sweep (overdue promotion and lapsed
// reservation reclamation) as a cron job.
func NewLoanMaintenanceJob(params LoanMaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("loan sweeper required")
	}
	return &loanMaintenanceJob{logg: params.Logger, sweeper: params.Sweeper}, nil
}

type loanMaintenanceJob struct {
	logg    *logger.Logger
	sweeper loanSweeper
}

func (j *loanMaintenanceJob) Name() string { return "loan-maintenance" }

func (j *loanMaintenanceJob) Run(ctx context.Context) error {
	result, err := j.sweeper.RunMaintenanceSweep(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue_promoted":     result.OverduePromoted,
		"reservations_expired": result.ReservationsExpired,
	})
	if err != nil {
		j.logg.Warn(logCtx, "loan maintenance completed partially")
		return fmt.Errorf("loan maintenance: %w", err)
	}
	j.logg.Info(logCtx, "loan maintenance complete")
	return nil
}
