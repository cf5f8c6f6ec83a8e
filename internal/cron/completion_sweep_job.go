package cron

import (
	"context"
	"fmt"

	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

// completionSweeper is the slice of the booking service the sweep job needs.
type completionSweeper interface {
	CompleteElapsed(ctx context.Context) (*bookings.SweepReport, error)
}

// CompletionSweepJobParams configure the booking completion sweep.
type CompletionSweepJobParams struct {
	Logger   *logger.Logger
	Bookings completionSweeper
}

// NewCompletionSweepJob builds the cron job that completes approved bookings
// whose window has ended and returns their allocations to stock.
func NewCompletionSweepJob(params CompletionSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	return &completionSweepJob{
		logg:     params.Logger,
		bookings: params.Bookings,
	}, nil
}

type completionSweepJob struct {
	logg     *logger.Logger
	bookings completionSweeper
}

func (j *completionSweepJob) Name() string { return "booking-completion-sweep" }

func (j *completionSweepJob) Run(ctx context.Context) error {
	report, err := j.bookings.CompleteElapsed(ctx)
	if report != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"scanned":   report.Scanned,
			"completed": report.Completed,
			"skipped":   report.Skipped,
			"failed":    report.Failed,
		})
		j.logg.Info(logCtx, "completion sweep finished")
	}
	return err
}
