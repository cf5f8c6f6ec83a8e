package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

type fakeSweeper struct {
	report *bookings.SweepReport
	err    error
	calls  int
}

func (f *fakeSweeper) CompleteElapsed(ctx context.Context) (*bookings.SweepReport, error) {
	f.calls++
	return f.report, f.err
}

func TestCompletionSweepJobRun(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeper := &fakeSweeper{report: &bookings.SweepReport{Scanned: 3, Completed: 2, Skipped: 1}}
	job, err := NewCompletionSweepJob(CompletionSweepJobParams{Logger: logg, Bookings: sweeper})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if job.Name() != "booking-completion-sweep" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", sweeper.calls)
	}
}

func TestCompletionSweepJobPropagatesErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeper := &fakeSweeper{
		report: &bookings.SweepReport{Scanned: 2, Completed: 1, Failed: 1},
		err:    errors.New("one booking failed"),
	}
	job, err := NewCompletionSweepJob(CompletionSweepJobParams{Logger: logg, Bookings: sweeper})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected the partial failure to propagate")
	}
}

func TestNewCompletionSweepJobValidation(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewCompletionSweepJob(CompletionSweepJobParams{Logger: logg}); err == nil {
		t.Fatalf("expected error without booking service")
	}
	if _, err := NewCompletionSweepJob(CompletionSweepJobParams{Bookings: &fakeSweeper{}}); err == nil {
		t.Fatalf("expected error without logger")
	}
}
