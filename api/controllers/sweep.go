package controllers

import (
	"context"
	"net/http"

	"github.com/openlabworks/labops-backend/api/responses"
	"github.com/openlabworks/labops-backend/internal/bookings"
	"github.com/openlabworks/labops-backend/pkg/logger"
)

type completionSweeper interface {
	CompleteElapsed(ctx context.Context) (*bookings.SweepReport, error)
}

// RunSweep triggers the booking completion sweep on demand. The cron worker
// runs the same sweep on a schedule; this endpoint exists for operators.
func RunSweep(svc completionSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.CompleteElapsed(r.Context())
		if err != nil {
			// Partial failures still carry a report; surface both.
			if report != nil {
				logg.Error(r.Context(), "manual sweep finished with failures", err)
				responses.WriteSuccess(w, report)
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
