package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

type maintenanceSweeper interface {
	RunMaintenanceSweep(ctx context.Context) (loans.SweepResult, error)
}

// RunMaintenanceSweep triggers one sweep outside the scheduler.
func RunMaintenanceSweep(svc maintenanceSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		result, err := svc.RunMaintenanceSweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
