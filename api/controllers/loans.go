package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/api/responses"
	"github.com/angelmondragon/library-backend/api/validators"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/pagination"
)

type borrowRequest struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

type collectRequest struct {
	Days int `json:"days" validate:"omitempty,gte=1"`
}

func loansUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "loans service unavailable"))
}

// RequestBorrow reserves a copy of the requested book for the caller.
func RequestBorrow(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req borrowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookID := uuid.MustParse(req.BookID)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithBookID(ctx, bookID.String())
		}
		loan, err := svc.RequestBorrow(ctx, principal, bookID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loans.FromModel(loan))
	}
}

// ListLoans lists the caller's loans. Admins may filter by userId.
func ListLoans(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := loans.ListFilter{}
		for _, raw := range validators.ParseQueryList(r, "status") {
			status, err := enums.ParseLoanStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
		if filter.BookID, err = validators.ParseQueryUUID(r, "bookId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.UserID, err = validators.ParseQueryUUID(r, "userId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListLoans(r.Context(), principal, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans.FromModels(rows))
	}
}

// GetMyBorrowingStatus summarises the caller's own copy-holding loans.
func GetMyBorrowingStatus(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.GetBorrowingStatus(r.Context(), principal.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// GetUserBorrowingStatus is the admin view of any member's status.
func GetUserBorrowingStatus(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		userID, err := validators.ParseUUIDParam(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := svc.GetBorrowingStatus(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

func ListPendingReservations(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListPendingReservations(r.Context(), principal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans.FromModels(rows))
	}
}

func GetLoan(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanAction(svc, logg, func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error) {
		loan, err := svc.GetLoan(r.Context(), principal, loanID)
		return http.StatusOK, loans.FromModel(loan), err
	})
}

// ConfirmCollection hands a reserved copy to the member. days defaults to the
// configured loan period.
func ConfirmCollection(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanAction(svc, logg, func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error) {
		var req collectRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			return 0, nil, err
		}
		loan, err := svc.ConfirmCollection(r.Context(), principal, loanID, req.Days)
		return http.StatusOK, loans.FromModel(loan), err
	})
}

func RequestReturn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanAction(svc, logg, func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error) {
		loan, err := svc.RequestReturn(r.Context(), principal, loanID)
		return http.StatusOK, loans.FromModel(loan), err
	})
}

func ConfirmReturn(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanAction(svc, logg, func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error) {
		result, err := svc.ConfirmReturn(r.Context(), principal, loanID)
		return http.StatusOK, loans.FromReturnResult(result), err
	})
}

func CancelReservation(svc loans.Service, logg *logger.Logger) http.HandlerFunc {
	return loanAction(svc, logg, func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error) {
		loan, err := svc.CancelReservation(r.Context(), principal, loanID)
		return http.StatusOK, loans.FromModel(loan), err
	})
}

type loanHandlerFunc func(r *http.Request, principal loans.Principal, loanID uuid.UUID) (int, any, error)

// loanAction resolves the caller and the {loanId} path parameter, then runs fn
// with the loan id attached to the request logger.
func loanAction(svc loans.Service, logg *logger.Logger, fn loanHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			loansUnavailable(w, r, logg)
			return
		}
		principal, err := principalFrom(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			r = r.WithContext(logg.WithLoanID(r.Context(), loanID.String()))
		}

		status, payload, err := fn(r, principal, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, payload)
	}
}
