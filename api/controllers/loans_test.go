package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type testLoansService struct {
	loans.Service

	borrowFn  func(ctx context.Context, p loans.Principal, bookID uuid.UUID) (*models.Loan, error)
	collectFn func(ctx context.Context, p loans.Principal, loanID uuid.UUID, days int) (*models.Loan, error)
	listFn    func(ctx context.Context, p loans.Principal, f loans.ListFilter) ([]models.Loan, error)
	statusFn  func(ctx context.Context, userID uuid.UUID) (*loans.BorrowingStatus, error)
	sweepFn   func(ctx context.Context) (loans.SweepResult, error)
}

func (s *testLoansService) RequestBorrow(ctx context.Context, p loans.Principal, bookID uuid.UUID) (*models.Loan, error) {
	return s.borrowFn(ctx, p, bookID)
}

func (s *testLoansService) ConfirmCollection(ctx context.Context, p loans.Principal, loanID uuid.UUID, days int) (*models.Loan, error) {
	return s.collectFn(ctx, p, loanID, days)
}

func (s *testLoansService) ListLoans(ctx context.Context, p loans.Principal, f loans.ListFilter) ([]models.Loan, error) {
	return s.listFn(ctx, p, f)
}

func (s *testLoansService) GetBorrowingStatus(ctx context.Context, userID uuid.UUID) (*loans.BorrowingStatus, error) {
	return s.statusFn(ctx, userID)
}

func (s *testLoansService) RunMaintenanceSweep(ctx context.Context) (loans.SweepResult, error) {
	return s.sweepFn(ctx)
}

func TestRequestBorrowCreatesReservation(t *testing.T) {
	userID, bookID := uuid.New(), uuid.New()
	svc := &testLoansService{
		borrowFn: func(_ context.Context, p loans.Principal, id uuid.UUID) (*models.Loan, error) {
			assert.Equal(t, userID, p.UserID)
			assert.Equal(t, bookID, id)
			return &models.Loan{ID: uuid.New(), UserID: userID, BookID: id, Status: enums.LoanStatusReserved}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/loans", strings.NewReader(`{"book_id":"`+bookID.String()+`"}`))
	req = asUser(req, userID, enums.UserRoleUser)
	resp := httptest.NewRecorder()
	RequestBorrow(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var envelope struct {
		Data loans.LoanDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, enums.LoanStatusReserved, envelope.Data.Status)
}

func TestRequestBorrowValidatesBody(t *testing.T) {
	svc := &testLoansService{}
	req := httptest.NewRequest(http.MethodPost, "/api/loans", strings.NewReader(`{}`))
	req = asUser(req, uuid.New(), enums.UserRoleUser)
	resp := httptest.NewRecorder()
	RequestBorrow(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRequestBorrowMapsBusinessErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeForbidden: http.StatusForbidden,
		pkgerrors.CodeConflict:  http.StatusConflict,
		pkgerrors.CodeNotFound:  http.StatusNotFound,
	}
	for code, want := range cases {
		svc := &testLoansService{
			borrowFn: func(context.Context, loans.Principal, uuid.UUID) (*models.Loan, error) {
				return nil, pkgerrors.New(code, "rejected")
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/api/loans", strings.NewReader(`{"book_id":"`+uuid.NewString()+`"}`))
		req = asUser(req, uuid.New(), enums.UserRoleUser)
		resp := httptest.NewRecorder()
		RequestBorrow(svc, testLogger())(resp, req)
		assert.Equal(t, want, resp.Code, code)
	}
}

func TestConfirmCollectionPassesDays(t *testing.T) {
	loanID := uuid.New()
	var gotDays int
	svc := &testLoansService{
		collectFn: func(_ context.Context, _ loans.Principal, id uuid.UUID, days int) (*models.Loan, error) {
			assert.Equal(t, loanID, id)
			gotDays = days
			return &models.Loan{ID: id, Status: enums.LoanStatusBorrowed}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/loans/"+loanID.String()+"/collect", strings.NewReader(`{"days":7}`))
	req = asUser(req, uuid.New(), enums.UserRoleAdmin)
	req = addRouteParam(req, "loanId", loanID.String())
	resp := httptest.NewRecorder()
	ConfirmCollection(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 7, gotDays)
}

func TestConfirmCollectionWithoutBodyUsesDefault(t *testing.T) {
	gotDays := -1
	svc := &testLoansService{
		collectFn: func(_ context.Context, _ loans.Principal, id uuid.UUID, days int) (*models.Loan, error) {
			gotDays = days
			return &models.Loan{ID: id, Status: enums.LoanStatusBorrowed}, nil
		},
	}
	loanID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/loans/"+loanID+"/collect", nil)
	req = asUser(req, uuid.New(), enums.UserRoleAdmin)
	req = addRouteParam(req, "loanId", loanID)
	resp := httptest.NewRecorder()
	ConfirmCollection(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, gotDays)
}

func TestListLoansParsesFilters(t *testing.T) {
	bookID := uuid.New()
	var got loans.ListFilter
	svc := &testLoansService{
		listFn: func(_ context.Context, _ loans.Principal, f loans.ListFilter) ([]models.Loan, error) {
			got = f
			return nil, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/loans?status=reserved,overdue&bookId="+bookID.String()+"&limit=10", nil)
	req = asUser(req, uuid.New(), enums.UserRoleUser)
	resp := httptest.NewRecorder()
	ListLoans(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []enums.LoanStatus{enums.LoanStatusReserved, enums.LoanStatusOverdue}, got.Statuses)
	require.NotNil(t, got.BookID)
	assert.Equal(t, bookID, *got.BookID)
	assert.Nil(t, got.UserID)
	assert.Equal(t, 10, got.Limit)
	assert.Contains(t, resp.Body.String(), `"data":[]`)
}

func TestListLoansRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/loans?status=lost", nil)
	req = asUser(req, uuid.New(), enums.UserRoleUser)
	resp := httptest.NewRecorder()
	ListLoans(&testLoansService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGetMyBorrowingStatusUsesCaller(t *testing.T) {
	userID := uuid.New()
	svc := &testLoansService{
		statusFn: func(_ context.Context, id uuid.UUID) (*loans.BorrowingStatus, error) {
			return &loans.BorrowingStatus{UserID: id, MaxBooksAllowed: 3, BooksRemaining: 3, CanBorrowMore: true}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/loans/status", nil)
	req = asUser(req, userID, enums.UserRoleUser)
	resp := httptest.NewRecorder()
	GetMyBorrowingStatus(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data loans.BorrowingStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, userID, envelope.Data.UserID)
	assert.True(t, envelope.Data.CanBorrowMore)
}

func TestRunMaintenanceSweepReportsCounts(t *testing.T) {
	svc := &testLoansService{
		sweepFn: func(context.Context) (loans.SweepResult, error) {
			return loans.SweepResult{OverduePromoted: 2, ReservationsExpired: 1}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/admin/maintenance/sweep", nil)
	resp := httptest.NewRecorder()
	RunMaintenanceSweep(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"data":{"overdue_promoted":2,"reservations_expired":1}}`, resp.Body.String())
}

func TestLoanActionRejectsBadLoanID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/loans/nope/cancel", nil)
	req = asUser(req, uuid.New(), enums.UserRoleUser)
	req = addRouteParam(req, "loanId", "nope")
	resp := httptest.NewRecorder()
	CancelReservation(&testLoansService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
