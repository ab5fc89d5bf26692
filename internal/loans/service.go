package loans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 200
	pendingQueueLimit = 200
	defaultSweepBatch = 100

	liveReservationIndex = "loans_one_live_reservation"

	opRequestBorrow     = "request_borrow"
	opConfirmCollection = "confirm_collection"
	opRequestReturn     = "request_return"
	opConfirmReturn     = "confirm_return"
	opCancelReservation = "cancel_reservation"
	opMaintenanceSweep  = "maintenance_sweep"
	opExpireReservation = "expire_reservation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type membershipGate interface {
	Check(ctx context.Context, user *models.User) error
}

// Service is the loan lifecycle engine.
type Service interface {
	RequestBorrow(ctx context.Context, principal Principal, bookID uuid.UUID) (*models.Loan, error)
	ConfirmCollection(ctx context.Context, principal Principal, loanID uuid.UUID, days int) (*models.Loan, error)
	RequestReturn(ctx context.Context, principal Principal, loanID uuid.UUID) (*models.Loan, error)
	ConfirmReturn(ctx context.Context, principal Principal, loanID uuid.UUID) (*ReturnResult, error)
	CancelReservation(ctx context.Context, principal Principal, loanID uuid.UUID) (*models.Loan, error)
	GetBorrowingStatus(ctx context.Context, userID uuid.UUID) (*BorrowingStatus, error)
	ListLoans(ctx context.Context, principal Principal, filter ListFilter) ([]models.Loan, error)
	ListPendingReservations(ctx context.Context, principal Principal) ([]models.Loan, error)
	GetLoan(ctx context.Context, principal Principal, loanID uuid.UUID) (*models.Loan, error)
	RunMaintenanceSweep(ctx context.Context) (SweepResult, error)
}

// Deps wires the engine. Metrics and Logger are optional.
type Deps struct {
	Config    config.LendingConfig
	Repo      Repository
	Tx        txRunner
	Users     userFinder
	Gate      membershipGate
	Inventory books.Inventory
	Outbox    outbox.Emitter
	Metrics   *metrics.LoanMetrics
	Logger    *logger.Logger
}

type service struct {
	cfg       config.LendingConfig
	repo      Repository
	tx        txRunner
	users     userFinder
	gate      membershipGate
	inventory books.Inventory
	outbox    outbox.Emitter
	metrics   *metrics.LoanMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(deps Deps) (Service, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("loans repository required")
	}
	if deps.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user finder required")
	}
	if deps.Gate == nil {
		return nil, fmt.Errorf("membership gate required")
	}
	if deps.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if deps.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	cfg := deps.Config
	if cfg.BorrowLimit <= 0 {
		cfg.BorrowLimit = 3
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 24 * time.Hour
	}
	if cfg.DefaultLoanDays <= 0 {
		cfg.DefaultLoanDays = 14
	}
	if cfg.MaintenanceBatchSize <= 0 {
		cfg.MaintenanceBatchSize = defaultSweepBatch
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		cfg:       cfg,
		repo:      deps.Repo,
		tx:        deps.Tx,
		users:     deps.Users,
		gate:      deps.Gate,
		inventory: deps.Inventory,
		outbox:    deps.Outbox,
		metrics:   deps.Metrics,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) RequestBorrow(ctx context.Context, principal Principal, bookID uuid.UUID) (loan *models.Loan, err error) {
	defer func() { s.observe(opRequestBorrow, err) }()
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if bookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}

	user, err := s.users.FindByID(ctx, principal.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user not found", "load user")
	}
	if err := s.gate.Check(ctx, user); err != nil {
		return nil, err
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockUser(ctx, user.ID); err != nil {
			return notFoundOr(err, "user not found", "lock user")
		}
		if err := s.reclaimLapsed(ctx, tx, repo, user.ID, bookID, now); err != nil {
			return err
		}
		if err := s.checkEligibility(ctx, repo, user.ID, bookID, now); err != nil {
			return err
		}
		if err := s.inventory.Take(ctx, tx, bookID); err != nil {
			return err
		}
		book, err := repo.FindBook(ctx, bookID)
		if err != nil {
			return notFoundOr(err, "book not found", "load book")
		}

		expiry := now.Add(s.cfg.ReservationTTL)
		loan = &models.Loan{
			UserID:            user.ID,
			BookID:            bookID,
			Status:            enums.LoanStatusReserved,
			ReservationExpiry: &expiry,
		}
		if err := repo.Create(ctx, loan); err != nil {
			if isLiveReservationViolation(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "an active reservation for this book already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create loan")
		}
		loan.Book = book
		loan.User = user

		s.emit(ctx, tx, enums.EventReservationCreated, &principal, loanEvent(loan, book, user))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) ConfirmCollection(ctx context.Context, principal Principal, loanID uuid.UUID, days int) (loan *models.Loan, err error) {
	defer func() { s.observe(opConfirmCollection, err) }()
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can confirm collection")
	}
	if days <= 0 {
		days = s.cfg.DefaultLoanDays
	}
	if s.cfg.MaxLoanDays > 0 && days > s.cfg.MaxLoanDays {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "loan period cannot exceed %d days", s.cfg.MaxLoanDays)
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadLoan(ctx, repo, loanID)
		if err != nil {
			return err
		}
		if current.Status != enums.LoanStatusReserved {
			return statusConflict(current, "loan is not awaiting collection")
		}
		if current.ReservationExpiredAt(now) {
			return pkgerrors.New(pkgerrors.CodeGone, "reservation has expired").
				WithDetails(map[string]any{"reservation_expiry": current.ReservationExpiry})
		}

		due := now.AddDate(0, 0, days)
		admin := principal.UserID
		ok, err := repo.TransitionStatus(ctx, current.ID, enums.LoanStatusReserved, enums.LoanStatusBorrowed, map[string]any{
			"borrow_date":        now,
			"due_date":           due,
			"collected_by_admin": admin,
			"collected_at":       now,
			"reservation_expiry": nil,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm collection")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "loan changed concurrently")
		}

		current.Status = enums.LoanStatusBorrowed
		current.BorrowDate = &now
		current.DueDate = &due
		current.CollectedByAdmin = &admin
		current.CollectedAt = &now
		current.ReservationExpiry = nil
		loan = current

		s.emit(ctx, tx, enums.EventCollectionConfirmed, &principal, loanEvent(loan, nil, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) RequestReturn(ctx context.Context, principal Principal, loanID uuid.UUID) (loan *models.Loan, err error) {
	defer func() { s.observe(opRequestReturn, err) }()
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadLoan(ctx, repo, loanID)
		if err != nil {
			return err
		}
		if !principal.IsAdmin() && !principal.owns(current) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "loan belongs to another member")
		}
		if !current.Status.CanTransition(enums.LoanStatusReturnRequested) {
			return statusConflict(current, "loan cannot be returned in its current state")
		}

		ok, err := repo.TransitionStatus(ctx, current.ID, current.Status, enums.LoanStatusReturnRequested, map[string]any{
			"return_requested_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "request return")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "loan changed concurrently")
		}

		current.Status = enums.LoanStatusReturnRequested
		current.ReturnRequestedAt = &now
		loan = current

		s.emit(ctx, tx, enums.EventReturnRequested, &principal, loanEvent(loan, nil, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) ConfirmReturn(ctx context.Context, principal Principal, loanID uuid.UUID) (result *ReturnResult, err error) {
	defer func() { s.observe(opConfirmReturn, err) }()
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can confirm returns")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadLoan(ctx, repo, loanID)
		if err != nil {
			return err
		}
		if current.Status != enums.LoanStatusReturnRequested {
			return statusConflict(current, "return has not been requested for this loan")
		}

		ok, err := repo.TransitionStatus(ctx, current.ID, enums.LoanStatusReturnRequested, enums.LoanStatusReturned, map[string]any{
			"return_date": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm return")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "loan changed concurrently")
		}
		if err := s.releaseCopy(ctx, tx, current); err != nil {
			return err
		}

		book, err := repo.FindBook(ctx, current.BookID)
		if err != nil {
			return notFoundOr(err, "book not found", "reload book")
		}
		current.Status = enums.LoanStatusReturned
		current.ReturnDate = &now
		current.Book = book

		result = &ReturnResult{
			Loan:       current,
			Book:       book,
			WasOverdue: current.DueDate != nil && current.DueDate.Before(now),
		}
		ev := loanEvent(current, book, nil)
		ev.WasOverdue = result.WasOverdue
		s.emit(ctx, tx, enums.EventReturnConfirmed, &principal, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) CancelReservation(ctx context.Context, principal Principal, loanID uuid.UUID) (loan *models.Loan, err error) {
	defer func() { s.observe(opCancelReservation, err) }()
	now := s.now()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadLoan(ctx, repo, loanID)
		if err != nil {
			return err
		}
		if !principal.IsAdmin() && !principal.owns(current) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "reservation belongs to another member")
		}
		if current.Status != enums.LoanStatusReserved {
			return statusConflict(current, "only reserved loans can be cancelled")
		}

		ok, err := repo.TransitionStatus(ctx, current.ID, enums.LoanStatusReserved, enums.LoanStatusCancelled, map[string]any{
			"cancelled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel reservation")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "loan changed concurrently")
		}
		if err := s.releaseCopy(ctx, tx, current); err != nil {
			return err
		}

		current.Status = enums.LoanStatusCancelled
		current.CancelledAt = &now
		loan = current

		s.emit(ctx, tx, enums.EventReservationCancelled, &principal, loanEvent(loan, nil, nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) GetBorrowingStatus(ctx context.Context, userID uuid.UUID) (*BorrowingStatus, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, notFoundOr(err, "user not found", "load user")
	}
	held, err := s.repo.ListHeldByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active loans")
	}
	return buildBorrowingStatus(userID, held, s.cfg.BorrowLimit, s.now()), nil
}

func (s *service) ListLoans(ctx context.Context, principal Principal, filter ListFilter) ([]models.Loan, error) {
	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !principal.IsAdmin() {
		self := principal.UserID
		filter.UserID = &self
	}
	for _, status := range filter.Statuses {
		if !status.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown loan status %q", status)
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list loans")
	}
	return rows, nil
}

func (s *service) ListPendingReservations(ctx context.Context, principal Principal) ([]models.Loan, error) {
	if !principal.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can view the collection queue")
	}
	rows, err := s.repo.ListPendingReservations(ctx, s.now(), pendingQueueLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending reservations")
	}
	return rows, nil
}

func (s *service) GetLoan(ctx context.Context, principal Principal, loanID uuid.UUID) (*models.Loan, error) {
	loan, err := s.loadLoan(ctx, s.repo, loanID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && !principal.owns(loan) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "loan belongs to another member")
	}
	return loan, nil
}

// RunMaintenanceSweep promotes overdue loans and reclaims lapsed
// reservations. Each reclaimed reservation commits on its own; failures are
// collected and returned with the partial counts.
func (s *service) RunMaintenanceSweep(ctx context.Context) (result SweepResult, err error) {
	defer func() { s.observe(opMaintenanceSweep, err) }()
	now := s.now()

	promoted, err := s.repo.PromoteOverdue(ctx, now)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote overdue loans")
	}
	result.OverduePromoted = int(promoted)

	var errs error
	after := uuid.Nil
	for {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		batch, ferr := s.repo.FindExpiredReservations(ctx, now, after, s.cfg.MaintenanceBatchSize)
		if ferr != nil {
			errs = multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "find expired reservations"))
			break
		}
		for i := range batch {
			after = batch[i].ID
			expired, xerr := s.expireReservation(ctx, batch[i].ID, now)
			if xerr != nil {
				errs = multierr.Append(errs, fmt.Errorf("expire loan %s: %w", batch[i].ID, xerr))
				continue
			}
			if expired {
				result.ReservationsExpired++
			}
		}
		if len(batch) < s.cfg.MaintenanceBatchSize {
			break
		}
	}

	s.metrics.ObserveSweep(result.OverduePromoted, result.ReservationsExpired)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"overdue_promoted":     result.OverduePromoted,
		"reservations_expired": result.ReservationsExpired,
	})
	if errs != nil {
		s.logg.Error(logCtx, "maintenance sweep finished with errors", errs)
	} else {
		s.logg.Info(logCtx, "maintenance sweep finished")
	}
	return result, errs
}

// expireReservation reports false when another writer got to the loan first.
func (s *service) expireReservation(ctx context.Context, loanID uuid.UUID, now time.Time) (expired bool, err error) {
	defer func() { s.observe(opExpireReservation, err) }()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.ExpireReservation(ctx, loanID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		loan, err := repo.FindByID(ctx, loanID)
		if err != nil {
			return err
		}
		if err := s.releaseCopy(ctx, tx, loan); err != nil {
			return err
		}
		expired = true

		s.emit(ctx, tx, enums.EventReservationExpired, nil, loanEvent(loan, nil, nil))
		return nil
	})
	return expired, err
}

// reclaimLapsed expires the member's own lapsed reservation for the book
// ahead of the sweep so a fresh one can take its place.
func (s *service) reclaimLapsed(ctx context.Context, tx *gorm.DB, repo Repository, userID, bookID uuid.UUID, now time.Time) error {
	lapsed, err := repo.FindLapsedReservation(ctx, userID, bookID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find lapsed reservation")
	}
	if lapsed == nil {
		return nil
	}
	ok, err := repo.ExpireReservation(ctx, lapsed.ID, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire lapsed reservation")
	}
	if !ok {
		return nil
	}
	lapsed.Status = enums.LoanStatusExpired
	if err := s.releaseCopy(ctx, tx, lapsed); err != nil {
		return err
	}
	s.emit(ctx, tx, enums.EventReservationExpired, nil, loanEvent(lapsed, nil, nil))
	return nil
}

func isLiveReservationViolation(err error) bool {
	return db.IsUniqueViolation(err, liveReservationIndex) || db.IsUniqueViolation(err, "loans.user_id")
}

// releaseCopy returns the loan's copy to the shelf. A write error aborts the
// caller's transaction so the status change rolls back with it; a counter
// already at total is only logged.
func (s *service) releaseCopy(ctx context.Context, tx *gorm.DB, loan *models.Loan) error {
	released, err := s.inventory.Release(ctx, tx, loan.BookID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release copy")
	}
	if !released {
		logCtx := s.logg.WithBookID(s.logg.WithLoanID(ctx, loan.ID.String()), loan.BookID.String())
		s.logg.Warn(logCtx, "available copies already at total; release skipped")
	}
	return nil
}

func (s *service) loadLoan(ctx context.Context, repo Repository, loanID uuid.UUID) (*models.Loan, error) {
	if loanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loan id required")
	}
	loan, err := repo.FindByID(ctx, loanID)
	if err != nil {
		return nil, notFoundOr(err, "loan not found", "load loan")
	}
	return loan, nil
}

func (s *service) observe(operation string, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveTransition(operation, metrics.OutcomeSuccess)
	case pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).ClientFacing:
		s.metrics.ObserveTransition(operation, metrics.OutcomeRejected)
	default:
		s.metrics.ObserveTransition(operation, metrics.OutcomeError)
	}
}

func notFoundOr(err error, notFound, action string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func statusConflict(loan *models.Loan, message string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, message).
		WithDetails(map[string]any{"status": loan.Status})
}
