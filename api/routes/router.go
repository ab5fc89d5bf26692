package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/library-backend/api/controllers"
	"github.com/angelmondragon/library-backend/api/middleware"
	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/internal/notifications"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/redis"
)

// Params wires the router. Redis, Limiter and Metrics are optional: without
// Redis the API falls back to the in-process Limiter and skips response
// replay.
type Params struct {
	Config        *config.Config
	Logger        *logger.Logger
	Books         books.Service
	Loans         loans.Service
	Notifications notifications.Service
	Redis         *redis.Client
	Limiter       *middleware.RateLimiter
	Metrics       *prometheus.Registry
	Readiness     []controllers.ReadinessCheck
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness...))
	})

	if p.Metrics != nil {
		r.Handle("/metrics", metrics.Handler(p.Metrics))
	}

	var replayStore middleware.ResponseStore
	if p.Redis != nil {
		replayStore = p.Redis
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		switch {
		case p.Redis != nil:
			r.Use(middleware.SharedRateLimit(p.Redis, cfg.RateLimit, logg))
		case p.Limiter != nil:
			r.Use(p.Limiter.Middleware())
		}
		r.Use(middleware.Idempotency(replayStore, logg))

		admin := middleware.RequireAdmin(logg)

		r.Route("/books", func(r chi.Router) {
			r.Get("/", controllers.ListBooks(p.Books, logg))
			r.Get("/{bookId}", controllers.GetBook(p.Books, logg))
			r.With(admin).Post("/", controllers.CreateBook(p.Books, logg))
			r.With(admin).Patch("/{bookId}", controllers.UpdateBook(p.Books, logg))
			r.With(admin).Delete("/{bookId}", controllers.DeleteBook(p.Books, logg))
			r.With(admin).Patch("/{bookId}/copies", controllers.UpdateBookCopies(p.Books, logg))
		})

		r.Route("/loans", func(r chi.Router) {
			r.Post("/", controllers.RequestBorrow(p.Loans, logg))
			r.Get("/", controllers.ListLoans(p.Loans, logg))
			r.Get("/status", controllers.GetMyBorrowingStatus(p.Loans, logg))
			r.With(admin).Get("/pending", controllers.ListPendingReservations(p.Loans, logg))

			r.Route("/{loanId}", func(r chi.Router) {
				r.Get("/", controllers.GetLoan(p.Loans, logg))
				r.Post("/return", controllers.RequestReturn(p.Loans, logg))
				r.Post("/cancel", controllers.CancelReservation(p.Loans, logg))
				r.With(admin).Post("/collect", controllers.ConfirmCollection(p.Loans, logg))
				r.With(admin).Post("/return/confirm", controllers.ConfirmReturn(p.Loans, logg))
			})
		})

		r.With(admin).Get("/users/{userId}/loans/status", controllers.GetUserBorrowingStatus(p.Loans, logg))
		r.With(admin).Post("/admin/maintenance/sweep", controllers.RunMaintenanceSweep(p.Loans, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
