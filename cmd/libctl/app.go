package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/library-backend/internal/books"
	"github.com/angelmondragon/library-backend/internal/loans"
	"github.com/angelmondragon/library-backend/internal/membership"
	"github.com/angelmondragon/library-backend/internal/users"
	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/outbox"
)

// env holds the process-level hooks commands use to reach config and the
// database. Tests replace them with in-memory versions.
type env struct {
	loadConfig func() (*config.Config, error)
	openDB     func(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*db.Client, func() error, error)
	logger     func(cfg *config.Config) *logger.Logger
}

func defaultEnv() *env {
	return &env{
		loadConfig: func() (*config.Config, error) {
			_ = godotenv.Load()
			return config.Load()
		},
		openDB: func(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*db.Client, func() error, error) {
			client, err := db.New(ctx, cfg, logg)
			if err != nil {
				return nil, nil, err
			}
			return client, client.Close, nil
		},
		logger: func(cfg *config.Config) *logger.Logger {
			return logger.New(logger.Options{
				ServiceName: "libctl",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				WarnStack:   cfg.App.LogWarnStack,
			})
		},
	}
}

type app struct {
	cfg     *config.Config
	logg    *logger.Logger
	users   *users.Repository
	loans   loans.Service
	dlq     *outbox.DLQRepository
	closeDB func() error
}

func (a *app) Close() error {
	if a.closeDB == nil {
		return nil
	}
	return a.closeDB()
}

func (e *env) config() (*config.Config, *logger.Logger, error) {
	cfg, err := e.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, e.logger(cfg), nil
}

// open wires the loan engine the same way the API does so sweeps and status
// checks follow identical rules.
func (e *env) open(ctx context.Context) (*app, error) {
	cfg, logg, err := e.config()
	if err != nil {
		return nil, err
	}
	client, closeDB, err := e.openDB(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	userRepo := users.NewRepository(client.DB())
	loanSvc, err := loans.NewService(loans.Deps{
		Config:    cfg.Lending,
		Repo:      loans.NewRepository(client.DB()),
		Tx:        client,
		Users:     userRepo,
		Gate:      membership.NewGate(userRepo, logg),
		Inventory: books.NewInventory(),
		Outbox:    outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Logger:    logg,
	})
	if err != nil {
		_ = closeDB()
		return nil, fmt.Errorf("build loans service: %w", err)
	}
	return &app{
		cfg:     cfg,
		logg:    logg,
		users:   userRepo,
		loans:   loanSvc,
		dlq:     outbox.NewDLQRepository(client.DB()),
		closeDB: closeDB,
	}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
