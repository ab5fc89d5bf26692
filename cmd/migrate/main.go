package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir DIR] <command> [arg]

commands:
  up                 apply all pending migrations
  down               roll back the latest migration
  status             print applied and pending migrations
  version [TARGET]   print the schema version, or move to TARGET (YYYYMMDDHHMMSS)
  create NAME        write a new empty migration
  validate           check migration files without touching the database
`

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := flag.Arg(0)
	arg := flag.Arg(1)
	if cmd == "" {
		flag.Usage()
		os.Exit(2)
	}

	switch cmd {
	case "create":
		if arg == "" {
			fail("create requires a migration name")
		}
		path, err := migrate.CreateSQLMigration(*dir, arg)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return

	case "validate":
		files, _ := migrate.ListMigrations(*dir)
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed:\n%v", err)
		}
		fmt.Printf("%d migrations valid\n", len(files))
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": cmd,
		"dir": *dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	if cfg.DB.IsSQLite() {
		if cmd != "up" {
			fail("%s is only supported on postgres; sqlite schemas are built from models", cmd)
		}
		requireResource(ctx, logg, "sqlite schema", migrate.AutoMigrateModels(dbClient.DB()))
		logg.Info(ctx, "sqlite schema migrated from models")
		return
	}

	sqlDB, err := dbClient.SQL()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")

	switch cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, *dir, cmd); err != nil {
			fail("goose %s failed: %v", cmd, err)
		}

	case "version":
		if arg == "" {
			version, err := migrate.CurrentVersion(ctx, sqlDB, *dir)
			if err != nil {
				fail("goose version failed: %v", err)
			}
			fmt.Println(version)
			return
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, *dir, arg); err != nil {
			fail("goose version migrate failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
