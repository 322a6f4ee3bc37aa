// Command migrate applies versioned schema migrations under a
// database-level advisory lock. Exit codes: 0 success, 1 config error,
// 2 database error, 3 operation failure.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/examsync/core/internal/config"
	"github.com/examsync/core/internal/db"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(2)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(3)
	}

	slog.Info("migrations up to date")
}
