// Command seed applies the database schema and loads catalog fixtures from YAML.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/Dosada05/esports-betting/db"
	"github.com/Dosada05/esports-betting/fixtures"
	"github.com/Dosada05/esports-betting/repositories"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	_ = godotenv.Load()

	file := flag.String("file", "fixtures.yaml", "path to the YAML fixtures")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres connection string (defaults to DATABASE_URL)")
	flag.Parse()

	if *dsn == "" {
		logger.Error("database connection string is empty: set DATABASE_URL or pass -dsn")
		os.Exit(1)
	}

	fh, err := os.Open(*file)
	if err != nil {
		logger.Error("failed to open fixtures", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}
	defer fh.Close()

	data, err := fixtures.Parse(fh)
	if err != nil {
		logger.Error("failed to parse fixtures", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}

	dbConn, err := db.Connect(*dsn, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbConn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.EnsureSchema(ctx, dbConn); err != nil {
		logger.Error("failed to apply schema", slog.Any("error", err))
		os.Exit(1)
	}

	summary, err := fixtures.Apply(ctx, repositories.NewPostgresCatalogRepository(dbConn), data)
	if err != nil {
		logger.Error("failed to load fixtures", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("fixtures loaded",
		slog.String("file", *file),
		slog.Int("tournaments", summary.Tournaments),
		slog.Int("games", summary.Games),
		slog.Int("players", summary.Players),
		slog.Int("participations", summary.Participations),
		slog.Int("matches", summary.Matches),
	)
}
