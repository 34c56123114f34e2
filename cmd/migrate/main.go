package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

func main() {
	_ = godotenv.Load()

	var (
		dsnFlag string
		dryRun  bool
	)
	flag.StringVar(&dsnFlag, "dsn", "", "postgres connection string (falls back to DATABASE_URL)")
	flag.BoolVar(&dryRun, "dry-run", false, "print the schema instead of applying it")
	flag.Parse()

	if dryRun {
		fmt.Print(sqlinline.Schema)
		return
	}

	dsn := strings.TrimSpace(dsnFlag)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	logger := infra.NewLogger(os.Getenv("APP_ENV"), "migrate")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database failed")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: begin failed")
	}
	if _, err := tx.ExecContext(ctx, sqlinline.Schema); err != nil {
		_ = tx.Rollback()
		logger.Fatal().Err(err).Msg("migrate: apply schema failed")
	}
	if err := tx.Commit(); err != nil {
		logger.Fatal().Err(err).Msg("migrate: commit failed")
	}
	logger.Info().Msg("migrate: schema applied")
}
