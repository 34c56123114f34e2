package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
)

var envKeys = map[domain.Provider]string{
	domain.ProviderSora:     "SORA_API_KEY",
	domain.ProviderSeedance: "SEEDANCE_API_KEY",
	domain.ProviderKling:    "KLING_API_KEY",
}

func main() {
	_ = godotenv.Load()

	var (
		keyFlag      string
		providerFlag string
		noteFlag     string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to <PROVIDER>_API_KEY)")
	flag.StringVar(&providerFlag, "provider", "", "video provider to configure (sora, seedance or kling)")
	flag.StringVar(&noteFlag, "note", "", "free-form note stored alongside the key")
	flag.Parse()

	provider, ok := domain.ParseProvider(strings.TrimSpace(strings.ToLower(providerFlag)))
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported provider %q (want sora, seedance or kling)\n", providerFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKeys[provider]))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", provider, envKeys[provider])
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli", "providerkey").With().Str("provider", string(provider)).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	props := map[string]any{"stored_at": time.Now().UTC().Format(time.RFC3339)}
	if note := strings.TrimSpace(noteFlag); note != "" {
		props["note"] = note
	}
	if err := store.SetToken(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", strings.ToUpper(string(provider)))
}
