package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/license-manager/internal/domain/license"
	"github.com/makkenzo/license-manager/internal/seed"
	"github.com/makkenzo/license-manager/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	fixtures := flag.String("file", "", "YAML fixture file (defaults to the built-in licenses)")
	replace := flag.Bool("replace", false, "Overwrite licenses that are already stored")
	flag.Parse()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	repo := postgres.NewLicenseRepository(pool, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare license schema: %v", err)
	}

	now := time.Now()
	var licenses []*license.License
	if *fixtures != "" {
		licenses, err = seed.LoadFile(*fixtures, now)
	} else {
		licenses, err = seed.DefaultLicenses(now)
	}
	if err != nil {
		log.Fatalf("Failed to load fixtures: %v", err)
	}

	apply := seed.Apply
	if *replace {
		apply = seed.Replace
	}
	if err := apply(ctx, repo, licenses, logger); err != nil {
		log.Fatalf("Failed to seed licenses: %v", err)
	}

	for _, lic := range licenses {
		fmt.Printf("%s\t%s\t%s\texpires %s\n", lic.Key, lic.Tier, lic.ProductName, lic.ExpiresAt.Format(time.RFC3339))
	}
}
