package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/fetch"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "Reference table operations",
	Long:  "Bulk-loads the reference tables the selector and budget engine read, seeds the Student-t coverage-factor table, and lists recent import runs.",
}

func init() {
	rootCmd.AddCommand(refCmd)
}

// refPool creates a pgxpool.Pool for the ref subsystem. Imports load via
// COPY into temporary tables, which only the postgres driver supports.
func refPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, eris.Errorf("ref commands require the postgres driver, got %s", cfg.Store.Driver)
	}
	dsn := cfg.Store.DatabaseURL
	if dsn == "" {
		return nil, eris.New("ref: no database_url configured (set store.database_url)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "ref: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ref: ping database")
	}

	fmt.Println("Connected to database")
	return pool, nil
}

// buildResolver wires the configured HTTP and FTP fetchers for remote
// reference-sheet sources.
func buildResolver() *fetch.Resolver {
	return &fetch.Resolver{
		HTTP: fetch.NewHTTPFetcher(fetch.HTTPOptions{
			UserAgent:         cfg.Fetch.UserAgent,
			Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:        cfg.Fetch.MaxRetries,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
			Burst:             cfg.Fetch.Burst,
		}),
		FTP: fetch.NewFTPFetcher(fetch.FTPOptions{
			Timeout:  time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			User:     cfg.Fetch.FTPUser,
			Password: cfg.Fetch.FTPPassword,
		}),
	}
}
