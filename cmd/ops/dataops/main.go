// Package main implements the dataops CLI for the ZoneAtlas platform.
//
// The tool manages the zoning dataset in the production database:
//
//	dataops cleanup-mock-data     [--dry-run | --confirm]
//	dataops import-zoning-data    --dir=PATH [--dry-run | --confirm]
//	dataops verify-production-data
//
// Connection credentials come from SUPABASE_URL and
// SUPABASE_SERVICE_ROLE_KEY (the DSN is derived from the project ref);
// an explicit DATABASE_URL overrides the derivation.
//
// Exit codes: 0 on success or warnings, 1 on failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}
	command := args[0]

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "cleanup-mock-data":
		return runCleanup(ctx, args[1:])
	case "import-zoning-data":
		return runImport(ctx, args[1:])
	case "verify-production-data":
		return runVerify(ctx)
	case "-h", "--help", "help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n\n", command)
		usage()
		return 1
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `ZoneAtlas Data Operations Tool

Usage:
  dataops cleanup-mock-data     [--dry-run | --confirm]
  dataops import-zoning-data    --dir=PATH [--dry-run | --confirm]
  dataops verify-production-data

Environment:
  SUPABASE_URL               Supabase project URL (DSN derived from ref)
  SUPABASE_SERVICE_ROLE_KEY  Service role key used as DB password
  DATABASE_URL               Full Postgres DSN; overrides the derivation
`)
}

// connect resolves the DSN from the environment and opens a pool.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	dsn, err := ResolveDSN(os.Getenv)
	if err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

func runCleanup(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("cleanup-mock-data", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "Report what would be deleted without deleting")
	confirm := fs.Bool("confirm", false, "Actually delete mock rows")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if !*dryRun && !*confirm {
		fmt.Fprintln(os.Stderr, "error: cleanup-mock-data requires --dry-run or --confirm")
		return 1
	}

	pool, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer pool.Close()

	report, err := CleanupMockData(ctx, pool, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	report.Print(os.Stdout, *dryRun)
	return 0
}

func runImport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("import-zoning-data", flag.ContinueOnError)
	dir := fs.String("dir", "", "Directory containing per-county GeoJSON files [required]")
	dryRun := fs.Bool("dry-run", false, "Parse and validate files without writing")
	confirm := fs.Bool("confirm", false, "Actually write the parsed districts")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "error: --dir is required")
		return 1
	}
	if !*dryRun && !*confirm {
		fmt.Fprintln(os.Stderr, "error: import-zoning-data requires --dry-run or --confirm")
		return 1
	}

	pool, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer pool.Close()

	report, err := ImportZoningData(ctx, pool, *dir, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	report.Print(os.Stdout, *dryRun)
	return 0
}

func runVerify(ctx context.Context) int {
	pool, err := connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	defer pool.Close()

	report, err := VerifyProductionData(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	report.Print(os.Stdout)
	if report.Failed() {
		return 1
	}
	return 0
}
