package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ashare-data-lab/internal/matview"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/storage/migrations"
	pgstore "ashare-data-lab/internal/storage/postgres"
)

// Maintains the built-in materialized views: validates their specs, prints
// the rendered SQL, or applies them against storage.
func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	names := flag.String("views", "", "Comma-separated view names (empty for all built-ins)")
	printOnly := flag.Bool("print", false, "Render the SQL to stdout instead of applying")
	partitions := flag.String("partitions", "", "Comma-separated partition values for incremental views (empty refreshes every source partition)")

	flag.Parse()

	logger := log.New(os.Stdout, "[views] ", log.LstdFlags|log.Lshortfile)

	specs, err := selectSpecs(matview.Builtin(), splitList(*names))
	if err != nil {
		logger.Fatalf("View selection failed: %v", err)
	}

	// Validate everything first so a broken spec is reported with all its
	// violations before any view is touched.
	for _, spec := range specs {
		if err := matview.Validate(spec); err != nil {
			logger.Fatalf("Spec validation failed: %v", err)
		}
	}

	if *printOnly {
		for _, spec := range specs {
			sql, err := matview.Render(spec)
			if err != nil {
				logger.Fatalf("Render %s: %v", spec.Name, err)
			}
			fmt.Printf("-- view %s (%s)\n%s\n", spec.Target(), spec.Strategy, sql)
		}
		return
	}

	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required to apply views (use --print to render only)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, cancelling...", sig)
		cancel()
	}()

	session, err := pgstore.NewSessionAccessor(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect to postgres: %v", err)
	}
	defer session.Close(context.Background())
	if err := migrations.RunPostgresMigrations(ctx, session); err != nil {
		logger.Fatalf("Run migrations: %v", err)
	}

	engine := matview.NewEngine(session).WithMetrics(observability.Default())
	opts := matview.ApplyOptions{Partitions: splitList(*partitions)}

	for _, spec := range specs {
		res, err := engine.Apply(ctx, spec, opts)
		if err != nil {
			logger.Fatalf("Apply %s: %v", spec.Target(), err)
		}
		logger.Printf("%s (%s): %s (inserted=%d updated=%d elapsed=%s)",
			spec.Target(), spec.Strategy, res.Status,
			res.RowsInserted, res.RowsUpdated, res.Elapsed.Round(time.Millisecond))
	}
}

func selectSpecs(all []matview.Spec, names []string) ([]matview.Spec, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]matview.Spec, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	var out []matview.Spec
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown view %q", n)
		}
		out = append(out, s)
	}
	return out, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
