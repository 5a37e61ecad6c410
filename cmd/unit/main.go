package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/pipeline"
	"ashare-data-lab/internal/storage"
	"ashare-data-lab/internal/storage/memory"
	"ashare-data-lab/internal/storage/migrations"
	pgstore "ashare-data-lab/internal/storage/postgres"
	"ashare-data-lab/internal/techfeatures"
)

// Runs a single processing unit through the pipeline: fetch, clean,
// feature, save. Useful for reprocessing one instrument batch or checking
// what a unit would produce.
func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	codes := flag.String("codes", "", "Comma-separated instrument codes (required)")
	startDate := flag.String("start-date", "", "Range start (YYYYMMDD, empty for all history)")
	endDate := flag.String("end-date", "", "Range end (YYYYMMDD, empty for latest)")
	featureList := flag.String("features", "", "Comma-separated feature names (empty for all registered)")
	skipFeatures := flag.Bool("skip-features", false, "Save only cleaned columns, compute no features")
	useMemory := flag.Bool("use-memory", false, "Use empty in-memory storage (dry-run wiring check)")

	flag.Parse()

	logger := log.New(os.Stdout, "[unit] ", log.LstdFlags|log.Lshortfile)

	codeList := splitList(*codes)
	if len(codeList) == 0 {
		logger.Fatal("No instrument codes specified. Use --codes")
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

	var (
		bars      storage.BarStore
		cleanBars storage.CleanBarStore
		featStore storage.FeatureStore
	)
	switch {
	case *useMemory:
		bars = memory.NewBarStore()
		cleanBars = memory.NewCleanBarStore()
		featStore = memory.NewFeatureStore()
	case *postgresDSN != "":
		session, err := pgstore.NewSessionAccessor(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Connect to postgres: %v", err)
		}
		defer session.Close(context.Background())
		if err := migrations.RunPostgresMigrations(ctx, session); err != nil {
			logger.Fatalf("Run migrations: %v", err)
		}
		bars = pgstore.NewBarStore(session, "market")
		cleanBars = pgstore.NewCleanBarStore(session, techfeatures.DefaultSchema)
		featStore = pgstore.NewFeatureStore(session, techfeatures.DefaultSchema)
	default:
		logger.Fatal("Either --postgres-dsn or --use-memory is required")
	}

	registry := features.DefaultRegistry()
	requested := splitList(*featureList)
	if len(requested) == 0 {
		requested = registry.Names()
	}

	p := pipeline.New(bars, cleanBars, featStore, registry).
		WithMetrics(observability.Default())

	start := time.Now()
	result, err := p.Run(ctx, domain.ProcessingUnit{
		TSCodes:      codeList,
		StartDate:    *startDate,
		EndDate:      *endDate,
		Features:     requested,
		SkipFeatures: *skipFeatures,
	})
	if err != nil {
		logger.Fatalf("Pipeline terminated in %s: %v", result.State, err)
	}

	logger.Printf("Pipeline reached %s in %s", result.State, time.Since(start).Round(time.Millisecond))
	logger.Printf("Fetched %d raw rows, cleaned %d (dropped %d), computed %d feature rows",
		result.RowsFetched, result.RowsCleaned, result.RowsDropped, result.FeatureRows)
	logger.Printf("Bars: inserted=%d updated=%d unchanged=%d",
		result.Bars.Inserted, result.Bars.Updated, result.Bars.Unchanged)
	logger.Printf("Features: inserted=%d updated=%d unchanged=%d",
		result.Features.Inserted, result.Features.Updated, result.Features.Unchanged)
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
