package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ashare-data-lab/internal/dataservice"
	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/features"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/pit"
	"ashare-data-lab/internal/storage"
	chstore "ashare-data-lab/internal/storage/clickhouse"
	"ashare-data-lab/internal/storage/memory"
	"ashare-data-lab/internal/storage/migrations"
	pgstore "ashare-data-lab/internal/storage/postgres"
	"ashare-data-lab/internal/techfeatures"
)

func main() {
	op := flag.String("op", "update", "Operation: ensure, rebuild, update, or validate")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the feature mirror (empty to disable)")
	mode := flag.String("mode", "sequential", "Execution mode: sequential or concurrent")
	domains := flag.String("domains", "", "Comma-separated domain names (empty for all)")
	concurrency := flag.Int("concurrency", 4, "Max domains driven in parallel in concurrent mode")
	batchSize := flag.Int("batch-size", dataservice.DefaultBatchSize, "Instrument codes per pipeline batch")
	since := flag.String("since", "", "Watermark override for update (YYYYMMDD)")
	codes := flag.String("codes", "", "Comma-separated instrument codes to narrow rebuild/update")
	startDate := flag.String("start-date", "", "Rebuild range start (YYYYMMDD)")
	endDate := flag.String("end-date", "", "Rebuild range end (YYYYMMDD)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage seeded with fixtures")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[datahub] ", log.LstdFlags|log.Lshortfile)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
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

	runnerMode := dataservice.ModeSequential
	switch *mode {
	case "sequential":
	case "concurrent":
		runnerMode = dataservice.ModeConcurrent
	default:
		logger.Fatalf("Unknown mode: %s", *mode)
	}

	registry, cleanup, err := buildRegistry(ctx, logger, buildConfig{
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		batchSize:     *batchSize,
		concurrent:    runnerMode == dataservice.ModeConcurrent,
	})
	if err != nil {
		logger.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	services, err := registry.Select(splitList(*domains))
	if err != nil {
		logger.Fatalf("Domain selection failed: %v", err)
	}
	runner := dataservice.NewRunner(services, runnerMode, *concurrency).
		WithMetrics(observability.Default())

	var results []*domain.RunResult
	switch *op {
	case "ensure":
		err = runner.EnsureAll(ctx)
	case "rebuild":
		results, err = runner.RebuildAll(ctx, dataservice.RebuildOptions{
			TSCodes:   splitList(*codes),
			StartDate: *startDate,
			EndDate:   *endDate,
		})
	case "update":
		results, err = runner.UpdateAll(ctx, dataservice.UpdateOptions{
			Since:   *since,
			TSCodes: splitList(*codes),
		})
	case "validate":
		if err = runner.EnsureAll(ctx); err == nil {
			results, err = runner.ValidateAll(ctx)
		}
	default:
		logger.Fatalf("Unknown operation: %s", *op)
	}
	if err != nil {
		if ctx.Err() != nil {
			logger.Fatalf("Cancelled: %v", err)
		}
		logger.Fatalf("Operation %s failed: %v", *op, err)
	}

	for _, res := range results {
		logResult(logger, res)
	}
	logger.Printf("Operation %s complete", *op)
}

type buildConfig struct {
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	batchSize     int
	concurrent    bool
}

// buildRegistry wires the domain services over either PostgreSQL or seeded
// in-memory storage. The accessor implementation follows the execution
// mode: pooled for concurrent runs, single-session for sequential ones.
func buildRegistry(ctx context.Context, logger *log.Logger, cfg buildConfig) (*dataservice.Registry, func(), error) {
	cleanup := func() {}
	metrics := observability.Default()
	registry := dataservice.NewRegistry()

	featCfg := dataservice.Config{BatchSize: cfg.batchSize}
	pitCfg := dataservice.Config{BatchSize: cfg.batchSize}

	var (
		acc        storage.Accessor
		bars       storage.BarStore
		statements storage.StatementStore
		cleanBars  storage.CleanBarStore
		featStore  storage.FeatureStore
		pitStore   storage.PITStore
		featMarks  storage.WatermarkStore
		pitMarks   storage.WatermarkStore
		mirror     storage.FeatureMirror
	)

	switch {
	case cfg.useMemory:
		memBars := memory.NewBarStore()
		memStatements := memory.NewStatementStore()
		if err := seedFixtures(ctx, memBars, memStatements); err != nil {
			return nil, cleanup, fmt.Errorf("seed fixtures: %w", err)
		}
		logger.Println("Using in-memory storage with fixture data")
		bars, statements = memBars, memStatements
		cleanBars = memory.NewCleanBarStore()
		featStore = memory.NewFeatureStore()
		pitStore = memory.NewPITStore()
		featMarks = memory.NewWatermarkStore()
		pitMarks = memory.NewWatermarkStore()

	case cfg.postgresDSN != "":
		if cfg.concurrent {
			pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
			if err != nil {
				return nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
			}
			cleanup = pool.Close
			acc = pgstore.NewPoolAccessor(pool)
		} else {
			session, err := pgstore.NewSessionAccessor(ctx, cfg.postgresDSN)
			if err != nil {
				return nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
			}
			cleanup = func() { session.Close(context.Background()) }
			acc = session
		}
		if err := migrations.RunPostgresMigrations(ctx, acc); err != nil {
			return nil, cleanup, fmt.Errorf("run migrations: %w", err)
		}
		bars = pgstore.NewBarStore(acc, "market")
		statements = pgstore.NewStatementStore(acc, "market")
		cleanBars = pgstore.NewCleanBarStore(acc, techfeatures.DefaultSchema)
		featStore = pgstore.NewFeatureStore(acc, techfeatures.DefaultSchema)
		pitStore = pgstore.NewPITStore(acc, pit.DefaultSchema)
		featMarks = pgstore.NewWatermarkStore(acc, techfeatures.DefaultSchema)
		pitMarks = pgstore.NewWatermarkStore(acc, pit.DefaultSchema)

	default:
		return nil, cleanup, fmt.Errorf("either --postgres-dsn or --use-memory is required")
	}

	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connect to clickhouse: %w", err)
		}
		mirror = chstore.NewFeatureMirror(conn)
		logger.Println("Feature rows mirrored to ClickHouse")
	}

	featSvc := techfeatures.New(featCfg, acc, bars, cleanBars, featStore, featMarks, features.DefaultRegistry()).
		WithMetrics(metrics)
	if mirror != nil {
		featSvc = featSvc.WithMirror(mirror)
	}
	if err := registry.Register(featSvc); err != nil {
		return nil, cleanup, err
	}

	pitSvc := pit.New(pitCfg, acc, statements, pitStore, pitMarks).WithMetrics(metrics)
	if err := registry.Register(pitSvc); err != nil {
		return nil, cleanup, err
	}

	return registry, cleanup, nil
}

func logResult(logger *log.Logger, res *domain.RunResult) {
	if res == nil {
		return
	}
	logger.Printf("%s %s: %s (inserted=%d updated=%d unchanged=%d elapsed=%s)",
		res.Domain, res.Operation, res.Status,
		res.RowsInserted, res.RowsUpdated, res.RowsUnchanged, res.Elapsed.Round(time.Millisecond))
	for _, c := range res.Checks {
		if c.Passed {
			logger.Printf("  check %s: ok", c.Name)
		} else {
			logger.Printf("  check %s: FAILED (%s)", c.Name, c.Detail)
		}
	}
	if res.Detail != "" {
		logger.Printf("  detail: %s", res.Detail)
	}
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
