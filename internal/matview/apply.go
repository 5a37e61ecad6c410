package matview

import (
	"context"
	"fmt"
	"time"

	"ashare-data-lab/internal/domain"
	"ashare-data-lab/internal/observability"
	"ashare-data-lab/internal/storage"
)

// Engine applies view specs through a storage accessor. It is written once
// against the Accessor interface and is execution-mode agnostic.
type Engine struct {
	acc     storage.Accessor
	metrics *observability.Metrics
}

// NewEngine creates a view engine over the given accessor.
func NewEngine(acc storage.Accessor) *Engine {
	return &Engine{acc: acc}
}

// WithMetrics adds observability metrics.
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// ApplyOptions scope an incremental apply. Ignored for the full strategy.
type ApplyOptions struct {
	// Partitions are the partition-column values to refresh. Empty means
	// every partition currently present in the sources.
	Partitions []string
}

// Apply renders the spec and executes it. Full strategy runs the staged
// rebuild and swap inside one explicit transaction; incremental strategy
// bootstraps the target table if missing and upserts one partition at a
// time. Re-applying an unchanged spec over unchanged sources leaves the
// view's content unchanged.
func (e *Engine) Apply(ctx context.Context, spec Spec, opts ApplyOptions) (*domain.RunResult, error) {
	start := time.Now()

	res := &domain.RunResult{
		Domain:    spec.Name,
		Operation: "apply_" + string(spec.Strategy),
	}

	if err := e.acc.EnsureSchema(ctx, spec.Schema); err != nil {
		return nil, fmt.Errorf("ensure schema %s: %w", spec.Schema, err)
	}

	var err error
	switch spec.Strategy {
	case StrategyFull:
		err = e.applyFull(ctx, spec, res)
	case StrategyIncremental:
		err = e.applyIncremental(ctx, spec, opts, res)
	default:
		err = Validate(spec)
		if err == nil {
			err = fmt.Errorf("unknown strategy %q", spec.Strategy)
		}
	}
	if err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	if res.Status == "" {
		res.Status = domain.StatusSuccess
	}
	e.metrics.ObserveViewApply(spec.Name, string(spec.Strategy))
	return res, nil
}

func (e *Engine) applyFull(ctx context.Context, spec Spec, res *domain.RunResult) error {
	stmts, err := renderStatements(spec)
	if err != nil {
		return err
	}

	tx, err := e.acc.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin view rebuild %s: %w", spec.Target(), err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild view %s: %w", spec.Target(), err)
		}
	}

	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT count(*) AS n FROM %s", spec.Target()))
	if err != nil {
		return fmt.Errorf("count view %s: %w", spec.Target(), err)
	}
	if len(rows) == 1 {
		if n, ok := rows[0]["n"].(int64); ok {
			res.RowsInserted = n
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit view rebuild %s: %w", spec.Target(), err)
	}
	return nil
}

func (e *Engine) applyIncremental(ctx context.Context, spec Spec, opts ApplyOptions, res *domain.RunResult) error {
	stmts, err := renderStatements(spec)
	if err != nil {
		return err
	}

	for _, stmt := range renderBootstrap(spec) {
		if _, err := e.acc.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap view %s: %w", spec.Target(), err)
		}
	}

	partitions := opts.Partitions
	if len(partitions) == 0 {
		partitions, err = e.sourcePartitions(ctx, spec)
		if err != nil {
			return err
		}
	}

	upsert := stmts[0]
	var affected int64
	for _, p := range partitions {
		n, err := e.acc.Exec(ctx, upsert, p)
		if err != nil {
			return fmt.Errorf("refresh view %s partition %s: %w", spec.Target(), p, err)
		}
		affected += n
	}

	res.RowsUpdated = affected
	if affected == 0 {
		res.Status = domain.StatusSkipped
		res.Detail = "no partition produced new or changed rows"
	}
	return nil
}

// sourcePartitions lists the distinct partition values currently present in
// the spec's sources.
func (e *Engine) sourcePartitions(ctx context.Context, spec Spec) ([]string, error) {
	partExpr := spec.PartitionColumn
	for _, c := range spec.Columns {
		if c.Name == spec.PartitionColumn {
			partExpr = c.Expr
		}
	}

	var b []string
	query := fmt.Sprintf("SELECT DISTINCT %s AS p FROM %s", partExpr, spec.From)
	if spec.Where != "" {
		query += " WHERE " + spec.Where
	}
	query += " ORDER BY p"

	rows, err := e.acc.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list partitions for %s: %w", spec.Target(), err)
	}
	for _, r := range rows {
		if p, ok := r["p"].(string); ok {
			b = append(b, p)
		}
	}
	return b, nil
}
