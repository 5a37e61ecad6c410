package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"

	"ashare-data-lab/internal/storage"
)

// PoolAccessor implements storage.Accessor over a connection pool. Safe for
// concurrent use; this is the non-blocking execution path driven by the
// cooperative scheduler.
type PoolAccessor struct {
	pool *Pool
}

// NewPoolAccessor creates an accessor over the pool.
func NewPoolAccessor(pool *Pool) *PoolAccessor {
	return &PoolAccessor{pool: pool}
}

// Compile-time interface check.
var _ storage.Accessor = (*PoolAccessor)(nil)

func (a *PoolAccessor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := a.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.WrapInfra("exec", err)
	}
	return tag.RowsAffected(), nil
}

func (a *PoolAccessor) Query(ctx context.Context, sql string, args ...any) ([]storage.Row, error) {
	rows, err := a.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, storage.WrapInfra("query", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (a *PoolAccessor) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, storage.WrapInfra("begin", err)
	}
	return &pgxTx{tx: tx}, nil
}

func (a *PoolAccessor) EnsureSchema(ctx context.Context, name string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{name}.Sanitize()))
	return err
}

// SessionAccessor implements storage.Accessor over a single connection,
// strictly serializing callers. This is the blocking execution path used by
// call sites that must complete before the caller proceeds. Its observable
// storage effects are identical to PoolAccessor's.
type SessionAccessor struct {
	mu   sync.Mutex
	conn *pgx.Conn
}

// NewSessionAccessor connects a single session to the given DSN.
func NewSessionAccessor(ctx context.Context, dsn string) (*SessionAccessor, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &SessionAccessor{conn: conn}, nil
}

// Compile-time interface check.
var _ storage.Accessor = (*SessionAccessor)(nil)

// Close closes the underlying connection.
func (a *SessionAccessor) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn.Close(ctx)
}

func (a *SessionAccessor) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tag, err := a.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.WrapInfra("exec", err)
	}
	return tag.RowsAffected(), nil
}

func (a *SessionAccessor) Query(ctx context.Context, sql string, args ...any) ([]storage.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows, err := a.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, storage.WrapInfra("query", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (a *SessionAccessor) Begin(ctx context.Context) (storage.Tx, error) {
	a.mu.Lock()
	tx, err := a.conn.Begin(ctx)
	if err != nil {
		a.mu.Unlock()
		return nil, storage.WrapInfra("begin", err)
	}
	// The session stays locked until the transaction finishes, so no other
	// caller can interleave statements on the shared connection.
	return &pgxTx{tx: tx, done: a.mu.Unlock}, nil
}

func (a *SessionAccessor) EnsureSchema(ctx context.Context, name string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{name}.Sanitize()))
	return err
}

// pgxTx adapts pgx.Tx to storage.Tx.
type pgxTx struct {
	tx   pgx.Tx
	done func() // optional, invoked once on commit/rollback
}

var _ storage.Tx = (*pgxTx)(nil)

func (t *pgxTx) finish() {
	if t.done != nil {
		t.done()
		t.done = nil
	}
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.WrapInfra("tx exec", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) ([]storage.Row, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, storage.WrapInfra("tx query", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func (t *pgxTx) Commit(ctx context.Context) error {
	defer t.finish()
	if err := t.tx.Commit(ctx); err != nil {
		return storage.WrapInfra("commit", err)
	}
	return nil
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	defer t.finish()
	err := t.tx.Rollback(ctx)
	if err != nil && err != pgx.ErrTxClosed {
		return storage.WrapInfra("rollback", err)
	}
	return nil
}

// collectRows drains pgx rows into column-name keyed mappings.
func collectRows(rows pgx.Rows) ([]storage.Row, error) {
	fields := rows.FieldDescriptions()
	var out []storage.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, storage.WrapInfra("scan", err)
		}
		row := make(storage.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapInfra("rows", err)
	}
	return out, nil
}
