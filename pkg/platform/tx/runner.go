package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "amparo/pkg/domain-errors"
)

// Runner provides an all-or-nothing boundary for bulk store mutations.
// Implementations wrap a database transaction or, in-memory, a coarse lock.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout bounds a transaction when the caller carries no deadline.
const defaultTxTimeout = 30 * time.Second

// DBRunner runs fn inside a SQL transaction carried on the context, so
// stores built on this package pick it up transparently.
type DBRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewDBRunner(db *sql.DB) *DBRunner {
	return &DBRunner{db: db}
}

func (r *DBRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	// Joining an in-flight transaction keeps nested boundaries atomic.
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	timeout := r.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = txn.Rollback()
	}()

	if err := fn(WithTx(ctx, txn)); err != nil {
		return err
	}
	return txn.Commit()
}

// SerialRunner serializes bulk mutations behind a mutex. It cannot roll
// back; memory stores accept that in exchange for zero infrastructure.
type SerialRunner struct {
	mu sync.Mutex
}

type serialTxKey struct{}

func NewSerialRunner() *SerialRunner {
	return &SerialRunner{}
}

func (r *SerialRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	// Nested boundaries join the outer one; the mutex is not reentrant.
	if ctx.Value(serialTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(context.WithValue(ctx, serialTxKey{}, true))
}
