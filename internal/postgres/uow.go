package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/ports"
)

// txCtxKey keys the active pgx.Tx in a context. Unexported type, so no
// other package can collide with or forge it.
type txCtxKey struct{}

// unitOfWork runs service callbacks inside a single pgx transaction and
// hands the tx to repositories through the context.
type unitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// WithinTx runs fn inside a transaction: commit on nil, rollback on error
// or panic. A call made while a transaction is already in ctx joins it
// rather than opening a second one, so service methods can compose freely.
//
// Serialization of concurrent bookers happens one level down: repositories
// take SELECT ... FOR UPDATE on the contended ride row inside this
// transaction.
func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := u.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txCtxKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// TxFromContext reports the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(pgx.Tx)
	return tx, ok
}

// MustTxFromContext is for repository methods, which never run outside a
// unit of work; a missing transaction is a wiring bug, not a runtime state.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	if tx, ok := TxFromContext(ctx); ok {
		return tx, nil
	}
	return nil, errors.New("repository called outside WithinTx")
}
