package bunstore

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/transaction"
)

// Tx is the store transaction handed to a transaction.Coordinator.
type Tx struct {
	tx bun.Tx
}

// Commit implements transaction.StoreTx.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback implements transaction.StoreTx.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// IDB returns the transaction as a query builder.
func (t *Tx) IDB() bun.IDB { return &t.tx }

// NewBeginner returns the transaction.Beginner that opens bun transactions on db.
func NewBeginner(db bun.IDB) transaction.Beginner {
	return transaction.BeginnerFunc(func(ctx context.Context) (transaction.StoreTx, error) {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "begin bun transaction")
		}
		return &Tx{tx: tx}, nil
	})
}

// conn returns the transaction carried by ctx, or db when none is open.
func conn(ctx context.Context, db bun.IDB) bun.IDB {
	if storeTx, ok := transaction.StoreTxFromContext(ctx); ok {
		if tx, ok := storeTx.(*Tx); ok {
			return tx.IDB()
		}
	}
	return db
}
