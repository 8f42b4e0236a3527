package repositorycache

import (
	"context"
	"database/sql"
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// RecordStore is the system of record for one entity type. Implementations
// join the transaction opened by a transaction.Coordinator carried in ctx.
//
// Lookups that match nothing return an error for which IsStoreNotFound is
// true: sql.ErrNoRows, or a go-errors value in the not found category.
type RecordStore interface {
	FindOne(ctx context.Context, f Filter) (Record, error)
	FindAll(ctx context.Context, f Filter, q Query) ([]Record, error)
	FindAndCount(ctx context.Context, f Filter, q Query) ([]Record, int, error)
	Create(ctx context.Context, record Record) (Record, error)
	// Update applies fields to the record matching f and returns it updated.
	Update(ctx context.Context, f Filter, fields Record) (Record, error)
	// Delete removes the record matching f and returns it as it was.
	Delete(ctx context.Context, f Filter) (Record, error)
}

// Query carries the store-only parts of a list read.
type Query struct {
	// Order holds "column [ASC|DESC]" entries, e.g. "created_at DESC".
	// Stores quote the column and reject anything else.
	Order  []string
	Limit  int
	Offset int
}

// Page is the result of FindAndCountAll.
type Page struct {
	Records     []Record `json:"records"`
	CurrentPage int      `json:"currentPage"`
	PageCount   int      `json:"pageCount"`
	PageSize    int      `json:"pageSize"`
	Count       int      `json:"count"`
}

// IsStoreNotFound reports whether err is a not found signal from a RecordStore.
func IsStoreNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || goerrors.IsNotFound(err)
}

// IsStoreValidation reports whether err is a validation signal from a RecordStore.
func IsStoreValidation(err error) bool {
	var verrs validation.Errors
	return goerrors.IsValidation(err) || errors.As(err, &verrs)
}
