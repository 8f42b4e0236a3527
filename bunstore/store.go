package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/repositorycache"
)

var _ repositorycache.RecordStore = (*Store)(nil)

// JoinKind is the cardinality of a Join.
type JoinKind int

const (
	// BelongsTo embeds one row of Table whose id is the parent's ForeignKey column.
	BelongsTo JoinKind = iota + 1
	// HasMany embeds every row of Table whose ForeignKey column is the parent's id.
	HasMany
)

// Join loads related rows into every record read by a Store. Declare the
// matching repositorycache.Relation so the cache tracks the embedded records.
type Join struct {
	As         string
	Table      string
	Kind       JoinKind
	ForeignKey string
	Joins      []Join
}

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name. The default is the plural of the entity.
func WithTable(table string) Option {
	return func(s *Store) {
		if table != "" {
			s.table = table
		}
	}
}

// WithJoins sets the related rows loaded with every record.
func WithJoins(joins ...Join) Option {
	return func(s *Store) {
		s.joins = append(s.joins, joins...)
	}
}

// WithLogger sets the logger used for query failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is a repositorycache.RecordStore over one table, reading and writing
// rows as maps. Queries run inside the bun transaction opened by the
// transaction.Coordinator in ctx, or on db when none is open.
//
// Filters on related fields ({"$customer.email$": v}) are resolved through the
// Join declared with As "customer" as a subquery.
type Store struct {
	db     bun.IDB
	entity string
	table  string
	joins  []Join
	logger *slog.Logger
}

// New creates the Store for entity.
func New(db bun.IDB, entity string, opts ...Option) *Store {
	s := &Store{
		db:     db,
		entity: entity,
		table:  inflection.Plural(entity),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("entity", entity, "table", s.table)
	return s
}

// Table returns the table the store reads and writes.
func (s *Store) Table() string { return s.table }

func (s *Store) FindOne(ctx context.Context, f repositorycache.Filter) (repositorycache.Record, error) {
	db := conn(ctx, s.db)
	q, err := s.where(db, db.NewSelect().Table(s.table), f)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	if err := q.Limit(1).Scan(ctx, &row); err != nil {
		return nil, s.queryError("find one", err)
	}
	if err := s.loadJoins(ctx, db, row, s.joins); err != nil {
		return nil, err
	}
	return repositorycache.Record(row), nil
}

func (s *Store) FindAll(ctx context.Context, f repositorycache.Filter, query repositorycache.Query) ([]repositorycache.Record, error) {
	db := conn(ctx, s.db)
	q, err := s.where(db, db.NewSelect().Table(s.table), f)
	if err != nil {
		return nil, err
	}
	if q, err = applyQuery(q, query); err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, s.queryError("find all", err)
	}

	records := make([]repositorycache.Record, 0, len(rows))
	for _, row := range rows {
		if err := s.loadJoins(ctx, db, row, s.joins); err != nil {
			return nil, err
		}
		records = append(records, repositorycache.Record(row))
	}
	return records, nil
}

func (s *Store) FindAndCount(ctx context.Context, f repositorycache.Filter, query repositorycache.Query) ([]repositorycache.Record, int, error) {
	db := conn(ctx, s.db)
	q, err := s.where(db, db.NewSelect().Table(s.table), f)
	if err != nil {
		return nil, 0, err
	}
	count, err := q.Count(ctx)
	if err != nil {
		return nil, 0, s.queryError("count", err)
	}

	records, err := s.FindAll(ctx, f, query)
	if err != nil {
		return nil, 0, err
	}
	return records, count, nil
}

// Create inserts the scalar columns of record and returns the stored row.
// Embedded relations are not written.
func (s *Store) Create(ctx context.Context, record repositorycache.Record) (repositorycache.Record, error) {
	id, ok := record.ID()
	if !ok {
		return nil, goerrors.New(s.entity+" record has no id", goerrors.CategoryBadInput)
	}

	values := s.columns(record)
	db := conn(ctx, s.db)
	if _, err := db.NewInsert().Model(&values).TableExpr("?", bun.Ident(s.table)).Exec(ctx); err != nil {
		return nil, s.queryError("insert", err)
	}
	return s.FindOne(ctx, repositorycache.FilterByID(id))
}

// Update applies fields to the row matching f and returns it as stored.
func (s *Store) Update(ctx context.Context, f repositorycache.Filter, fields repositorycache.Record) (repositorycache.Record, error) {
	current, err := s.FindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	id, _ := current.ID()

	values := s.columns(fields)
	delete(values, repositorycache.IDField)
	if len(values) > 0 {
		db := conn(ctx, s.db)
		_, err := db.NewUpdate().
			Model(&values).
			TableExpr("?", bun.Ident(s.table)).
			Where("? = ?", bun.Ident(repositorycache.IDField), id).
			Exec(ctx)
		if err != nil {
			return nil, s.queryError("update", err)
		}
	}
	return s.FindOne(ctx, repositorycache.FilterByID(id))
}

// Delete removes the row matching f and returns it as it was, joins included.
func (s *Store) Delete(ctx context.Context, f repositorycache.Filter) (repositorycache.Record, error) {
	current, err := s.FindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	id, _ := current.ID()

	db := conn(ctx, s.db)
	_, err = db.NewDelete().
		TableExpr("?", bun.Ident(s.table)).
		Where("? = ?", bun.Ident(repositorycache.IDField), id).
		Exec(ctx)
	if err != nil {
		return nil, s.queryError("delete", err)
	}
	return current, nil
}

// where adds one condition per filter field, in field order.
func (s *Store) where(db bun.IDB, q *bun.SelectQuery, f repositorycache.Filter) (*bun.SelectQuery, error) {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		value := f[field]
		if !cache.IsRelatedField(field) {
			q = whereColumn(q, field, value)
			continue
		}

		path := cache.NormalizeField(field)
		as, column, ok := strings.Cut(path, ".")
		join, found := findJoin(s.joins, as)
		if !ok || !found {
			return nil, goerrors.New(fmt.Sprintf("no join %q for filter field %s", as, field), goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"entity": s.entity, "field": field})
		}

		switch join.Kind {
		case BelongsTo:
			sub := whereColumn(db.NewSelect().Table(join.Table).Column(repositorycache.IDField), column, value)
			q = q.Where("? IN (?)", bun.Ident(join.ForeignKey), sub)
		case HasMany:
			sub := whereColumn(db.NewSelect().Table(join.Table).Column(join.ForeignKey), column, value)
			q = q.Where("? IN (?)", bun.Ident(repositorycache.IDField), sub)
		}
	}
	return q, nil
}

func whereColumn(q *bun.SelectQuery, column string, value any) *bun.SelectQuery {
	if value == nil {
		return q.Where("? IS NULL", bun.Ident(column))
	}
	return q.Where("? = ?", bun.Ident(column), value)
}

func findJoin(joins []Join, as string) (Join, bool) {
	for _, j := range joins {
		if j.As == as {
			return j, true
		}
	}
	return Join{}, false
}

func (s *Store) loadJoins(ctx context.Context, db bun.IDB, row map[string]any, joins []Join) error {
	normalizeRow(row)
	for _, j := range joins {
		switch j.Kind {
		case BelongsTo:
			fk, ok := row[j.ForeignKey]
			if !ok || fk == nil {
				row[j.As] = nil
				continue
			}
			var related map[string]any
			err := db.NewSelect().
				Table(j.Table).
				Where("? = ?", bun.Ident(repositorycache.IDField), fk).
				Limit(1).
				Scan(ctx, &related)
			if errors.Is(err, sql.ErrNoRows) {
				row[j.As] = nil
				continue
			}
			if err != nil {
				return s.queryError("load "+j.As, err)
			}
			if err := s.loadJoins(ctx, db, related, j.Joins); err != nil {
				return err
			}
			row[j.As] = related

		case HasMany:
			var related []map[string]any
			err := db.NewSelect().
				Table(j.Table).
				Where("? = ?", bun.Ident(j.ForeignKey), row[repositorycache.IDField]).
				OrderExpr("? ASC", bun.Ident(repositorycache.IDField)).
				Scan(ctx, &related)
			if err != nil {
				return s.queryError("load "+j.As, err)
			}
			items := make([]any, 0, len(related))
			for _, r := range related {
				if err := s.loadJoins(ctx, db, r, j.Joins); err != nil {
					return err
				}
				items = append(items, r)
			}
			row[j.As] = items
		}
	}
	return nil
}

// columns keeps the scalar values of record that are not join paths.
func (s *Store) columns(record repositorycache.Record) map[string]any {
	values := make(map[string]any, len(record))
	for k, v := range record {
		if _, isJoin := findJoin(s.joins, k); isJoin {
			continue
		}
		switch v.(type) {
		case map[string]any, repositorycache.Record, []any, []map[string]any:
			continue
		}
		values[k] = v
	}
	return values
}

// normalizeRow turns driver byte slices into strings so rows compare and
// encode like the values they were written with.
func normalizeRow(row map[string]any) {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
}

func (s *Store) queryError(op string, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("query failed", "op", op, "error", err)
	}
	return fmt.Errorf("%s %s: %w", s.entity, op, err)
}
