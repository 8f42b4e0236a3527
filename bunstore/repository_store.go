package bunstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/mitchellh/mapstructure"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/repositorycache"
)

// Repository is the part of repository.Repository[T] a RepositoryStore uses.
type Repository[T any] interface {
	Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error)
	GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
	ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error)
	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error)
	Delete(ctx context.Context, record T) error
	DeleteTx(ctx context.Context, tx bun.IDB, record T) error
}

// Mapper converts between a model and its record form.
type Mapper[T any] interface {
	ToRecord(model T) (repositorycache.Record, error)
	FromRecord(record repositorycache.Record) (T, error)
}

// TagMapper maps models through their struct tags. The zero value uses the
// json tag.
type TagMapper[T any] struct {
	TagName string
}

func (m TagMapper[T]) tag() string {
	if m.TagName == "" {
		return "json"
	}
	return m.TagName
}

func (m TagMapper[T]) ToRecord(model T) (repositorycache.Record, error) {
	out := map[string]any{}
	if err := m.decode(model, &out); err != nil {
		return nil, err
	}
	return repositorycache.Record(out), nil
}

func (m TagMapper[T]) FromRecord(record repositorycache.Record) (T, error) {
	var model T
	err := m.decode(map[string]any(record), &model)
	return model, err
}

func (m TagMapper[T]) decode(in, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          m.tag(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(in); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("map %T", out))
	}
	return nil
}

// RepositoryOption configures a RepositoryStore.
type RepositoryOption[T any] func(*RepositoryStore[T])

// WithMapper replaces the TagMapper.
func WithMapper[T any](mapper Mapper[T]) RepositoryOption[T] {
	return func(s *RepositoryStore[T]) {
		if mapper != nil {
			s.mapper = mapper
		}
	}
}

// WithRepositoryLogger sets the logger used for repository failures.
func WithRepositoryLogger[T any](logger *slog.Logger) RepositoryOption[T] {
	return func(s *RepositoryStore[T]) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// RepositoryStore adapts a go-repository-bun repository of models to a
// repositorycache.RecordStore. The *Tx variants are used while a transaction
// opened by NewBeginner is carried in ctx.
//
// Filters on related fields are not supported; use Store with joins for
// entities that need them.
type RepositoryStore[T any] struct {
	repo   Repository[T]
	entity string
	mapper Mapper[T]
	logger *slog.Logger
}

// NewRepositoryStore wraps repo as the RecordStore for entity.
func NewRepositoryStore[T any](repo Repository[T], entity string, opts ...RepositoryOption[T]) *RepositoryStore[T] {
	s := &RepositoryStore[T]{
		repo:   repo,
		entity: entity,
		mapper: TagMapper[T]{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("entity", entity)
	return s
}

func (s *RepositoryStore[T]) FindOne(ctx context.Context, f repositorycache.Filter) (repositorycache.Record, error) {
	criteria, err := s.criteria(f, repositorycache.Query{})
	if err != nil {
		return nil, err
	}
	model, err := s.get(ctx, criteria)
	if err != nil {
		return nil, err
	}
	return s.mapper.ToRecord(model)
}

func (s *RepositoryStore[T]) FindAll(ctx context.Context, f repositorycache.Filter, q repositorycache.Query) ([]repositorycache.Record, error) {
	records, _, err := s.FindAndCount(ctx, f, q)
	return records, err
}

func (s *RepositoryStore[T]) FindAndCount(ctx context.Context, f repositorycache.Filter, q repositorycache.Query) ([]repositorycache.Record, int, error) {
	criteria, err := s.criteria(f, q)
	if err != nil {
		return nil, 0, err
	}

	var models []T
	var total int
	if tx, ok := txFromContext(ctx); ok {
		models, total, err = s.repo.ListTx(ctx, tx, criteria...)
	} else {
		models, total, err = s.repo.List(ctx, criteria...)
	}
	if err != nil {
		return nil, 0, s.repoError("list", err)
	}

	records := make([]repositorycache.Record, 0, len(models))
	for _, model := range models {
		record, err := s.mapper.ToRecord(model)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	return records, total, nil
}

func (s *RepositoryStore[T]) Create(ctx context.Context, record repositorycache.Record) (repositorycache.Record, error) {
	model, err := s.mapper.FromRecord(record)
	if err != nil {
		return nil, err
	}

	var created T
	if tx, ok := txFromContext(ctx); ok {
		created, err = s.repo.CreateTx(ctx, tx, model)
	} else {
		created, err = s.repo.Create(ctx, model)
	}
	if err != nil {
		return nil, s.repoError("create", err)
	}
	return s.mapper.ToRecord(created)
}

// Update loads the model matching f, applies fields and saves it.
func (s *RepositoryStore[T]) Update(ctx context.Context, f repositorycache.Filter, fields repositorycache.Record) (repositorycache.Record, error) {
	current, err := s.FindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		if k == repositorycache.IDField {
			continue
		}
		current[k] = v
	}

	model, err := s.mapper.FromRecord(current)
	if err != nil {
		return nil, err
	}

	var updated T
	if tx, ok := txFromContext(ctx); ok {
		updated, err = s.repo.UpdateTx(ctx, tx, model)
	} else {
		updated, err = s.repo.Update(ctx, model)
	}
	if err != nil {
		return nil, s.repoError("update", err)
	}
	return s.mapper.ToRecord(updated)
}

func (s *RepositoryStore[T]) Delete(ctx context.Context, f repositorycache.Filter) (repositorycache.Record, error) {
	criteria, err := s.criteria(f, repositorycache.Query{})
	if err != nil {
		return nil, err
	}
	model, err := s.get(ctx, criteria)
	if err != nil {
		return nil, err
	}
	record, err := s.mapper.ToRecord(model)
	if err != nil {
		return nil, err
	}

	if tx, ok := txFromContext(ctx); ok {
		err = s.repo.DeleteTx(ctx, tx, model)
	} else {
		err = s.repo.Delete(ctx, model)
	}
	if err != nil {
		return nil, s.repoError("delete", err)
	}
	return record, nil
}

func (s *RepositoryStore[T]) get(ctx context.Context, criteria []repository.SelectCriteria) (T, error) {
	var (
		model T
		err   error
	)
	if tx, ok := txFromContext(ctx); ok {
		model, err = s.repo.GetTx(ctx, tx, criteria...)
	} else {
		model, err = s.repo.Get(ctx, criteria...)
	}
	if err != nil {
		return model, s.repoError("get", err)
	}
	return model, nil
}

func (s *RepositoryStore[T]) criteria(f repositorycache.Filter, q repositorycache.Query) ([]repository.SelectCriteria, error) {
	fields := make([]string, 0, len(f))
	for field := range f {
		if cache.IsRelatedField(field) {
			return nil, goerrors.New("related filter fields need a join store", goerrors.CategoryBadInput).
				WithMetadata(map[string]any{"entity": s.entity, "field": field})
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	criteria := make([]repository.SelectCriteria, 0, len(fields)+3)
	for _, field := range fields {
		column, value := field, f[field]
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return whereColumn(q, column, value)
		})
	}
	orders, err := parseOrder(q.Order)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		criteria = append(criteria, o.apply)
	}
	if q.Limit > 0 {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Limit(q.Limit)
		})
	}
	if q.Offset > 0 {
		criteria = append(criteria, func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Offset(q.Offset)
		})
	}
	return criteria, nil
}

func (s *RepositoryStore[T]) repoError(op string, err error) error {
	if !repositorycache.IsStoreNotFound(err) && !repositorycache.IsStoreValidation(err) {
		s.logger.Error("repository call failed", "op", op, "error", err)
	}
	return fmt.Errorf("%s %s: %w", s.entity, op, err)
}

func txFromContext(ctx context.Context) (bun.IDB, bool) {
	db := conn(ctx, nil)
	return db, db != nil
}

var _ repositorycache.RecordStore = (*RepositoryStore[struct{}])(nil)
