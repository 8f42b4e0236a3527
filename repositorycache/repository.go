package repositorycache

import (
	"context"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/internal/metrics"
)

// EntityConfig describes one entity type handled by a Repository.
type EntityConfig struct {
	// Name is the entity type, used as the cache key namespace.
	Name string
	// Indexes are the unique field sets that get a filter key.
	Indexes [][]string
	// Relations are the entities embedded in records loaded from the store.
	Relations []Relation
	// References are foreign keys whose targets are evicted on every write.
	References []Reference
	// PatchAllowedFields lists the fields Patch may change. Patch fails when nil.
	PatchAllowedFields []string
	// CacheDisabled makes reads go to the store by default. Writes still
	// evict, since other entities may embed this one.
	CacheDisabled bool
	// DefaultOrder applies to list reads that set no order.
	DefaultOrder []string
	// Validate runs before Post. See MapRules.
	Validate func(Record) error
	// NotFoundMessage defaults to "<Name> not found".
	NotFoundMessage string
	// ValidationMessage defaults to "Invalid <Name> field data".
	ValidationMessage string
}

// MapRules builds an EntityConfig.Validate function from ozzo-validation key
// rules. Keys not listed are allowed.
func MapRules(keys ...*validation.KeyRules) func(Record) error {
	rule := validation.Map(keys...).AllowExtraKeys()
	return func(r Record) error {
		return validation.Validate(map[string]any(r), rule)
	}
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger of the repository and its cache repository.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
			r.cacheOpts = append(r.cacheOpts, WithCacheLogger(logger))
		}
	}
}

// WithMetrics sets the cache collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) {
		r.cacheOpts = append(r.cacheOpts, WithCacheMetrics(m))
	}
}

// WithCacheOptions forwards options to the underlying CacheRepository.
func WithCacheOptions(opts ...CacheOption) Option {
	return func(r *Repository) {
		r.cacheOpts = append(r.cacheOpts, opts...)
	}
}

// FindOption tunes a single FindOne call.
type FindOption func(*findOptions)

type findOptions struct {
	rejectOnEmpty bool
	useCache      *bool
}

// WithRejectOnEmpty controls whether a miss fails with NotFoundError. Default true.
func WithRejectOnEmpty(reject bool) FindOption {
	return func(o *findOptions) {
		o.rejectOnEmpty = reject
	}
}

// WithCache forces the read through the cache or straight to the store.
// Asking for the cache on an entity with CacheDisabled fails.
func WithCache(use bool) FindOption {
	return func(o *findOptions) {
		o.useCache = &use
	}
}

// Repository orchestrates the system of record and the derived cache for one
// entity type. Reads go cache first; writes mutate the store, then evict the
// cache and cascade to the entities that embedded or are referenced by the
// record. Run writes inside a transaction.Coordinator so a failure anywhere
// rolls both stores back.
type Repository struct {
	cfg       EntityConfig
	store     RecordStore
	cache     *CacheRepository
	index     *CacheIndex
	logger    *slog.Logger
	cacheOpts []CacheOption
}

// New registers cfg on index and returns the Repository for it. kv may be
// nil only when cfg.CacheDisabled is set; no cache work is done then.
func New(cfg EntityConfig, store RecordStore, kv cache.KeyValueStore, index *CacheIndex, opts ...Option) (*Repository, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, goerrors.New("entity name is required", goerrors.CategoryBadInput)
	}
	if store == nil {
		return nil, goerrors.New("record store is required for "+cfg.Name, goerrors.CategoryBadInput)
	}
	if kv == nil && !cfg.CacheDisabled {
		return nil, goerrors.New("key-value store is required for "+cfg.Name, goerrors.CategoryBadInput)
	}
	if index == nil {
		index = NewCacheIndex()
	}

	if err := index.RegisterIndexes(cfg.Name, cfg.Indexes); err != nil {
		return nil, err
	}
	if err := index.RegisterRelations(cfg.Name, cfg.Relations); err != nil {
		return nil, err
	}
	if err := index.RegisterReferences(cfg.Name, cfg.References); err != nil {
		return nil, err
	}

	r := &Repository{
		cfg:    cfg,
		store:  store,
		index:  index,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("entity", cfg.Name)

	if kv != nil {
		r.cache = NewCacheRepository(cfg.Name, index, kv, r.cacheOpts...)
	}
	return r, nil
}

// Entity returns the entity type name.
func (r *Repository) Entity() string { return r.cfg.Name }

// Cache returns the cache repository, or nil when no key-value store is wired.
func (r *Repository) Cache() *CacheRepository { return r.cache }

// FindOneByID is FindOne with the identity filter.
func (r *Repository) FindOneByID(ctx context.Context, id any, opts ...FindOption) (Record, error) {
	return r.FindOne(ctx, FilterByID(id), opts...)
}

// FindOne returns the record matching f. On a cached read the filter must be
// {id} or a registered index; a miss loads from the store and populates the
// cache. A miss returns NotFoundError, or nil when WithRejectOnEmpty(false).
func (r *Repository) FindOne(ctx context.Context, f Filter, opts ...FindOption) (Record, error) {
	o := findOptions{rejectOnEmpty: true}
	for _, opt := range opts {
		opt(&o)
	}
	useCache := !r.cfg.CacheDisabled
	if o.useCache != nil {
		useCache = *o.useCache
	}

	if len(f) == 0 {
		return nil, InvalidFilterTypeError(r.cfg.Name)
	}

	var (
		record Record
		found  bool
		err    error
	)
	if useCache {
		if r.cfg.CacheDisabled || r.cache == nil {
			return nil, CacheDisabledError(r.cfg.Name)
		}
		record, found, err = r.cache.FindOneOrCreate(ctx, f, func(ctx context.Context) (Record, bool, error) {
			return r.storeFindOne(ctx, f)
		})
	} else {
		record, found, err = r.storeFindOne(ctx, f)
	}
	if err != nil {
		return nil, r.translate(err)
	}

	if !found {
		if o.rejectOnEmpty {
			return nil, NotFoundError(r.notFoundMessage())
		}
		return nil, nil
	}
	return record, nil
}

// FindAll lists the records matching f from the store.
func (r *Repository) FindAll(ctx context.Context, f Filter, q Query) ([]Record, error) {
	records, err := r.store.FindAll(ctx, f, r.withDefaultOrder(q))
	if err != nil {
		return nil, r.translate(err)
	}
	return records, nil
}

// FindAndCountAll returns one page of the records matching f. Pages start at 1.
func (r *Repository) FindAndCountAll(ctx context.Context, f Filter, currentPage, pageSize int, q Query) (Page, error) {
	if currentPage < 1 {
		return Page{}, InvalidPaginationError("currentPage", currentPage)
	}
	if pageSize < 1 {
		return Page{}, InvalidPaginationError("pageSize", pageSize)
	}

	q = r.withDefaultOrder(q)
	q.Limit = pageSize
	q.Offset = (currentPage - 1) * pageSize

	records, count, err := r.store.FindAndCount(ctx, f, q)
	if err != nil {
		return Page{}, r.translate(err)
	}

	return Page{
		Records:     records,
		CurrentPage: currentPage,
		PageCount:   (count + pageSize - 1) / pageSize,
		PageSize:    pageSize,
		Count:       count,
	}, nil
}

// Post validates record, assigns a UUID when it has no id, writes it to the
// store and evicts the entities it references.
func (r *Repository) Post(ctx context.Context, record Record) (Record, error) {
	record = record.Clone()
	if record == nil {
		record = Record{}
	}

	if r.cfg.Validate != nil {
		if err := r.cfg.Validate(record); err != nil {
			return nil, ValidationError(r.validationMessage(), err)
		}
	}
	if _, ok := record.ID(); !ok {
		record[IDField] = uuid.NewString()
	}

	created, err := r.store.Create(ctx, record)
	if err != nil {
		return nil, r.translate(err)
	}

	if r.cache != nil {
		if err := r.cache.ClearReferenced(ctx, created); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// PatchByID is Patch with the identity filter.
func (r *Repository) PatchByID(ctx context.Context, id any, fields Record) (Record, error) {
	return r.Patch(ctx, FilterByID(id), fields)
}

// Patch applies the allowed subset of fields to the record matching f, then
// evicts its cache entries (old filter keys included) and cascades.
func (r *Repository) Patch(ctx context.Context, f Filter, fields Record) (Record, error) {
	if len(f) == 0 {
		return nil, InvalidFilterTypeError(r.cfg.Name)
	}
	allowed, err := r.filterPatchFields(fields)
	if err != nil {
		return nil, err
	}

	target, err := r.resolveFilter(ctx, f)
	if err != nil {
		r.evictBestEffort(ctx, f)
		return nil, r.translate(err)
	}

	updated, err := r.store.Update(ctx, target, allowed)
	if err != nil {
		r.evictBestEffort(ctx, f)
		return nil, r.translate(err)
	}

	if err := r.afterWrite(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteByID is Delete with the identity filter.
func (r *Repository) DeleteByID(ctx context.Context, id any) (Record, error) {
	return r.Delete(ctx, FilterByID(id))
}

// Delete removes the record matching f from the store, evicts it and cascades.
// The deleted record is returned.
func (r *Repository) Delete(ctx context.Context, f Filter) (Record, error) {
	if len(f) == 0 {
		return nil, InvalidFilterTypeError(r.cfg.Name)
	}

	target, err := r.resolveFilter(ctx, f)
	if err != nil {
		r.evictBestEffort(ctx, f)
		return nil, r.translate(err)
	}

	deleted, err := r.store.Delete(ctx, target)
	if err != nil {
		r.evictBestEffort(ctx, f)
		return nil, r.translate(err)
	}

	if err := r.afterWrite(ctx, deleted); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *Repository) afterWrite(ctx context.Context, record Record) error {
	if r.cache == nil {
		return nil
	}
	id, ok := record.ID()
	if !ok {
		return missingIDError(r.cfg.Name)
	}
	if err := r.cache.Clear(ctx, id, false); err != nil {
		return err
	}
	return r.cache.ClearReferenced(ctx, record)
}

// resolveFilter turns a filter on related entity fields into {id}; the store
// cannot update or delete through a join.
func (r *Repository) resolveFilter(ctx context.Context, f Filter) (Filter, error) {
	if !f.HasRelatedFields() {
		return f, nil
	}

	if r.cache != nil && !r.cfg.CacheDisabled {
		if _, err := r.index.ParseFilter(r.cfg.Name, f); err == nil {
			record, found, err := r.cache.FindOne(ctx, f)
			if err != nil {
				return nil, err
			}
			if found {
				if id, ok := record.ID(); ok {
					return FilterByID(id), nil
				}
			}
		}
	}

	record, found, err := r.storeFindOne(ctx, f)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, NotFoundError(r.notFoundMessage())
	}
	id, ok := record.ID()
	if !ok {
		return nil, missingIDError(r.cfg.Name)
	}
	return FilterByID(id), nil
}

// evictBestEffort drops whatever the cache holds for f after a failed write.
func (r *Repository) evictBestEffort(ctx context.Context, f Filter) {
	if r.cache == nil {
		return
	}
	if _, err := r.index.ParseFilter(r.cfg.Name, f); err != nil {
		return
	}
	if err := r.cache.DeleteByFilter(ctx, f); err != nil {
		r.logger.Warn("cache eviction after failed write", "error", err)
	}
}

func (r *Repository) filterPatchFields(fields Record) (Record, error) {
	if r.cfg.PatchAllowedFields == nil {
		return nil, InvalidPatchFieldsError(r.cfg.Name)
	}

	out := make(Record, len(fields))
	for _, field := range r.cfg.PatchAllowedFields {
		if v, ok := fields[field]; ok {
			out[field] = v
		}
	}
	if len(out) == 0 {
		return nil, ValidationError(r.validationMessage(), goerrors.NewValidation(
			r.validationMessage(),
			goerrors.FieldError{Field: r.cfg.Name, Message: "no updatable fields provided"},
		))
	}
	return out, nil
}

func (r *Repository) storeFindOne(ctx context.Context, f Filter) (Record, bool, error) {
	record, err := r.store.FindOne(ctx, f)
	if err != nil {
		if IsStoreNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, record != nil, nil
}

func (r *Repository) withDefaultOrder(q Query) Query {
	if len(q.Order) == 0 && len(r.cfg.DefaultOrder) > 0 {
		q.Order = append([]string(nil), r.cfg.DefaultOrder...)
	}
	return q
}

// translate maps store signals onto the error taxonomy. Errors already in it
// pass through.
func (r *Repository) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case hasTextCode(err, TextCodeNotFound), hasTextCode(err, TextCodeValidation):
		return err
	case IsStoreNotFound(err):
		return NotFoundError(r.notFoundMessage())
	case IsStoreValidation(err):
		return ValidationError(r.validationMessage(), err)
	default:
		return err
	}
}

func (r *Repository) notFoundMessage() string {
	if r.cfg.NotFoundMessage != "" {
		return r.cfg.NotFoundMessage
	}
	return displayName(r.cfg.Name) + " not found"
}

func (r *Repository) validationMessage() string {
	if r.cfg.ValidationMessage != "" {
		return r.cfg.ValidationMessage
	}
	return "Invalid " + displayName(r.cfg.Name) + " field data"
}
