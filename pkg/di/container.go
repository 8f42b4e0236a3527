package di

import (
	"database/sql"
	"errors"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-repository-indexcache/bunstore"
	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/internal/metrics"
	"github.com/goliatone/go-repository-indexcache/repositorycache"
	"github.com/goliatone/go-repository-indexcache/transaction"
)

// Supported DBConfig.Driver values.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// OpenDB opens the database selected by cfg with the matching bun dialect.
func OpenDB(cfg DBConfig) (*bun.DB, error) {
	switch cfg.Driver {
	case DriverSQLite:
		sqldb, err := sql.Open(DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "open sqlite")
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		sqldb, err := sql.Open(DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "open postgres")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, goerrors.New("unsupported db driver "+cfg.Driver, goerrors.CategoryBadInput)
	}
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger handed to coordinators and repositories.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRegisterer registers the collectors on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Container) {
		c.registerer = reg
	}
}

// WithDB uses db instead of opening Config.DB. The container does not close it.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithKeyValueStore uses kv instead of building one from Config.Cache. The
// container does not close it.
func WithKeyValueStore(kv cache.KeyValueStore) Option {
	return func(c *Container) {
		c.kv = kv
	}
}

// Container wires the shared pieces of the derived cache: one key-value
// store, one CacheIndex, the collectors and the system-of-record database.
// Repositories built from the same Container share the index, so relation
// cascades cross entity types.
type Container struct {
	config     Config
	logger     *slog.Logger
	registerer prometheus.Registerer
	registry   *prometheus.Registry

	db      *bun.DB
	ownsDB  bool
	kv      cache.KeyValueStore
	ownsKV  bool
	index   *repositorycache.CacheIndex
	metrics *metrics.Metrics
}

// NewContainer validates config and builds the container.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config: config,
		logger: slog.New(slog.DiscardHandler),
		index:  repositorycache.NewCacheIndex(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.kv == nil {
		kv, err := cache.NewStore(config.Cache)
		if err != nil {
			return nil, err
		}
		c.kv, c.ownsKV = kv, true
	}

	if c.db == nil && config.DB.Driver != "" {
		db, err := OpenDB(config.DB)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.db, c.ownsDB = db, true
	}

	if config.Metrics.Enabled {
		if c.registerer == nil {
			c.registry = prometheus.NewRegistry()
			c.registerer = c.registry
		}
		m, err := metrics.New(config.Metrics.Namespace, c.registerer)
		if err != nil {
			c.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "register metrics")
		}
		c.metrics = m
	}

	c.logger.Debug("container ready",
		"backend", config.Cache.Backend,
		"db_driver", config.DB.Driver,
		"metrics", config.Metrics.Enabled,
	)
	return c, nil
}

// NewContainerWithDefaults builds a container from DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

// Config returns the configuration the container was built with.
func (c *Container) Config() Config { return c.config }

// DB returns the system-of-record database, or nil when none is configured.
func (c *Container) DB() *bun.DB { return c.db }

// KeyValueStore returns the shared cache store.
func (c *Container) KeyValueStore() cache.KeyValueStore { return c.kv }

// Index returns the shared index and relation registry.
func (c *Container) Index() *repositorycache.CacheIndex { return c.index }

// Gatherer returns the private registry holding the collectors. It is nil when
// metrics are disabled or WithRegisterer was used.
func (c *Container) Gatherer() prometheus.Gatherer {
	if c.registry == nil {
		return nil
	}
	return c.registry
}

// NewCoordinator returns a coordinator that opens a database transaction for
// every top-level Use when a database is configured.
func (c *Container) NewCoordinator() *transaction.Coordinator {
	var beginner transaction.Beginner
	if c.db != nil {
		beginner = bunstore.NewBeginner(c.db)
	}
	return transaction.NewCoordinator(beginner,
		transaction.WithLogger(c.logger),
		transaction.WithMetrics(c.metrics),
	)
}

// NewRepository builds the cached repository for cfg over store.
func (c *Container) NewRepository(cfg repositorycache.EntityConfig, store repositorycache.RecordStore) (*repositorycache.Repository, error) {
	return repositorycache.New(cfg, store, c.kv, c.index,
		repositorycache.WithLogger(c.logger),
		repositorycache.WithMetrics(c.metrics),
	)
}

// NewTableRepository builds the cached repository for cfg over a bunstore.Store
// on the container database.
func (c *Container) NewTableRepository(cfg repositorycache.EntityConfig, opts ...bunstore.Option) (*repositorycache.Repository, error) {
	if c.db == nil {
		return nil, goerrors.New("container has no database", goerrors.CategoryBadInput)
	}
	opts = append([]bunstore.Option{bunstore.WithLogger(c.logger)}, opts...)
	return c.NewRepository(cfg, bunstore.New(c.db, cfg.Name, opts...))
}

// NewModelRepository builds the cached repository for cfg over an existing
// go-repository-bun repository of models. An empty cfg.Name defaults to the
// snake_case name of T.
//
// Since Go methods cannot have type parameters, this is a package-level function.
// Example: NewModelRepository[User](container, cfg, userRepository)
func NewModelRepository[T any](c *Container, cfg repositorycache.EntityConfig, repo bunstore.Repository[T], opts ...bunstore.RepositoryOption[T]) (*repositorycache.Repository, error) {
	if cfg.Name == "" {
		cfg.Name = repositorycache.EntityName[T]()
	}
	opts = append([]bunstore.RepositoryOption[T]{bunstore.WithRepositoryLogger[T](c.logger)}, opts...)
	return c.NewRepository(cfg, bunstore.NewRepositoryStore(repo, cfg.Name, opts...))
}

// Close releases the store and database the container opened itself.
func (c *Container) Close() error {
	var errs []error
	if c.ownsKV {
		if closer, ok := c.kv.(cache.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	if c.ownsDB && c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
