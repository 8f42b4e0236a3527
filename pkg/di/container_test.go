package di

import (
	"context"
	"database/sql"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-indexcache/cache"
	"github.com/goliatone/go-repository-indexcache/pkg/testsupport"
	"github.com/goliatone/go-repository-indexcache/repositorycache"
)

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	if container.KeyValueStore() == nil {
		t.Error("Container should have a non-nil key-value store")
	}
	if container.Index() == nil {
		t.Error("Container should have a non-nil index")
	}
	if container.DB() != nil {
		t.Error("default config opens no database")
	}
	if container.Gatherer() == nil {
		t.Error("expected a private registry when metrics are enabled")
	}
	if container.Config().Cache.Backend != cache.BackendMemory {
		t.Errorf("expected memory backend, got %q", container.Config().Cache.Backend)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := map[string]func(*Config){
		"cache":       func(c *Config) { c.Cache.Memory.Capacity = 0 },
		"driver":      func(c *Config) { c.DB.Driver = "oracle" },
		"missing dsn": func(c *Config) { c.DB.Driver = DriverSQLite },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if _, err := NewContainer(cfg); err == nil {
				t.Fatal("expected configuration error")
			}
		})
	}
}

func TestNewContainer_Redis(t *testing.T) {
	_, mr := testsupport.NewRedisClient(t)

	cfg := DefaultConfig()
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.Redis.Addr = mr.Addr()
	cfg.Cache.KeyPrefix = "test:shop:"

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if err := container.KeyValueStore().Set(context.Background(), "user:u1", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("test:shop:user:u1") {
		t.Error("expected the container store to write to redis")
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNewContainer_MetricsDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false

	container, err := NewContainer(cfg)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.Gatherer() != nil {
		t.Error("expected no registry with metrics disabled")
	}

	// the nil collectors must still be safe to use
	coord := container.NewCoordinator()
	if err := coord.Use(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Errorf("Use: %v", err)
	}
}

func TestNewContainer_WithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := newMemoryStore(t)

	container, err := NewContainer(DefaultConfig(), WithRegisterer(reg), WithKeyValueStore(store))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.Gatherer() != nil {
		t.Error("expected collectors on the supplied registerer only")
	}
	if container.KeyValueStore() != store {
		t.Error("expected the supplied store")
	}

	users, err := container.NewRepository(repositorycache.EntityConfig{Name: "user"}, newUserStore())
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	ctx := context.Background()
	users.FindOneByID(ctx, "u1")
	users.FindOneByID(ctx, "u1")

	hits, err := testutil.GatherAndCount(reg, "indexcache_cache_hits_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if hits != 1 {
		t.Errorf("expected one hit series, got %d", hits)
	}

	// a second container on the same registerer collides
	if _, err := NewContainer(DefaultConfig(), WithRegisterer(reg)); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestNewContainer_SharedIndex(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	cfg := repositorycache.EntityConfig{Name: "user", Indexes: [][]string{{"email"}}}
	if _, err := container.NewRepository(cfg, newUserStore()); err != nil {
		t.Fatalf("first NewRepository: %v", err)
	}
	_, err = container.NewRepository(cfg, newUserStore())
	if !repositorycache.IsAlreadyInitialized(err) {
		t.Errorf("expected AlreadyInitialized on the shared index, got %v", err)
	}
}

func TestNewTableRepository_NoDB(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	if _, err := container.NewTableRepository(repositorycache.EntityConfig{Name: "user"}); err == nil {
		t.Error("expected error without a database")
	}
}

func TestOpenDB(t *testing.T) {
	db, err := OpenDB(DBConfig{Driver: DriverSQLite, DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if db.Dialect().Name().String() != "sqlite" {
		t.Errorf("unexpected dialect %s", db.Dialect().Name())
	}

	pg, err := OpenDB(DBConfig{Driver: DriverPostgres, DSN: "postgres://localhost/shop?sslmode=disable"})
	if err != nil {
		t.Fatalf("OpenDB postgres: %v", err)
	}
	defer pg.Close()
	if pg.Dialect().Name().String() != "pg" {
		t.Errorf("unexpected dialect %s", pg.Dialect().Name())
	}

	if _, err := OpenDB(DBConfig{Driver: "mysql"}); err == nil {
		t.Error("expected unsupported driver to fail")
	}
}

func TestLoadConfig(t *testing.T) {
	path := testsupport.WriteFile(t, "indexcache.yaml", []byte(`
cache:
  backend: memory
  key_prefix: "prod:shop:"
  ttl: 90s
  memory:
    capacity: 500
db:
  driver: sqlite3
  dsn: "file::memory:"
metrics:
  namespace: shop
`))
	t.Setenv("INDEXCACHE_METRICS_ENABLED", "false")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Cache.KeyPrefix != "prod:shop:" {
		t.Errorf("expected key prefix from file, got %q", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("expected TTL 90s, got %v", cfg.Cache.TTL)
	}
	if cfg.Cache.Memory.Capacity != 500 {
		t.Errorf("expected capacity 500, got %d", cfg.Cache.Memory.Capacity)
	}
	if cfg.Cache.Memory.NumShards != DefaultConfig().Cache.Memory.NumShards {
		t.Errorf("expected default shards, got %d", cfg.Cache.Memory.NumShards)
	}
	if cfg.DB.Driver != DriverSQLite {
		t.Errorf("expected sqlite3 driver, got %q", cfg.DB.Driver)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected environment to disable metrics")
	}
	if cfg.Metrics.Namespace != "shop" {
		t.Errorf("expected namespace shop, got %q", cfg.Metrics.Namespace)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig("/does/not/exist.yaml"); err == nil {
		t.Error("expected missing file to fail")
	}

	path := testsupport.WriteFile(t, "bad.yaml", []byte("db:\n  driver: oracle\n"))
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected invalid driver to fail validation")
	}
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("INDEXCACHE_CACHE_BACKEND", "redis")
	t.Setenv("INDEXCACHE_CACHE_REDIS_ADDR", "cache.internal:6379")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Cache.Backend != cache.BackendRedis || cfg.Cache.Redis.Addr != "cache.internal:6379" {
		t.Errorf("expected redis settings from env, got %+v", cfg.Cache.Redis)
	}
}

type UserAccount struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// emptyAccountRepository is a repository with no rows
type emptyAccountRepository struct{}

func (emptyAccountRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (UserAccount, error) {
	return UserAccount{}, sql.ErrNoRows
}

func (emptyAccountRepository) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (UserAccount, error) {
	return UserAccount{}, sql.ErrNoRows
}

func (emptyAccountRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]UserAccount, int, error) {
	return nil, 0, nil
}

func (emptyAccountRepository) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]UserAccount, int, error) {
	return nil, 0, nil
}

func (emptyAccountRepository) Create(ctx context.Context, record UserAccount, criteria ...repository.InsertCriteria) (UserAccount, error) {
	return record, nil
}

func (emptyAccountRepository) CreateTx(ctx context.Context, tx bun.IDB, record UserAccount, criteria ...repository.InsertCriteria) (UserAccount, error) {
	return record, nil
}

func (emptyAccountRepository) Update(ctx context.Context, record UserAccount, criteria ...repository.UpdateCriteria) (UserAccount, error) {
	return record, nil
}

func (emptyAccountRepository) UpdateTx(ctx context.Context, tx bun.IDB, record UserAccount, criteria ...repository.UpdateCriteria) (UserAccount, error) {
	return record, nil
}

func (emptyAccountRepository) Delete(ctx context.Context, record UserAccount) error { return nil }

func (emptyAccountRepository) DeleteTx(ctx context.Context, tx bun.IDB, record UserAccount) error {
	return nil
}

func TestNewModelRepository(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	accounts, err := NewModelRepository[UserAccount](container, repositorycache.EntityConfig{
		Indexes: [][]string{{"email"}},
	}, emptyAccountRepository{})
	if err != nil {
		t.Fatalf("NewModelRepository: %v", err)
	}
	if accounts.Entity() != "user_account" {
		t.Errorf("expected entity user_account, got %q", accounts.Entity())
	}
	if got := container.Index().Indexes("user_account"); len(got) != 1 {
		t.Errorf("expected the email index to be registered, got %v", got)
	}

	_, err = accounts.FindOne(context.Background(), repositorycache.Filter{"email": "a@b.com"})
	if !repositorycache.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
