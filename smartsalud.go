package smartsalud

import (
	"database/sql"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/redis/go-redis/v9"

	"github.com/AutonomosCdM/smartSalud-V2/internal/config"
	"github.com/AutonomosCdM/smartSalud-V2/internal/engine"
	"github.com/AutonomosCdM/smartSalud-V2/internal/intent"
	"github.com/AutonomosCdM/smartSalud-V2/internal/persistence"
	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine              = api.Engine
	Instance            = api.Instance
	InstanceListOptions = api.InstanceListOptions
	Status              = api.Status
	Step                = api.Step
	Outcome             = api.Outcome
	Appointment         = api.Appointment
	Slot                = api.Slot
	Event               = api.Event
	Catalogue           = api.Catalogue
	Collaborators       = api.Collaborators
	Classification      = api.Classification

	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// IntentOptions configures the cascading intent classifier used by
// HandleReply. The zero value runs on keyword matching alone.
type IntentOptions = intent.Config

// IntentTier configures one remote classification model.
type IntentTier = intent.TierConfig

// Config is the service configuration loaded by LoadConfig.
type Config = config.Config

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultCatalogue     = api.DefaultCatalogue
	LoadConfig           = config.Load
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusWaiting   = api.StatusWaiting
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// Options carries everything an engine needs besides its storage backend.
type Options struct {
	// Catalogue defaults to DefaultCatalogue().
	Catalogue Catalogue

	// Collaborators are the external services the workflow steps talk to.
	Collaborators Collaborators

	// Intent configures the reply classifier.
	Intent IntentOptions

	// Observer receives lifecycle callbacks.
	Observer Observer
}

func (o Options) engineConfig(store persistence.KVStore) engine.Config {
	return engine.Config{
		Store:         store,
		Catalogue:     o.Catalogue,
		Collaborators: o.Collaborators,
		Intent:        o.Intent,
		Observer:      o.Observer,
	}
}

// Engine constructors. These wrap the internal packages so external callers
// never need to import them.

// NewInMemoryEngine returns an Engine backed entirely by in-memory storage.
// State does not survive a restart; meant for tests and local development.
func NewInMemoryEngine(opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewMemoryStore()))
}

// NewSQLiteEngine returns an Engine that persists workflow instances in a
// SQLite database. The caller owns the *sql.DB and must import a SQLite
// driver such as modernc.org/sqlite.
func NewSQLiteEngine(db *sql.DB, opts Options) (Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return engine.New(opts.engineConfig(store))
}

// NewBadgerEngine returns an Engine that persists workflow instances in the
// given Badger database.
func NewBadgerEngine(db *badger.DB, opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewBadgerStore(db)))
}

// NewRedisEngine returns an Engine that persists workflow instances in
// Redis under the given key prefix ("smartsalud:" when empty).
func NewRedisEngine(client *redis.Client, prefix string, opts Options) (Engine, error) {
	return engine.New(opts.engineConfig(persistence.NewRedisStore(client, prefix)))
}

// Open builds an Engine from a loaded configuration, choosing the storage
// backend it names. The returned close function releases whatever the
// backend opened; it is non-nil even for backends with nothing to close.
func Open(cfg *Config, opts Options) (Engine, func() error, error) {
	noop := func() error { return nil }

	if opts.Intent.Primary == (IntentTier{}) {
		opts.Intent.Primary = tierFromConfig(cfg.Intent.Primary)
	}
	if opts.Intent.Secondary == (IntentTier{}) {
		opts.Intent.Secondary = tierFromConfig(cfg.Intent.Secondary)
	}
	if opts.Collaborators.StaffContact == "" {
		opts.Collaborators.StaffContact = cfg.Staff.Contact
	}

	switch cfg.Storage.Backend {
	case config.BackendMemory:
		eng, err := NewInMemoryEngine(opts)
		return eng, noop, err

	case config.BackendSQLite:
		db, err := sql.Open("sqlite", cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite database: %w", err)
		}
		eng, err := NewSQLiteEngine(db, opts)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return eng, db.Close, nil

	case config.BackendBadger:
		store, err := persistence.OpenBadgerStore(cfg.Storage.BadgerDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger database: %w", err)
		}
		eng, err := engine.New(opts.engineConfig(store))
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		return eng, store.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		eng, err := NewRedisEngine(client, cfg.Storage.Redis.Prefix, opts)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return eng, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func tierFromConfig(t config.ModelTier) IntentTier {
	return IntentTier{
		BaseURL: t.BaseURL,
		APIKey:  t.APIKey,
		Model:   t.Model,
	}
}
