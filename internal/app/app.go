// Package app wires configuration into stores, trackers and the publisher.
package app

import (
	"database/sql"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"field-history/internal/codec"
	"field-history/internal/config"
	"field-history/internal/fieldhistory"
	"field-history/internal/models"
	"field-history/internal/publisher"
	"field-history/internal/repository"
	"field-history/internal/server"
	"field-history/internal/storage/badger"
	"field-history/internal/storage/memory"
)

// historyBackend is a history store that also supports maintenance.
type historyBackend interface {
	fieldhistory.HistoryStore
	fieldhistory.Maintainer
}

type entityStores struct {
	orders fieldhistory.EntityStore[models.PizzaOrder]
	people fieldhistory.EntityStore[models.Person]
	owners fieldhistory.EntityStore[models.Owner]
	humans fieldhistory.EntityStore[models.Human]
}

// App holds every tracked entity type and the backend used to store history.
type App struct {
	Config   *config.Config
	Registry *fieldhistory.Registry

	Orders *fieldhistory.Coordinator[models.PizzaOrder]
	People *fieldhistory.Coordinator[models.Person]
	Owners *fieldhistory.Coordinator[models.Owner]
	Humans *fieldhistory.Coordinator[models.Human]

	// History is the maintenance view of the history backend.
	History fieldhistory.Maintainer
	// Backend is nil when the history backend has nothing to ping.
	Backend server.Pinger

	closers []func() error
}

func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Registry: fieldhistory.NewRegistry()}
	if err := a.setup(); err != nil {
		_ = a.Close()
		return nil, err
	}

	log.WithField("config", cfg.String()).Info("Field history initialized")
	return a, nil
}

func (a *App) setup() error {
	history, stores, opts, err := a.openBackend()
	if err != nil {
		return err
	}
	a.History = history

	opts = append(opts, fieldhistory.WithRegistry(a.Registry), fieldhistory.WithCodecName(a.Config.History.SerializerName))
	if a.Config.PublishingEnabled() {
		p, err := publisher.NewHistoryPublisher(a.Config.Kafka.BootstrapServers, a.Config.Kafka.HistoryTopic)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { p.Close(); return nil })
		opts = append(opts, fieldhistory.WithPublisher(p))
	}

	if a.Orders, err = fieldhistory.Register[models.PizzaOrder](models.PizzaOrderFields, stores.orders, history, opts...); err != nil {
		return err
	}
	if a.People, err = fieldhistory.Register[models.Person](models.PersonFields, stores.people, history, opts...); err != nil {
		return err
	}
	// Owner's name comes from the embedded Person, which the flat codec
	// cannot carry.
	ownerOpts := append(append([]fieldhistory.Option(nil), opts...), fieldhistory.WithCodecName(codec.NameJSONNested))
	if a.Owners, err = fieldhistory.Register[models.Owner](models.OwnerFields, stores.owners, history, ownerOpts...); err != nil {
		return err
	}
	if a.Humans, err = fieldhistory.Register[models.Human](models.HumanFields, stores.humans, history, opts...); err != nil {
		return err
	}
	return nil
}

func (a *App) openBackend() (historyBackend, entityStores, []fieldhistory.Option, error) {
	switch a.Config.History.Backend {
	case config.BackendPostgres:
		db, err := OpenDB(a.Config.DB)
		if err != nil {
			return nil, entityStores{}, nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.Backend = db

		stores := entityStores{
			orders: repository.NewPostgresOrderRepository(db),
			people: repository.NewPostgresPersonRepository(db),
			owners: repository.NewPostgresOwnerRepository(db),
			humans: repository.NewPostgresHumanRepository(db),
		}
		opts := []fieldhistory.Option{fieldhistory.WithTransactor(repository.NewTxManager(db))}
		return repository.NewPostgresHistoryRepository(db), stores, opts, nil

	case config.BackendBadger:
		bcfg := badger.DefaultConfig(a.Config.Badger.Path)
		if a.Config.Badger.InMemory {
			bcfg = badger.InMemoryConfig()
		}
		db, err := badger.Open(bcfg)
		if err != nil {
			return nil, entityStores{}, nil, err
		}
		history, err := badger.NewHistoryStore(db)
		if err != nil {
			_ = db.Close()
			return nil, entityStores{}, nil, err
		}
		a.closers = append(a.closers, history.Close)
		a.Backend = history

		stores, err := a.badgerStores(db)
		return history, stores, nil, err

	default:
		stores, err := memoryStores()
		return memory.NewHistoryStore(), stores, nil, err
	}
}

// badgerStores keeps host entities in the history database so identities
// survive restarts along with their history.
func (a *App) badgerStores(db *badgerdb.DB) (entityStores, error) {
	var (
		s   entityStores
		err error
	)
	if s.orders, err = newBadgerStore[models.PizzaOrder](a, db); err != nil {
		return s, err
	}
	if s.people, err = newBadgerStore[models.Person](a, db); err != nil {
		return s, err
	}
	if s.owners, err = newBadgerStore[models.Owner](a, db); err != nil {
		return s, err
	}
	s.humans, err = newBadgerStore[models.Human](a, db)
	return s, err
}

func newBadgerStore[T any](a *App, db *badgerdb.DB) (fieldhistory.EntityStore[T], error) {
	store, err := badger.NewEntityStore[T](db)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func memoryStores() (entityStores, error) {
	var (
		s   entityStores
		err error
	)
	if s.orders, err = newMemoryStore[models.PizzaOrder](); err != nil {
		return s, err
	}
	if s.people, err = newMemoryStore[models.Person](); err != nil {
		return s, err
	}
	if s.owners, err = newMemoryStore[models.Owner](); err != nil {
		return s, err
	}
	s.humans, err = newMemoryStore[models.Human]()
	return s, err
}

func newMemoryStore[T any]() (fieldhistory.EntityStore[T], error) {
	store, err := memory.NewEntityStore[T]()
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenDB opens and pings the Postgres database with the configured pool.
func OpenDB(cfg config.DB) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not ping the database: %w", err)
	}
	log.Info("Successfully connected to the PostgreSQL database.")
	return db, nil
}

// Migrate applies every pending migration. It is a no-op for backends other
// than Postgres.
func Migrate(cfg *config.Config) error {
	if cfg.History.Backend != config.BackendPostgres {
		log.WithField("backend", cfg.History.Backend).Info("Skipping database migration")
		return nil
	}

	log.Info("Starting database migration...")
	m, err := migrate.New(cfg.DB.MigrationsPath, cfg.DB.URL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not apply migration: %w", err)
	}
	log.Info("Database migration finished successfully.")
	return nil
}

// Close releases the backend and flushes the publisher, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
