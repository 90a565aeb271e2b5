// Package postgres provides per-table repositories against a
// primary/replica Postgres pair (it does not implement
// internal/storage.Adapter), grounded on the teacher's
// common/mpostgres.PostgresConnection (dbresolver wiring, migration run at
// connect time) and its per-repository tracing/squirrel/error-mapping
// conventions from components/*/internal/adapters/postgres/*.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/summa-ledger/summa/internal/mlog"
)

// Connection owns a primary/replica dbresolver.DB, connecting and migrating
// lazily the way mpostgres.PostgresConnection.GetDB does.
type Connection struct {
	PrimaryDSN    string
	ReplicaDSNs   []string
	MigrationsDir string
	Logger        mlog.Logger

	db        *dbresolver.DB
	connected bool
}

// Connect opens the primary and replica pools, runs migrations against the
// primary, and pings.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger = nonNilLogger(c.Logger)
	c.Logger.Info("connecting to postgres...")

	primary, err := sql.Open("pgx", c.PrimaryDSN)
	if err != nil {
		return fmt.Errorf("open primary: %w", err)
	}

	replicas := make([]*sql.DB, 0, len(c.ReplicaDSNs))
	for _, dsn := range c.ReplicaDSNs {
		r, err := sql.Open("pgx", dsn)
		if err != nil {
			return fmt.Errorf("open replica: %w", err)
		}
		replicas = append(replicas, r)
	}

	resolver := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replicas...),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
	)

	if c.MigrationsDir != "" {
		if err := c.migrate(primary); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	if err := resolver.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	c.db = &resolver
	c.connected = true
	c.Logger.Info("connected to postgres")
	return nil
}

func (c *Connection) migrate(primary *sql.DB) error {
	driver, err := postgres.WithInstance(primary, &postgres.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+c.MigrationsDir, "postgres", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// DB returns the resolver, connecting lazily if necessary.
func (c *Connection) DB(ctx context.Context) (*dbresolver.DB, error) {
	if !c.connected {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return c.db, nil
}

func nonNilLogger(l mlog.Logger) mlog.Logger {
	if l == nil {
		return &mlog.NoneLogger{}
	}
	return l
}
