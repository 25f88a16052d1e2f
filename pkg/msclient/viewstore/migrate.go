package viewstore

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver registration

	"github.com/syndicate-project/gateway/pkg/msclient/viewstore/migrations"
)

// runPostgresMigrations applies the embedded schema migrations against a
// postgres DSN using golang-migrate, ahead of GORM ever touching the
// connection. sqlite's schema is instead brought up via GORM's
// AutoMigrate: golang-migrate has no pure-Go sqlite driver that avoids
// cgo, and sqlite here is the single-process, disposable default, not
// the shared-fleet backend migrate's locking semantics are meant for.
func runPostgresMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("viewstore: open for migration: %w", err)
	}
	defer db.Close()

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{
		MigrationsTable: "viewstore_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("viewstore: postgres migrate driver: %w", err)
	}

	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("viewstore: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("viewstore: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("viewstore: migrate up: %w", err)
	}
	return nil
}
