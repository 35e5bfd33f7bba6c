package postgres

import (
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus is the schema version recorded by golang-migrate.
type MigrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (c *Connection) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "open embedded migrations")
	}
	driver, err := pgxmigrate.WithInstance(c.db, &pgxmigrate.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "create migrate instance")
	}
	return m, nil
}

// MigrateUp applies every pending migration. No pending migrations is not an
// error.
func (c *Connection) MigrateUp() error {
	m, err := c.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "apply migrations")
	}
	return c.logStatus(m)
}

// MigrateDown rolls back steps migrations.
func (c *Connection) MigrateDown(steps int) error {
	if steps <= 0 {
		return errors.Validation("steps", "steps must be greater than 0")
	}
	m, err := c.migrator()
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "roll back migrations")
	}
	return c.logStatus(m)
}

// MigrationVersion reports the current schema version. A database that was
// never migrated reports version 0.
func (c *Connection) MigrationVersion() (MigrationStatus, error) {
	m, err := c.migrator()
	if err != nil {
		return MigrationStatus{}, err
	}
	v, dirty, err := m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, nil
	}
	if err != nil {
		return MigrationStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "read migration version")
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}

func (c *Connection) logStatus(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if err != nil && !stderrors.Is(err, migrate.ErrNilVersion) {
		c.logger.Warn("failed to read migration version", logging.Err(err))
		return nil
	}
	c.logger.Info("migrations complete", logging.Int64("version", int64(v)), logging.Bool("dirty", dirty))
	return nil
}
