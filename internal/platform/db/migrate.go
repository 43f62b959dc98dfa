package db

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies all pending schema migrations from the embedded filesystem.
// An up-to-date schema is not an error.
func Migrate(fsys fs.FS, dsn string) error {
	source, err := iofs.New(fsys, ".")
	if err != nil {
		return fmt.Errorf("platform/db: migration source: %w", err)
	}
	// The pgx/v5 driver registers under the pgx5 scheme.
	dsn = strings.Replace(dsn, "postgres://", "pgx5://", 1)
	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("platform/db: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	return nil
}
