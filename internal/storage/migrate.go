package storage

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies any pending schema migrations. The connection string must
// be in URL form for the migration driver.
func Migrate(connection string) error {
	url, err := migrateURL(connection)
	if err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("open migration target: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, _, _ := m.Version()
	slog.Info("schema migrated", "version", version)
	return nil
}

// migrateURL rewrites a postgres:// connection URL onto the pgx5 migration
// driver scheme.
func migrateURL(connection string) (string, error) {
	switch {
	case strings.HasPrefix(connection, "postgres://"):
		return "pgx5://" + strings.TrimPrefix(connection, "postgres://"), nil
	case strings.HasPrefix(connection, "postgresql://"):
		return "pgx5://" + strings.TrimPrefix(connection, "postgresql://"), nil
	case strings.HasPrefix(connection, "pgx5://"):
		return connection, nil
	default:
		return "", fmt.Errorf("migrations require a URL-form connection string, got %q", redact(connection))
	}
}

// redact hides credential-bearing fragments from error messages.
func redact(connection string) string {
	if i := strings.IndexByte(connection, '@'); i >= 0 {
		return "***" + connection[i:]
	}
	if strings.Contains(connection, "password=") {
		return "***"
	}
	return connection
}
