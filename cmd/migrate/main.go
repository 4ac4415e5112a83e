// Package main provides a database migration runner for the result archive.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"

	"github.com/cory-johannsen/gamerunner/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	source, dsn, err := target(cfg.Database)
	if err != nil {
		log.Fatal(err)
	}
	m, err := migrate.New(source, dsn)
	if err != nil {
		log.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()

	err = apply(m, *direction, *steps)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migration %s failed: %v", *direction, err)
	}

	version, dirty, _ := m.Version()
	elapsed := time.Since(start)

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintf(os.Stdout, "no changes (driver=%s version=%d dirty=%v) [%s]\n", cfg.Database.Driver, version, dirty, elapsed)
	} else {
		fmt.Fprintf(os.Stdout, "migrated %s %s to version=%d dirty=%v [%s]\n", cfg.Database.Driver, *direction, version, dirty, elapsed)
	}
}

// target returns the migration source and database URL for the configured driver.
func target(db config.DatabaseConfig) (string, string, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return "file://migrations", db.DSN(), nil
	case config.DriverSQLite:
		return "file://internal/storage/sqlite/migrations", "sqlite://" + db.Path, nil
	default:
		return "", "", fmt.Errorf("database driver %q has no migrations; set database.driver to postgres or sqlite", db.Driver)
	}
}

// migrator is the subset of *migrate.Migrate that apply drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
}

// apply runs direction on m. steps limits the run to that many migrations
// when positive.
func apply(m migrator, direction string, steps int) error {
	switch direction {
	case "up":
		if steps > 0 {
			return m.Steps(steps)
		}
		return m.Up()
	case "down":
		if steps > 0 {
			return m.Steps(-steps)
		}
		return m.Down()
	default:
		return fmt.Errorf("invalid direction %q: must be 'up' or 'down'", direction)
	}
}
