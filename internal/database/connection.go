package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// Config holds the Postgres connection parameters for the tunnel's
// persistence layer, sourced from config.yml and TUNNEL_DB_* overrides.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

func (c *Config) dsn() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode,
	)
}

// Open connects to Postgres with the tunnel's fixed pool sizing and
// verifies reachability before returning. Pool sizing is fixed rather
// than configurable since a single process relays a handful of tunnels.
func Open(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("database: failed to open connection to %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database: failed to ping %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	log.Printf("[INFO] database: connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return db, nil
}

// RunMigrations applies every pending migration under migrationsPath
// against the miners/shares/network_traffic schema.
func RunMigrations(cfg *Config, migrationsPath string) error {
	db, err := sql.Open("postgres", cfg.dsn())
	if err != nil {
		return fmt.Errorf("database: failed to open connection for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("database: failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", migrationsPath), "postgres", driver)
	if err != nil {
		return fmt.Errorf("database: failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("database: failed to apply migrations: %w", err)
	}

	log.Printf("[INFO] database: schema migrations applied from %s", migrationsPath)
	return nil
}
