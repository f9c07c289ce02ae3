package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Config for database connection
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite3 database file.
	Path string
	// DSN overrides every other connection field when set.
	DSN string
}

// DataSourceName builds the driver specific connection string.
func (c Config) DataSourceName() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == dialect.SQLite {
		path := c.Path
		if path == "" {
			path = "tasktracker.db"
		}
		return fmt.Sprintf("file:%s?_fk=1&_txlock=immediate&_busy_timeout=5000", path)
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Open connects to PostgreSQL or SQLite and verifies the connection.
func Open(cfg Config) (*sqlx.DB, error) {
	if cfg.Driver == "" {
		cfg.Driver = dialect.Postgres
	}
	if cfg.Driver != dialect.Postgres && cfg.Driver != dialect.SQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Configure connection pool
	if cfg.Driver == dialect.SQLite {
		// A single connection keeps in-memory databases alive and serializes writers.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Printf("✅ Connected to %s", driverLabel(cfg.Driver))
	return db, nil
}

// Builder returns a SQL builder for the dialect of q.
func Builder(q Queryer) *entsql.DialectBuilder {
	return entsql.Dialect(q.DriverName())
}

// IsPostgres reports whether q talks to PostgreSQL.
func IsPostgres(q Queryer) bool {
	return q.DriverName() == dialect.Postgres
}

func driverLabel(driver string) string {
	if driver == dialect.SQLite {
		return "SQLite"
	}
	return "PostgreSQL"
}
