package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	// Pure Go SQLite driver registered as "sqlite".
	_ "github.com/glebarez/sqlite"
	// Postgres driver registered as "postgres".
	_ "github.com/lib/pq"

	"github.com/user00265/dxbridge/internal/config"
)

// Dialect names the SQL flavour behind a Client.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Client abstracts the database behind the spot archive.
type Client interface {
	// GetDB returns the raw *sql.DB instance.
	GetDB() *sql.DB
	// Dialect reports which SQL flavour queries must be written in.
	Dialect() Dialect
	// Close closes the database connection.
	Close() error
	// Ping checks the database connection.
	Ping(ctx context.Context) error
}

// SQLiteClient implements Client for SQLite databases.
type SQLiteClient struct {
	db       *sql.DB
	filePath string
}

// NewSQLiteClient opens (creating if needed) dataDir/dbName in WAL mode.
func NewSQLiteClient(dataDir, dbName string) (*SQLiteClient, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory must be specified for SQLite database")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	dbPath := filepath.Join(dataDir, dbName)
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&mode=rwc", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", dbPath, err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	return &SQLiteClient{db: db, filePath: dbPath}, nil
}

// GetDB returns the raw *sql.DB instance.
func (s *SQLiteClient) GetDB() *sql.DB {
	return s.db
}

func (s *SQLiteClient) Dialect() Dialect {
	return DialectSQLite
}

// Path returns the database file path.
func (s *SQLiteClient) Path() string {
	return s.filePath
}

// Close closes the database connection.
func (s *SQLiteClient) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteClient) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PostgresClient implements Client for PostgreSQL.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient connects to dsn and verifies the connection.
func NewPostgresClient(ctx context.Context, dsn string) (*PostgresClient, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN must be specified")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}
	return &PostgresClient{db: db}, nil
}

func (p *PostgresClient) GetDB() *sql.DB {
	return p.db
}

func (p *PostgresClient) Dialect() Dialect {
	return DialectPostgres
}

func (p *PostgresClient) Close() error {
	return p.db.Close()
}

func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Open returns the Client selected by cfg.Driver, or nil for StoreNone.
func Open(ctx context.Context, cfg config.StoreConfig, dataDir string) (Client, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		c, err := NewSQLiteClient(dataDir, cfg.SQLiteName)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.StorePostgres:
		c, err := NewPostgresClient(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.StoreNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Rebind rewrites '?' placeholders into the dialect's form.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
