package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dbehnke/wlink-terminal/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Use modernc.org/sqlite (pure Go, no CGO)
	"gorm.io/driver/sqlite"
	_ "modernc.org/sqlite"
)

// DB wraps the GORM database connection
type DB struct {
	db     *gorm.DB
	logger *logger.Logger
	path   string
}

// DefaultPath is used when no database path is configured
const DefaultPath = "wlink-terminal.db"

// pragmas tune sqlite for a single long-lived process
var pragmas = []string{
	"journal_mode=WAL",
	"synchronous=NORMAL",
	"busy_timeout=5000",
	"foreign_keys=ON",
}

// models lists every table the terminal persists
func models() []interface{} {
	return []interface{}{&CallRecord{}, &AlertRecord{}, &Alias{}}
}

// Config holds database configuration
type Config struct {
	Path string // Path to SQLite database file
}

// NewDB creates a new database connection
func NewDB(cfg Config, log *logger.Logger) (*DB, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("database")

	// modernc.org/sqlite registers itself as "sqlite"
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: cfg.Path}, &gorm.Config{
		Logger: gormlogger.New(&gormLogAdapter{log: log}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// sqlite allows one writer; the recorder and the API share this pool
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec("PRAGMA " + p); err != nil {
			return nil, fmt.Errorf("failed to apply pragma %q: %w", p, err)
		}
	}

	if err := db.AutoMigrate(models()...); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database initialized",
		logger.String("path", cfg.Path),
		logger.Int("tables", len(models())))
	return &DB{db: db, logger: log, path: cfg.Path}, nil
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.path
}

// Ping checks that the database is reachable
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the underlying GORM database instance
func (d *DB) GetDB() *gorm.DB {
	return d.db
}

// gormLogAdapter routes gorm's slow query and error lines to the
// database component logger
type gormLogAdapter struct {
	log *logger.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Warn("gorm", logger.String("detail", strings.TrimSpace(fmt.Sprintf(format, args...))))
}
