package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// NewSQLiteStorage creates or opens a local SQLite database at path. It backs
// local runs and tests with the same schema the PostgreSQL store uses.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := newSQLStorage(ctx, db, dialectSQLite, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
