// Package db opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Dir is the per-workspace state directory holding the database, the mail
// outbox and the log.
const Dir = ".onboardline"

const fileName = "onboardline.db"

type Config struct {
	Workspace string
}

func root(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// EnsureWorkspace creates <workspace>/.onboardline and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(root(workspace), Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return dir, nil
}

// Path is the database file of a workspace.
func Path(workspace string) string {
	return filepath.Join(root(workspace), Dir, fileName)
}

// Open opens the workspace database. Foreign keys cascade case deletes to
// codes, employee records and assignments; WAL plus a busy timeout lets
// writers for different cases queue instead of failing with SQLITE_BUSY.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := "file:" + Path(cfg.Workspace) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
