package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sirosfoundation/go-listener-manager/internal/domain"
)

// SQLiteStore keeps descriptors in a SQLite table, one row per server
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (and creates if needed) the database at path
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "servers.db"
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir failed: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite failed: %w", err)
	}
	// One connection keeps the replace transaction and reads serialized
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS servers (
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			port INTEGER PRIMARY KEY,
			mode TEXT NOT NULL,
			static_dir TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_servers_position ON servers(position);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed: %w", err)
		}
	}
	return nil
}

// Save replaces every stored row with servers, in order
func (s *SQLiteStore) Save(ctx context.Context, servers []domain.ServerDescriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction failed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM servers"); err != nil {
		return fmt.Errorf("clear servers failed: %w", err)
	}

	for i, srv := range servers {
		var staticDir sql.NullString
		if srv.StaticDir != "" {
			staticDir = sql.NullString{String: srv.StaticDir, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO servers (position, name, port, mode, static_dir) VALUES (?, ?, ?, ?, ?)",
			i, srv.Name, srv.Port, string(srv.Mode), staticDir,
		)
		if err != nil {
			return fmt.Errorf("insert server %d failed: %w", srv.Port, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

// Load returns the stored servers in saved order
func (s *SQLiteStore) Load(ctx context.Context) ([]domain.ServerDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, port, mode, static_dir FROM servers ORDER BY position ASC")
	if err != nil {
		return []domain.ServerDescriptor{}, fmt.Errorf("list servers failed: %w", err)
	}
	defer rows.Close()

	out := []domain.ServerDescriptor{}
	for rows.Next() {
		var srv domain.ServerDescriptor
		var mode string
		var staticDir sql.NullString
		if err := rows.Scan(&srv.Name, &srv.Port, &mode, &staticDir); err != nil {
			return []domain.ServerDescriptor{}, &MalformedError{Source: s.path, Err: err}
		}
		srv.Mode = domain.Mode(mode)
		if staticDir.Valid {
			srv.StaticDir = staticDir.String
		}
		out = append(out, srv)
	}
	if err := rows.Err(); err != nil {
		return []domain.ServerDescriptor{}, fmt.Errorf("list servers failed: %w", err)
	}
	return out, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
