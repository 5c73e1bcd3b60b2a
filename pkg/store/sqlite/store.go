// Package sqlite provides a SQLite implementation of the record store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-host deployments. Each agent's record collection is serialized
// as a JSON string in a TEXT column, keyed by agent identifier.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// Store implements RecordStore using SQLite as the backend.
type Store struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing agent stores.
	tableName string
}

// Config contains configuration for creating a SQLite record store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use (default: "agent_stores").
	TableName string
}

// NewStore creates a new SQLite record store.
//
// Parameters:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Store: The store instance
//   - error: Error if database connection or table creation fails
func NewStore(cfg *Config) (*Store, error) {
	if cfg.TableName == "" {
		cfg.TableName = "agent_stores"
	}

	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return nil, fmt.Errorf("NewSQLiteStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteStore: %w", err)
	}

	store := &Store{
		db:        db,
		tableName: cfg.TableName,
	}

	if err := store.initTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// initTable initializes the database table structure.
func (s *Store) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			agent_id TEXT PRIMARY KEY,
			records TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_interaction_at DATETIME,
			interaction_count INTEGER DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTable: %w", err)
	}

	return nil
}

// Load retrieves the store for the given agent.
func (s *Store) Load(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	if agentID == "" {
		return nil, core.NewEngineError("Load", core.ErrInvalidInput)
	}

	query := fmt.Sprintf(`
		SELECT agent_id, records, created_at, last_interaction_at, interaction_count
		FROM %s
		WHERE agent_id = ?
	`, s.tableName)

	row := s.db.QueryRowContext(ctx, query, agentID)

	mem, err := scanStore(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, err
	}

	return mem, nil
}

// Save persists the store, replacing any previous row for the same agent.
func (s *Store) Save(ctx context.Context, mem *core.AgentMemoryStore) error {
	if mem == nil || mem.AgentID == "" {
		return core.NewEngineError("Save", core.ErrInvalidInput)
	}

	recordsJSON, err := json.Marshal(mem.Records)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (agent_id, records, created_at, last_interaction_at, interaction_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			records = excluded.records,
			last_interaction_at = excluded.last_interaction_at,
			interaction_count = excluded.interaction_count,
			updated_at = excluded.updated_at
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		mem.AgentID,
		string(recordsJSON),
		mem.CreatedAt,
		nullableTime(mem.LastInteractionAt),
		mem.InteractionCount,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}

	return nil
}

// Delete removes the store for the given agent.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return core.NewEngineError("Delete", core.ErrInvalidInput)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE agent_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, agentID); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, agentID, err)
	}

	return nil
}

// ListIDs returns the identifiers of all agents with a persisted store.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT agent_id FROM %s ORDER BY agent_id", s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageOperation, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorageOperation, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorageOperation, err)
	}

	return ids, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanStore scans an agent store from a database row.
func scanStore(row *sql.Row) (*core.AgentMemoryStore, error) {
	var mem core.AgentMemoryStore
	var recordsStr string
	var lastInteraction sql.NullTime

	err := row.Scan(
		&mem.AgentID,
		&recordsStr,
		&mem.CreatedAt,
		&lastInteraction,
		&mem.InteractionCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(recordsStr), &mem.Records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCorruptData, mem.AgentID, err)
	}
	if lastInteraction.Valid {
		mem.LastInteractionAt = lastInteraction.Time
	}

	return &mem, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
