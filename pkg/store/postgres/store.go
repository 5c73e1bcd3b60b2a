// Package postgres provides a PostgreSQL implementation of the record store.
//
// Each agent's record collection is serialized as JSONB, keyed by agent
// identifier, with upserts via ON CONFLICT.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// Store implements RecordStore using PostgreSQL as the backend.
type Store struct {
	db        *sql.DB
	tableName string
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
	SSLMode   string
}

// NewStore creates a new PostgreSQL record store.
func NewStore(cfg *Config) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	if cfg.TableName == "" {
		cfg.TableName = "agent_stores"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresStore: %w", err)
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

// initTable initializes the database table.
func (s *Store) initTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			agent_id VARCHAR(255) PRIMARY KEY,
			records JSONB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_interaction_at TIMESTAMP,
			interaction_count BIGINT DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
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
		WHERE agent_id = $1
	`, s.tableName)

	var mem core.AgentMemoryStore
	var recordsStr string
	var lastInteraction sql.NullTime

	err := s.db.QueryRowContext(ctx, query, agentID).Scan(
		&mem.AgentID,
		&recordsStr,
		&mem.CreatedAt,
		&lastInteraction,
		&mem.InteractionCount,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, agentID, err)
	}

	if err := json.Unmarshal([]byte(recordsStr), &mem.Records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCorruptData, agentID, err)
	}
	if lastInteraction.Valid {
		mem.LastInteractionAt = lastInteraction.Time
	}

	return &mem, nil
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
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			records = EXCLUDED.records,
			last_interaction_at = EXCLUDED.last_interaction_at,
			interaction_count = EXCLUDED.interaction_count,
			updated_at = EXCLUDED.updated_at
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

	query := fmt.Sprintf("DELETE FROM %s WHERE agent_id = $1", s.tableName)
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

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
