package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"plexvoice/internal/core"
)

const createQueuesTable = `
CREATE TABLE IF NOT EXISTS queues (
	listener_id   TEXT PRIMARY KEY,
	tracks        TEXT NOT NULL,
	current_index INTEGER NOT NULL DEFAULT 0,
	shuffle       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore keeps one row per listener with the track list as a JSON column.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer, and every connection to ":memory:" would get its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createQueuesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create queues table: %w", err)
	}

	logger.Info("Opened queue database", zap.String("path", path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *core.QueueState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	tracks, err := json.Marshal(state.Tracks)
	if err != nil {
		return fmt.Errorf("failed to marshal queue tracks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queues (listener_id, tracks, current_index, shuffle, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(listener_id) DO UPDATE SET
			tracks = excluded.tracks,
			current_index = excluded.current_index,
			shuffle = excluded.shuffle,
			updated_at = excluded.updated_at`,
		state.ListenerID, string(tracks), state.CurrentIndex, state.Shuffle)
	if err != nil {
		return fmt.Errorf("failed to save queue: %w", err)
	}

	s.logger.Debug("Saved queue",
		zap.String("listenerID", state.ListenerID),
		zap.Int("tracks", len(state.Tracks)),
		zap.Int("index", state.CurrentIndex))
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, listenerID string) (*core.QueueState, error) {
	var tracks string
	state := &core.QueueState{ListenerID: listenerID}

	err := s.db.QueryRowContext(ctx,
		`SELECT tracks, current_index, shuffle FROM queues WHERE listener_id = ?`, listenerID,
	).Scan(&tracks, &state.CurrentIndex, &state.Shuffle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNoQueue
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	if err := json.Unmarshal([]byte(tracks), &state.Tracks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue tracks: %w", err)
	}
	return state, nil
}

// UpdateIndex writes only the index column.
func (s *SQLiteStore) UpdateIndex(ctx context.Context, listenerID string, index int) error {
	if err := validateIndex(index); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE queues SET current_index = ?, updated_at = CURRENT_TIMESTAMP WHERE listener_id = ?`,
		index, listenerID)
	if err != nil {
		return fmt.Errorf("failed to update queue index: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check queue index update: %w", err)
	}
	if rows == 0 {
		return core.ErrNoQueue
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
