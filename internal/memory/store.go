// Package memory keeps the per-sender turn log read by the reply path.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wabridge/internal/domain"
)

const defaultMaxTurns = 200

// SQLiteStore implements domain.TurnStore on a local sqlite database.
type SQLiteStore struct {
	db       *sql.DB
	maxTurns int
	logger   *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// migrates it. maxTurns caps how many recent turns Turns returns.
func NewSQLiteStore(dbPath string, maxTurns int, logger *slog.Logger) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	// Single writer; also keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	s := &SQLiteStore{db: db, maxTurns: maxTurns, logger: logger}

	if err := RunMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

// AppendTurn records a turn at the end of the sender's log.
func (s *SQLiteStore) AppendTurn(ctx context.Context, senderID string, turn domain.Turn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (sender_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		senderID, string(turn.Role), turn.Text, turn.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Turns returns the sender's most recent turns in chronological order.
func (s *SQLiteStore) Turns(ctx context.Context, senderID string) ([]domain.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM (
			SELECT id, role, text, created_at FROM turns
			WHERE sender_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		senderID, s.maxTurns,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var (
			role    string
			text    string
			created int64
		)
		if err := rows.Scan(&role, &text, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, domain.Turn{
			Role:      domain.Role(role),
			Text:      text,
			CreatedAt: time.UnixMilli(created),
		})
	}
	return turns, rows.Err()
}

// Prune deletes turns older than maxAge and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks that the database is reachable and writable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
