package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ekovalev/prompt-iterator/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		preview_text TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS turns (
		turn_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_invocations_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session_seq ON turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		settings_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS favorite_prompts (
		favorite_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_favorites_updated ON favorite_prompts(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession creates a new session with the given title and preview.
func (s *SQLiteStore) CreateSession(ctx context.Context, title, previewText string) (*domain.Session, error) {
	now := time.Now()
	session := &domain.Session{
		ID:          uuid.NewString(),
		Title:       title,
		PreviewText: previewText,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query := `INSERT INTO sessions (session_id, title, preview_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.Title, session.PreviewText,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT session_id, title, preview_text, created_at, updated_at FROM sessions WHERE session_id = ?`
	row := s.db.QueryRowContext(ctx, query, sessionID)

	var session domain.Session
	var createdAt, updatedAt int64
	err := row.Scan(&session.ID, &session.Title, &session.PreviewText, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	query := `SELECT session_id, title, preview_text, created_at, updated_at FROM sessions ORDER BY updated_at DESC, session_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		var session domain.Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&session.ID, &session.Title, &session.PreviewText, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		session.CreatedAt = time.Unix(createdAt, 0)
		session.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// TouchSession updates preview text and updated_at after an assistant turn
// completes.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID, previewText string) error {
	query := `UPDATE sessions SET preview_text = ?, updated_at = ? WHERE session_id = ?`
	result, err := s.db.ExecContext(ctx, query, previewText, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes a session and all its turns.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete session turns: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// AppendTurn appends a turn to its session in strict order. The sequence
// number is assigned inside a transaction so concurrent appenders within one
// timestamp second still keep their order.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	if turn.SessionID == "" {
		return fmt.Errorf("append turn: session id is required")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	var invocationsJSON interface{}
	if len(turn.ToolInvocations) > 0 {
		buf, err := json.Marshal(turn.ToolInvocations)
		if err != nil {
			return fmt.Errorf("marshal tool invocations: %w", err)
		}
		invocationsJSON = string(buf)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append turn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE session_id = ?`, turn.SessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check session exists: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?`, turn.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next turn seq: %w", err)
	}

	query := `INSERT INTO turns (turn_id, session_id, seq, role, content, tool_invocations_json, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		turn.ID, turn.SessionID, seq, string(turn.Role), turn.Content,
		invocationsJSON, turn.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	return tx.Commit()
}

// ListTurns returns a session's turns in creation order.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string) ([]*domain.Turn, error) {
	query := `
		SELECT turn_id, session_id, role, content, tool_invocations_json, created_at
		FROM turns WHERE session_id = ? ORDER BY seq`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close turn rows", "error", closeErr)
		}
	}()

	var turns []*domain.Turn
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

func scanTurn(rows *sql.Rows) (*domain.Turn, error) {
	var turn domain.Turn
	var role string
	var invocationsJSON sql.NullString
	var createdAt int64

	if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content, &invocationsJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("scan turn row: %w", err)
	}
	turn.Role = domain.Role(role)
	turn.CreatedAt = time.Unix(createdAt, 0)

	if invocationsJSON.Valid && invocationsJSON.String != "" {
		if err := json.Unmarshal([]byte(invocationsJSON.String), &turn.ToolInvocations); err != nil {
			return nil, fmt.Errorf("unmarshal tool invocations: %w", err)
		}
	}
	return &turn, nil
}

// DeleteTurn removes exactly one turn.
func (s *SQLiteStore) DeleteTurn(ctx context.Context, turnID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE turn_id = ?`, turnID)
	if err != nil {
		return fmt.Errorf("delete turn: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveToolInvocation attaches a result to a pending invocation. The update
// is guarded on the previously read invocation JSON so a concurrent second
// resolution re-reads the row and fails with ErrAlreadyResolved rather than
// clobbering the first result.
func (s *SQLiteStore) ResolveToolInvocation(ctx context.Context, sessionID, toolCallID, result string) error {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		turnID, prevJSON, invocations, err := s.findInvocationTurn(ctx, sessionID, toolCallID)
		if err != nil {
			return err
		}

		for i := range invocations {
			if invocations[i].ToolCallID != toolCallID {
				continue
			}
			if invocations[i].Resolved() {
				return ErrAlreadyResolved
			}
			invocations[i].Result = &result
		}

		buf, err := json.Marshal(invocations)
		if err != nil {
			return fmt.Errorf("marshal tool invocations: %w", err)
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE turns SET tool_invocations_json = ?
			WHERE turn_id = ? AND tool_invocations_json = ?`, string(buf), turnID, prevJSON)
		if err != nil {
			return fmt.Errorf("update invocation turn: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 1 {
			return nil
		}
		// Lost a race with a concurrent write to this turn. Re-read: if the
		// winner resolved this invocation, the next pass reports it.
	}
	return fmt.Errorf("resolve invocation %s: turn kept changing", toolCallID)
}

// findInvocationTurn locates the turn carrying toolCallID and returns its id,
// the invocation JSON exactly as stored, and the decoded invocations.
func (s *SQLiteStore) findInvocationTurn(ctx context.Context, sessionID, toolCallID string) (string, string, []domain.ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT turn_id, tool_invocations_json FROM turns
		WHERE session_id = ? AND tool_invocations_json IS NOT NULL ORDER BY seq`, sessionID)
	if err != nil {
		return "", "", nil, fmt.Errorf("query invocation turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var turnID string
		var invocationsJSON string
		if err := rows.Scan(&turnID, &invocationsJSON); err != nil {
			return "", "", nil, fmt.Errorf("scan invocation turn: %w", err)
		}
		var invocations []domain.ToolInvocation
		if err := json.Unmarshal([]byte(invocationsJSON), &invocations); err != nil {
			return "", "", nil, fmt.Errorf("unmarshal tool invocations: %w", err)
		}
		for i := range invocations {
			if invocations[i].ToolCallID == toolCallID {
				return turnID, invocationsJSON, invocations, nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return "", "", nil, fmt.Errorf("iterate invocation turns: %w", err)
	}
	return "", "", nil, ErrNotFound
}

// CreateFavorite saves a prompt to the favorites collection.
func (s *SQLiteStore) CreateFavorite(ctx context.Context, title, content string) (*domain.FavoritePrompt, error) {
	now := time.Now()
	fav := &domain.FavoritePrompt{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO favorite_prompts (favorite_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		fav.ID, fav.Title, fav.Content,
		fav.CreatedAt.Unix(), fav.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert favorite: %w", err)
	}
	return fav, nil
}

// ListFavorites returns all favorites, most recently updated first.
func (s *SQLiteStore) ListFavorites(ctx context.Context) ([]*domain.FavoritePrompt, error) {
	query := `SELECT favorite_id, title, content, created_at, updated_at FROM favorite_prompts ORDER BY updated_at DESC, favorite_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close favorite rows", "error", closeErr)
		}
	}()

	var favorites []*domain.FavoritePrompt
	for rows.Next() {
		var fav domain.FavoritePrompt
		var createdAt, updatedAt int64
		if err := rows.Scan(&fav.ID, &fav.Title, &fav.Content, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		fav.CreatedAt = time.Unix(createdAt, 0)
		fav.UpdatedAt = time.Unix(updatedAt, 0)
		favorites = append(favorites, &fav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return favorites, nil
}

// UpdateFavorite rewrites a favorite's title and content.
func (s *SQLiteStore) UpdateFavorite(ctx context.Context, favoriteID, title, content string) error {
	query := `UPDATE favorite_prompts SET title = ?, content = ?, updated_at = ? WHERE favorite_id = ?`
	result, err := s.db.ExecContext(ctx, query, title, content, time.Now().Unix(), favoriteID)
	if err != nil {
		return fmt.Errorf("update favorite: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFavorite removes a favorite.
func (s *SQLiteStore) DeleteFavorite(ctx context.Context, favoriteID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM favorite_prompts WHERE favorite_id = ?`, favoriteID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSettings loads the settings record, falling back to defaults.
func (s *SQLiteStore) GetSettings(ctx context.Context) (domain.AppSettings, error) {
	row := s.db.QueryRowContext(ctx, `SELECT settings_json FROM settings WHERE id = 1`)

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.AppSettings{}, fmt.Errorf("scan settings row: %w", err)
	}

	var settings domain.AppSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return domain.AppSettings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return settings, nil
}

// SaveSettings overwrites the settings record wholesale.
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings domain.AppSettings) error {
	buf, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		INSERT INTO settings (id, settings_json, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			settings_json = excluded.settings_json,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, string(buf), time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
