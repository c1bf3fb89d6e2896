// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ekovalev/prompt-iterator/internal/domain"
)

// ErrNotFound is returned when a session or turn does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyResolved is returned when a tool invocation result is written a
// second time. The first recorded result is never mutated.
var ErrAlreadyResolved = errors.New("store: tool invocation already resolved")

// Repository defines the interface for persisting sessions, turns, and
// application settings.
type Repository interface {
	// CreateSession creates a new session with the given title and preview.
	CreateSession(ctx context.Context, title, previewText string) (*domain.Session, error)

	// GetSession retrieves a session by id, or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns all sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*domain.Session, error)

	// TouchSession updates a session's preview text and updated_at once an
	// assistant turn fully finishes.
	TouchSession(ctx context.Context, sessionID, previewText string) error

	// DeleteSession removes a session and cascades to all its turns.
	DeleteSession(ctx context.Context, sessionID string) error

	// AppendTurn appends a turn to its session, assigning a durable id and
	// sequence number. Turns are returned by ListTurns in append order.
	AppendTurn(ctx context.Context, turn *domain.Turn) error

	// ListTurns returns a session's turns in creation order.
	ListTurns(ctx context.Context, sessionID string) ([]*domain.Turn, error)

	// DeleteTurn removes exactly one turn.
	DeleteTurn(ctx context.Context, turnID string) error

	// ResolveToolInvocation attaches a result to a pending tool invocation
	// within the session. A second write for the same tool_call_id fails
	// with ErrAlreadyResolved.
	ResolveToolInvocation(ctx context.Context, sessionID, toolCallID, result string) error

	// CreateFavorite saves a prompt to the favorites collection.
	CreateFavorite(ctx context.Context, title, content string) (*domain.FavoritePrompt, error)

	// ListFavorites returns all favorites, most recently updated first.
	ListFavorites(ctx context.Context) ([]*domain.FavoritePrompt, error)

	// UpdateFavorite rewrites a favorite's title and content and refreshes
	// its updated_at, or ErrNotFound.
	UpdateFavorite(ctx context.Context, favoriteID, title, content string) error

	// DeleteFavorite removes a favorite, or ErrNotFound.
	DeleteFavorite(ctx context.Context, favoriteID string) error

	// GetSettings loads the settings record, falling back to defaults when
	// none has been saved yet.
	GetSettings(ctx context.Context) (domain.AppSettings, error)

	// SaveSettings overwrites the settings record wholesale.
	SaveSettings(ctx context.Context, settings domain.AppSettings) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
