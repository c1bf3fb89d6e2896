package store

import (
	"context"

	"github.com/ekovalev/prompt-iterator/internal/domain"
	"github.com/ekovalev/prompt-iterator/internal/notify"
)

// NotifyingRepository decorates a Repository, publishing a change event for
// every successful mutation so listeners (the session sidebar) do not need
// to poll.
type NotifyingRepository struct {
	Repository
	bus *notify.Bus
}

// NewNotifying wraps repo so that mutations publish on bus.
func NewNotifying(repo Repository, bus *notify.Bus) *NotifyingRepository {
	return &NotifyingRepository{Repository: repo, bus: bus}
}

func (n *NotifyingRepository) CreateSession(ctx context.Context, title, previewText string) (*domain.Session, error) {
	session, err := n.Repository.CreateSession(ctx, title, previewText)
	if err == nil {
		n.bus.Publish(notify.Event{Type: notify.SessionCreated, SessionID: session.ID})
	}
	return session, err
}

func (n *NotifyingRepository) TouchSession(ctx context.Context, sessionID, previewText string) error {
	err := n.Repository.TouchSession(ctx, sessionID, previewText)
	if err == nil {
		n.bus.Publish(notify.Event{Type: notify.SessionUpdated, SessionID: sessionID})
	}
	return err
}

func (n *NotifyingRepository) DeleteSession(ctx context.Context, sessionID string) error {
	err := n.Repository.DeleteSession(ctx, sessionID)
	if err == nil {
		n.bus.Publish(notify.Event{Type: notify.SessionDeleted, SessionID: sessionID})
	}
	return err
}

func (n *NotifyingRepository) DeleteTurn(ctx context.Context, turnID string) error {
	err := n.Repository.DeleteTurn(ctx, turnID)
	if err == nil {
		n.bus.Publish(notify.Event{Type: notify.TurnDeleted, TurnID: turnID})
	}
	return err
}

var _ Repository = (*NotifyingRepository)(nil)
