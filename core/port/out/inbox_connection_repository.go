package out

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// ConnectionRepository defines the outbound port for connection records.
type ConnectionRepository interface {
	// GetByUserAndProvider returns the connection for (user, provider),
	// or (nil, nil) when none exists.
	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*domain.Connection, error)

	// ListByUser returns all connections for a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error)

	// ListConnected returns every connection currently in connected status,
	// across all users. Used by the background sync scheduler.
	ListConnected(ctx context.Context) ([]*domain.Connection, error)

	// Upsert creates or updates the connection keyed on (user, provider).
	Upsert(ctx context.Context, conn *domain.Connection) error

	// Disconnect sets status=disconnected and clears the credential
	// reference. Returns false when no connection existed.
	Disconnect(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (bool, error)

	// SetStatus transitions the connection status.
	SetStatus(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, status domain.ConnectionStatus) error

	// TouchSync sets last_sync_at to now. Returns false when no
	// connection existed.
	TouchSync(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (bool, error)
}
