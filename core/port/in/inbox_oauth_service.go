package in

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// ConnectionStatusInfo is the token-info summary returned by the status
// endpoint. Token secrets never appear here.
type ConnectionStatusInfo struct {
	Provider      domain.OAuthProvider    `json:"provider"`
	Status        domain.ConnectionStatus `json:"status"`
	Authenticated bool                    `json:"authenticated"`
	ExpiresAt     *time.Time              `json:"expires_at,omitempty"`
	Scope         string                  `json:"scope,omitempty"`
	Email         string                  `json:"email,omitempty"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
	LastSyncAt    *time.Time              `json:"last_sync_at,omitempty"`
}

// CredentialBroker manages the authorization-code OAuth flow for one
// provider and keeps the stored credential fresh.
type CredentialBroker interface {
	// Provider identifies which provider this broker serves.
	Provider() domain.OAuthProvider

	// AuthorizationURL builds the provider consent URL carrying state.
	AuthorizationURL(ctx context.Context, userID uuid.UUID) (string, error)

	// ExchangeCode trades an authorization code for tokens, persists the
	// credential and marks the connection connected.
	ExchangeCode(ctx context.Context, userID uuid.UUID, code string) (*domain.Connection, error)

	// EnsureFresh refreshes the credential when inside the expiry margin.
	// Returns false when no usable credential remains.
	EnsureFresh(ctx context.Context, userID uuid.UUID) (bool, error)

	// ValidToken returns a currently valid access token, or "" when the
	// user must re-authenticate.
	ValidToken(ctx context.Context, userID uuid.UUID) (string, error)

	// Status returns the token-info summary for the connection.
	Status(ctx context.Context, userID uuid.UUID) (*ConnectionStatusInfo, error)

	// Disconnect deletes the credential and resets the connection.
	// Idempotent.
	Disconnect(ctx context.Context, userID uuid.UUID) error
}

// BrokerRegistry resolves the broker for a provider.
type BrokerRegistry interface {
	Broker(provider domain.OAuthProvider) (CredentialBroker, bool)
	Providers() []domain.OAuthProvider
}
