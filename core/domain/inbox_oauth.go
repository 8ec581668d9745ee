package domain

import (
	"time"

	"github.com/google/uuid"
)

type OAuthProvider string

const (
	ProviderGmail OAuthProvider = "gmail"
	ProviderSlack OAuthProvider = "slack"
)

func (p OAuthProvider) Valid() bool {
	return p == ProviderGmail || p == ProviderSlack
}

type ConnectionStatus string

const (
	StatusConnected       ConnectionStatus = "connected"
	StatusDisconnected    ConnectionStatus = "disconnected"
	StatusRefreshRequired ConnectionStatus = "refresh_required"
)

// OAuthCredential holds the token pair for one (user, provider).
// ExpiresAt is always UTC-normalized before persistence and comparison.
type OAuthCredential struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Provider     OAuthProvider `json:"provider"`
	AccessToken  string        `json:"-"`
	RefreshToken string        `json:"-"`
	TokenType    string        `json:"token_type"`
	Scope        string        `json:"scope"`
	ExpiresAt    time.Time     `json:"expires_at"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Connection ties a user to a provider independent of token validity.
// status=connected implies a non-nil CredentialID.
type Connection struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	Provider     OAuthProvider     `json:"provider"`
	Status       ConnectionStatus  `json:"status"`
	CredentialID *uuid.UUID        `json:"credential_id,omitempty"`
	Email        string            `json:"email,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastSyncAt   *time.Time        `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func (c *Connection) IsConnected() bool {
	return c != nil && c.Status == StatusConnected && c.CredentialID != nil
}
