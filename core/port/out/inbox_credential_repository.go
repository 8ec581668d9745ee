package out

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// CredentialRepository defines the outbound port for OAuth credential
// persistence. Tokens are encrypted at rest by the adapter.
type CredentialRepository interface {
	// GetByUserAndProvider returns the credential for (user, provider),
	// or (nil, nil) when none is stored.
	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*domain.OAuthCredential, error)

	// Upsert creates or replaces the credential keyed on (user, provider).
	// Assigns cred.ID when absent.
	Upsert(ctx context.Context, cred *domain.OAuthCredential) error

	// Delete removes the credential. Deleting a missing credential is not
	// an error.
	Delete(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) error
}
