package auth

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
)

// Registry resolves credential brokers per provider and exposes the
// connection record operations shared across them.
type Registry struct {
	brokers map[domain.OAuthProvider]in.CredentialBroker
	conns   out.ConnectionRepository
}

var _ in.BrokerRegistry = (*Registry)(nil)

func NewRegistry(conns out.ConnectionRepository, brokers ...in.CredentialBroker) *Registry {
	m := make(map[domain.OAuthProvider]in.CredentialBroker, len(brokers))
	for _, b := range brokers {
		m[b.Provider()] = b
	}
	return &Registry{brokers: m, conns: conns}
}

// Broker returns the broker for a provider.
func (r *Registry) Broker(provider domain.OAuthProvider) (in.CredentialBroker, bool) {
	b, ok := r.brokers[provider]
	return b, ok
}

// Providers lists providers with a registered broker.
func (r *Registry) Providers() []domain.OAuthProvider {
	providers := make([]domain.OAuthProvider, 0, len(r.brokers))
	for _, p := range []domain.OAuthProvider{domain.ProviderGmail, domain.ProviderSlack} {
		if _, ok := r.brokers[p]; ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// ListConnections returns all connection records for a user.
func (r *Registry) ListConnections(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error) {
	conns, err := r.conns.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("list connections", err)
	}
	return conns, nil
}

// ListConnected returns every connected (user, provider) pair across
// all users, for the background sync scheduler.
func (r *Registry) ListConnected(ctx context.Context) ([]*domain.Connection, error) {
	conns, err := r.conns.ListConnected(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list connected", err)
	}
	return conns, nil
}

// TouchSync stamps last_sync_at for (user, provider).
func (r *Registry) TouchSync(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (bool, error) {
	return r.conns.TouchSync(ctx, userID, provider)
}
