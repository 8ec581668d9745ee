package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// identityFunc resolves the provider-side account identity for a fresh
// token: the account email plus provider-specific metadata.
type identityFunc func(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token) (string, map[string]string, error)

// Broker implements the credential lifecycle for one provider. The
// Gmail and Slack constructors differ only in endpoint config, token
// lifetime and identity resolution.
type Broker struct {
	provider domain.OAuthProvider
	cfg      *oauth2.Config
	lifetime time.Duration
	authOpts []oauth2.AuthCodeOption
	identity identityFunc

	creds  out.CredentialRepository
	conns  out.ConnectionRepository
	states out.OAuthStateStore
}

var _ in.CredentialBroker = (*Broker)(nil)

func (b *Broker) Provider() domain.OAuthProvider {
	return b.provider
}

// AuthorizationURL builds the consent URL. The state is registered with
// the state store when one is configured.
func (b *Broker) AuthorizationURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if b.cfg == nil {
		return "", apperr.ConfigError(fmt.Sprintf("%s oauth not configured", b.provider))
	}

	state, err := generateState(userID)
	if err != nil {
		return "", err
	}

	if b.states != nil {
		if err := b.states.StoreState(ctx, state, userID, StateTTL); err != nil {
			return "", apperr.ExternalError("state store", err)
		}
	}

	return b.cfg.AuthCodeURL(state, b.authOpts...), nil
}

// ResolveState consumes the callback state and returns the user it was
// issued to. Falls back to parsing the state value when no store is
// configured.
func (b *Broker) ResolveState(ctx context.Context, state string) (uuid.UUID, error) {
	if b.states != nil {
		return b.states.ValidateState(ctx, state)
	}
	return ParseState(state)
}

// ExchangeCode trades the authorization code for tokens, persists the
// credential and marks the connection connected.
func (b *Broker) ExchangeCode(ctx context.Context, userID uuid.UUID, code string) (*domain.Connection, error) {
	if b.cfg == nil {
		return nil, apperr.ConfigError(fmt.Sprintf("%s oauth not configured", b.provider))
	}
	if code == "" {
		return nil, apperr.MissingField("code")
	}

	token, err := b.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.OAuthFailed(string(b.provider), err)
	}

	now := time.Now().UTC()
	expiresAt := normalizeExpiry(token.Expiry, now, b.lifetime)

	var email string
	var metadata map[string]string
	if b.identity != nil {
		email, metadata, err = b.identity(ctx, b.cfg, token)
		if err != nil {
			return nil, apperr.OAuthFailed(string(b.provider), fmt.Errorf("identity lookup: %w", err))
		}
	}

	cred := &domain.OAuthCredential{
		UserID:       userID,
		Provider:     b.provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Scope:        joinScopes(b.cfg.Scopes),
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.creds.Upsert(ctx, cred); err != nil {
		return nil, apperr.DatabaseError("upsert credential", err)
	}

	conn := &domain.Connection{
		UserID:       userID,
		Provider:     b.provider,
		Status:       domain.StatusConnected,
		CredentialID: &cred.ID,
		Email:        email,
		Metadata:     metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := b.conns.Upsert(ctx, conn); err != nil {
		return nil, apperr.DatabaseError("upsert connection", err)
	}

	logger.WithField("provider", string(b.provider)).
		WithField("user_id", userID.String()).
		Info("oauth connection established")

	return conn, nil
}

// EnsureFresh refreshes the credential when within RefreshMargin of
// expiry. Returns false when no usable credential remains, marking the
// connection refresh_required when the refresh path is gone for good.
func (b *Broker) EnsureFresh(ctx context.Context, userID uuid.UUID) (bool, error) {
	cred, err := b.creds.GetByUserAndProvider(ctx, userID, b.provider)
	if err != nil {
		return false, apperr.DatabaseError("get credential", err)
	}
	if cred == nil {
		return false, nil
	}

	// One UTC now for the margin test and everything downstream.
	now := time.Now().UTC()
	if cred.ExpiresAt.Sub(now) > RefreshMargin {
		return true, nil
	}

	if cred.RefreshToken == "" {
		if err := b.conns.SetStatus(ctx, userID, b.provider, domain.StatusRefreshRequired); err != nil {
			logger.WithError(err).Error("failed to mark connection refresh_required")
		}
		return false, nil
	}

	src := b.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	newToken, err := src.Token()
	if err != nil {
		if isPermanentOAuthError(err) {
			logger.WithField("provider", string(b.provider)).
				WithField("user_id", userID.String()).
				WithError(err).
				Warn("refresh token permanently invalid, re-authentication required")
			if serr := b.conns.SetStatus(ctx, userID, b.provider, domain.StatusRefreshRequired); serr != nil {
				logger.WithError(serr).Error("failed to mark connection refresh_required")
			}
			return false, nil
		}
		// Transient failure: no status change, caller may retry later.
		logger.WithField("provider", string(b.provider)).WithError(err).Warn("token refresh failed")
		return false, nil
	}

	cred.AccessToken = newToken.AccessToken
	if newToken.RefreshToken != "" {
		cred.RefreshToken = newToken.RefreshToken
	}
	cred.ExpiresAt = normalizeExpiry(newToken.Expiry, now, b.lifetime)
	cred.UpdatedAt = now

	if err := b.creds.Upsert(ctx, cred); err != nil {
		return false, apperr.DatabaseError("update credential", err)
	}

	logger.WithField("provider", string(b.provider)).
		WithField("user_id", userID.String()).
		Debug("token refreshed")
	return true, nil
}

// ValidToken composes EnsureFresh with a credential read. Returns ""
// with a nil error when the user must re-authenticate.
func (b *Broker) ValidToken(ctx context.Context, userID uuid.UUID) (string, error) {
	ok, err := b.EnsureFresh(ctx, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	cred, err := b.creds.GetByUserAndProvider(ctx, userID, b.provider)
	if err != nil {
		return "", apperr.DatabaseError("get credential", err)
	}
	if cred == nil {
		return "", nil
	}
	return cred.AccessToken, nil
}

// Status reports the token-info summary without touching the provider.
func (b *Broker) Status(ctx context.Context, userID uuid.UUID) (*in.ConnectionStatusInfo, error) {
	info := &in.ConnectionStatusInfo{
		Provider: b.provider,
		Status:   domain.StatusDisconnected,
	}

	conn, err := b.conns.GetByUserAndProvider(ctx, userID, b.provider)
	if err != nil {
		return nil, apperr.DatabaseError("get connection", err)
	}
	if conn == nil {
		return info, nil
	}

	info.Status = conn.Status
	info.Email = conn.Email
	info.Metadata = conn.Metadata
	info.LastSyncAt = conn.LastSyncAt

	cred, err := b.creds.GetByUserAndProvider(ctx, userID, b.provider)
	if err != nil {
		return nil, apperr.DatabaseError("get credential", err)
	}
	if cred != nil {
		expiresAt := cred.ExpiresAt
		info.ExpiresAt = &expiresAt
		info.Scope = cred.Scope
		info.Authenticated = conn.IsConnected() &&
			(cred.ExpiresAt.After(time.Now().UTC()) || cred.RefreshToken != "")
	}

	return info, nil
}

// Disconnect deletes the credential and resets the connection.
// Disconnecting with nothing connected is a success.
func (b *Broker) Disconnect(ctx context.Context, userID uuid.UUID) error {
	if err := b.creds.Delete(ctx, userID, b.provider); err != nil {
		return apperr.DatabaseError("delete credential", err)
	}
	if _, err := b.conns.Disconnect(ctx, userID, b.provider); err != nil {
		return apperr.DatabaseError("disconnect", err)
	}

	logger.WithField("provider", string(b.provider)).
		WithField("user_id", userID.String()).
		Info("connection disconnected")
	return nil
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
