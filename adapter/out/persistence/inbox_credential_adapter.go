// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/crypto"
	"inbox_server/pkg/logger"
)

// CredentialAdapter implements out.CredentialRepository using
// PostgreSQL. Tokens are AES-256-GCM encrypted at rest when an
// encryption key is configured.
type CredentialAdapter struct {
	db                *sqlx.DB
	encryptionEnabled bool
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

func NewCredentialAdapter(db *sqlx.DB) *CredentialAdapter {
	err := crypto.Init()
	encryptionEnabled := err == nil
	if !encryptionEnabled {
		logger.Warn("Token encryption disabled: %v", err)
	} else {
		logger.Info("Token encryption enabled")
	}

	return &CredentialAdapter{
		db:                db,
		encryptionEnabled: encryptionEnabled,
	}
}

type credentialRow struct {
	ID           uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	Provider     string    `db:"provider"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	TokenType    string    `db:"token_type"`
	Scope        string    `db:"scope"`
	ExpiresAt    time.Time `db:"expires_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *credentialRow) toDomain() *domain.OAuthCredential {
	return &domain.OAuthCredential{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.OAuthProvider(r.Provider),
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Scope:        r.Scope,
		ExpiresAt:    r.ExpiresAt.UTC(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (a *CredentialAdapter) encryptToken(token string) string {
	if !a.encryptionEnabled || token == "" {
		return token
	}
	encrypted, err := crypto.Encrypt(token)
	if err != nil {
		logger.Warn("Failed to encrypt token: %v", err)
		return token
	}
	return encrypted
}

func (a *CredentialAdapter) decryptToken(token string) string {
	if token == "" || !crypto.IsEncrypted(token) {
		return token
	}
	decrypted, err := crypto.Decrypt(token)
	if err != nil {
		// Might be a legacy plaintext token, return as-is
		return token
	}
	return decrypted
}

// GetByUserAndProvider returns the credential, or (nil, nil) when none
// is stored.
func (a *CredentialAdapter) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*domain.OAuthCredential, error) {
	var row credentialRow
	query := `
		SELECT id, user_id, provider, access_token, refresh_token,
		       token_type, scope, expires_at, created_at, updated_at
		FROM oauth_credentials
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, string(provider)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	row.AccessToken = a.decryptToken(row.AccessToken)
	row.RefreshToken = a.decryptToken(row.RefreshToken)
	return row.toDomain(), nil
}

// Upsert creates or replaces the credential keyed on (user, provider).
func (a *CredentialAdapter) Upsert(ctx context.Context, cred *domain.OAuthCredential) error {
	query := `
		INSERT INTO oauth_credentials (user_id, provider, access_token, refresh_token,
		                               token_type, scope, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			scope = EXCLUDED.scope,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	now := time.Now().UTC()
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	cred.ExpiresAt = domain.NormalizeUTC(cred.ExpiresAt)

	return a.db.QueryRowContext(ctx, query,
		cred.UserID,
		string(cred.Provider),
		a.encryptToken(cred.AccessToken),
		a.encryptToken(cred.RefreshToken),
		cred.TokenType,
		cred.Scope,
		cred.ExpiresAt,
		cred.CreatedAt,
		cred.UpdatedAt,
	).Scan(&cred.ID)
}

// Delete removes the credential. Missing credentials are not an error.
func (a *CredentialAdapter) Delete(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) error {
	query := `DELETE FROM oauth_credentials WHERE user_id = $1 AND provider = $2`
	_, err := a.db.ExecContext(ctx, query, userID, string(provider))
	return err
}
