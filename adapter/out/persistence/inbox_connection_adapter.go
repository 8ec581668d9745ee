package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// ConnectionAdapter implements out.ConnectionRepository using
// PostgreSQL. Metadata is stored as a JSONB bag.
type ConnectionAdapter struct {
	db *sqlx.DB
}

var _ out.ConnectionRepository = (*ConnectionAdapter)(nil)

func NewConnectionAdapter(db *sqlx.DB) *ConnectionAdapter {
	return &ConnectionAdapter{db: db}
}

type connectionRow struct {
	ID           uuid.UUID      `db:"id"`
	UserID       uuid.UUID      `db:"user_id"`
	Provider     string         `db:"provider"`
	Status       string         `db:"status"`
	CredentialID uuid.NullUUID  `db:"credential_id"`
	Email        sql.NullString `db:"email"`
	Metadata     []byte         `db:"metadata"`
	LastSyncAt   sql.NullTime   `db:"last_sync_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

const connectionSelectColumns = `
	id, user_id, provider, status, credential_id, email, metadata,
	last_sync_at, created_at, updated_at`

func (r *connectionRow) toDomain() *domain.Connection {
	conn := &domain.Connection{
		ID:        r.ID,
		UserID:    r.UserID,
		Provider:  domain.OAuthProvider(r.Provider),
		Status:    domain.ConnectionStatus(r.Status),
		Email:     r.Email.String,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.CredentialID.Valid {
		id := r.CredentialID.UUID
		conn.CredentialID = &id
	}
	if r.LastSyncAt.Valid {
		t := r.LastSyncAt.Time.UTC()
		conn.LastSyncAt = &t
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &conn.Metadata); err != nil {
			logger.Warn("Failed to decode connection metadata: %v", err)
		}
	}
	return conn
}

func marshalMetadata(metadata map[string]string) []byte {
	if len(metadata) == 0 {
		return []byte("{}")
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		logger.Warn("Failed to encode connection metadata: %v", err)
		return []byte("{}")
	}
	return data
}

// GetByUserAndProvider returns the connection, or (nil, nil) when none
// exists.
func (a *ConnectionAdapter) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*domain.Connection, error) {
	var row connectionRow
	query := `SELECT ` + connectionSelectColumns + `
		FROM connections
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, string(provider)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// ListByUser returns all connections for a user.
func (a *ConnectionAdapter) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error) {
	var rows []*connectionRow
	query := `SELECT ` + connectionSelectColumns + `
		FROM connections
		WHERE user_id = $1
		ORDER BY created_at`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}

	conns := make([]*domain.Connection, len(rows))
	for i, r := range rows {
		conns[i] = r.toDomain()
	}
	return conns, nil
}

// ListConnected returns every connection in connected status.
func (a *ConnectionAdapter) ListConnected(ctx context.Context) ([]*domain.Connection, error) {
	var rows []*connectionRow
	query := `SELECT ` + connectionSelectColumns + `
		FROM connections
		WHERE status = $1
		ORDER BY created_at`

	if err := a.db.SelectContext(ctx, &rows, query, string(domain.StatusConnected)); err != nil {
		return nil, err
	}

	conns := make([]*domain.Connection, len(rows))
	for i, r := range rows {
		conns[i] = r.toDomain()
	}
	return conns, nil
}

// Upsert creates or updates the connection keyed on (user, provider).
func (a *ConnectionAdapter) Upsert(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (user_id, provider, status, credential_id, email,
		                         metadata, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			status = EXCLUDED.status,
			credential_id = EXCLUDED.credential_id,
			email = EXCLUDED.email,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	var credentialID interface{}
	if conn.CredentialID != nil {
		credentialID = *conn.CredentialID
	}
	var lastSyncAt interface{}
	if conn.LastSyncAt != nil {
		lastSyncAt = *conn.LastSyncAt
	}

	return a.db.QueryRowContext(ctx, query,
		conn.UserID,
		string(conn.Provider),
		string(conn.Status),
		credentialID,
		conn.Email,
		marshalMetadata(conn.Metadata),
		lastSyncAt,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.ID, &conn.CreatedAt)
}

// Disconnect sets status=disconnected and clears the credential
// reference. Returns false when no connection existed.
func (a *ConnectionAdapter) Disconnect(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (bool, error) {
	query := `
		UPDATE connections
		SET status = $1, credential_id = NULL, updated_at = $2
		WHERE user_id = $3 AND provider = $4`

	res, err := a.db.ExecContext(ctx, query, string(domain.StatusDisconnected), time.Now().UTC(), userID, string(provider))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetStatus transitions the connection status.
func (a *ConnectionAdapter) SetStatus(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, status domain.ConnectionStatus) error {
	query := `
		UPDATE connections
		SET status = $1, updated_at = $2
		WHERE user_id = $3 AND provider = $4`

	_, err := a.db.ExecContext(ctx, query, string(status), time.Now().UTC(), userID, string(provider))
	return err
}

// TouchSync stamps last_sync_at. Returns false when no connection
// existed.
func (a *ConnectionAdapter) TouchSync(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE connections
		SET last_sync_at = $1, updated_at = $1
		WHERE user_id = $2 AND provider = $3`

	res, err := a.db.ExecContext(ctx, query, now, userID, string(provider))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
