package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// EmailAdapter implements out.EmailRepository using PostgreSQL.
// (user_id, provider_message_id) carries a unique constraint; every
// write path is an upsert on that key.
type EmailAdapter struct {
	db *sqlx.DB
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

func NewEmailAdapter(db *sqlx.DB) *EmailAdapter {
	return &EmailAdapter{db: db}
}

const emailSelectColumns = `
	id, user_id, provider, provider_message_id, thread_id,
	subject, from_address, to_addresses, cc_addresses, bcc_addresses,
	sent_at, snippet, labels, has_attachments, size_estimate, is_read,
	category, category_confidence, category_reasoning, prompt_version, categorized_at,
	created_at, updated_at`

type emailRow struct {
	ID                uuid.UUID      `db:"id"`
	UserID            uuid.UUID      `db:"user_id"`
	Provider          string         `db:"provider"`
	ProviderMessageID string         `db:"provider_message_id"`
	ThreadID          string         `db:"thread_id"`

	Subject      string         `db:"subject"`
	FromAddress  string         `db:"from_address"`
	ToAddresses  pq.StringArray `db:"to_addresses"`
	CcAddresses  pq.StringArray `db:"cc_addresses"`
	BccAddresses pq.StringArray `db:"bcc_addresses"`
	SentAt       sql.NullTime   `db:"sent_at"`
	Snippet      string         `db:"snippet"`

	Labels         pq.StringArray `db:"labels"`
	HasAttachments bool           `db:"has_attachments"`
	SizeEstimate   int64          `db:"size_estimate"`
	IsRead         bool           `db:"is_read"`

	Category           sql.NullString  `db:"category"`
	CategoryConfidence sql.NullFloat64 `db:"category_confidence"`
	CategoryReasoning  sql.NullString  `db:"category_reasoning"`
	PromptVersion      sql.NullString  `db:"prompt_version"`
	CategorizedAt      sql.NullTime    `db:"categorized_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *emailRow) toDomain() *domain.Email {
	email := &domain.Email{
		ID:                r.ID,
		UserID:            r.UserID,
		Provider:          domain.OAuthProvider(r.Provider),
		ProviderMessageID: r.ProviderMessageID,
		ThreadID:          r.ThreadID,
		Subject:           r.Subject,
		FromAddress:       r.FromAddress,
		ToAddresses:       r.ToAddresses,
		CcAddresses:       r.CcAddresses,
		BccAddresses:      r.BccAddresses,
		Snippet:           r.Snippet,
		Labels:            r.Labels,
		HasAttachments:    r.HasAttachments,
		SizeEstimate:      r.SizeEstimate,
		IsRead:            r.IsRead,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.SentAt.Valid {
		t := r.SentAt.Time.UTC()
		email.SentAt = &t
	}
	if r.Category.Valid {
		c := domain.EmailCategory(r.Category.String)
		email.Category = &c
	}
	if r.CategoryConfidence.Valid {
		email.CategoryConfidence = &r.CategoryConfidence.Float64
	}
	if r.CategoryReasoning.Valid {
		email.CategoryReasoning = &r.CategoryReasoning.String
	}
	if r.PromptVersion.Valid {
		email.PromptVersion = &r.PromptVersion.String
	}
	if r.CategorizedAt.Valid {
		t := r.CategorizedAt.Time.UTC()
		email.CategorizedAt = &t
	}
	return email
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// Upsert inserts or updates on (user_id, provider_message_id).
// Re-ingesting refreshes headers and flags but preserves the read state
// and any categorization already written.
func (a *EmailAdapter) Upsert(ctx context.Context, email *domain.Email) (*domain.Email, error) {
	query := `
		INSERT INTO emails (user_id, provider, provider_message_id, thread_id,
		                    subject, from_address, to_addresses, cc_addresses, bcc_addresses,
		                    sent_at, snippet, labels, has_attachments, size_estimate, is_read,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, provider_message_id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			subject = EXCLUDED.subject,
			from_address = EXCLUDED.from_address,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			bcc_addresses = EXCLUDED.bcc_addresses,
			sent_at = EXCLUDED.sent_at,
			snippet = EXCLUDED.snippet,
			labels = EXCLUDED.labels,
			has_attachments = EXCLUDED.has_attachments,
			size_estimate = EXCLUDED.size_estimate,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + emailSelectColumns

	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now
	email.SentAt = domain.NormalizeUTCPtr(email.SentAt)

	var row emailRow
	err := a.db.GetContext(ctx, &row, query,
		email.UserID,
		string(email.Provider),
		email.ProviderMessageID,
		email.ThreadID,
		email.Subject,
		email.FromAddress,
		pq.StringArray(email.ToAddresses),
		pq.StringArray(email.CcAddresses),
		pq.StringArray(email.BccAddresses),
		nullableTime(email.SentAt),
		email.Snippet,
		pq.StringArray(email.Labels),
		email.HasAttachments,
		email.SizeEstimate,
		email.IsRead,
		email.CreatedAt,
		email.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

// GetByID returns the email, or (nil, nil) when absent.
func (a *EmailAdapter) GetByID(ctx context.Context, userID, emailID uuid.UUID) (*domain.Email, error) {
	var row emailRow
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1 AND id = $2`

	if err := a.db.GetContext(ctx, &row, query, userID, emailID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toDomain(), nil
}

// Exists reports whether the provider message is already stored.
func (a *EmailAdapter) Exists(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, providerMessageID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM emails
			WHERE user_id = $1 AND provider = $2 AND provider_message_id = $3
		)`

	if err := a.db.GetContext(ctx, &exists, query, userID, string(provider), providerMessageID); err != nil {
		return false, err
	}
	return exists, nil
}

// ListByUser returns a page of the user's emails, newest first.
func (a *EmailAdapter) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Email, error) {
	var rows []*emailRow
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1
		ORDER BY sent_at DESC NULLS LAST
		LIMIT $2 OFFSET $3`

	if limit <= 0 {
		limit = 50
	}
	if err := a.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// ListAllByUser returns every email for the user, newest first.
func (a *EmailAdapter) ListAllByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Email, error) {
	var rows []*emailRow
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1
		ORDER BY sent_at DESC NULLS LAST`

	if err := a.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// ListByThread returns the thread's emails in conversational order,
// oldest first with null timestamps sorting oldest.
func (a *EmailAdapter) ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]*domain.Email, error) {
	var rows []*emailRow
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1 AND (thread_id = $2 OR (thread_id = '' AND provider_message_id = $2))
		ORDER BY sent_at ASC NULLS FIRST`

	if err := a.db.SelectContext(ctx, &rows, query, userID, threadID); err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// LatestSentAt returns the newest stored sent_at for (user, provider).
func (a *EmailAdapter) LatestSentAt(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*time.Time, error) {
	var latest sql.NullTime
	query := `
		SELECT MAX(sent_at) FROM emails
		WHERE user_id = $1 AND provider = $2`

	if err := a.db.GetContext(ctx, &latest, query, userID, string(provider)); err != nil {
		return nil, err
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// MarkRead sets the read flag. Returns false when the email is absent.
func (a *EmailAdapter) MarkRead(ctx context.Context, userID, emailID uuid.UUID, read bool) (bool, error) {
	query := `
		UPDATE emails
		SET is_read = $1, updated_at = $2
		WHERE user_id = $3 AND id = $4`

	res, err := a.db.ExecContext(ctx, query, read, time.Now().UTC(), userID, emailID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkThreadRead sets the read flag on all thread members.
func (a *EmailAdapter) MarkThreadRead(ctx context.Context, userID uuid.UUID, threadID string, read bool) (int, error) {
	query := `
		UPDATE emails
		SET is_read = $1, updated_at = $2
		WHERE user_id = $3 AND (thread_id = $4 OR (thread_id = '' AND provider_message_id = $4))`

	res, err := a.db.ExecContext(ctx, query, read, time.Now().UTC(), userID, threadID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ListUncategorized returns emails without a categorization result.
func (a *EmailAdapter) ListUncategorized(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Email, error) {
	var rows []*emailRow
	query := `SELECT ` + emailSelectColumns + `
		FROM emails
		WHERE user_id = $1 AND category IS NULL
		ORDER BY sent_at DESC NULLS LAST
		LIMIT $2`

	if limit <= 0 {
		limit = 50
	}
	if err := a.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, err
	}
	return rowsToDomain(rows), nil
}

// UpdateCategorization writes a categorization result onto an email.
func (a *EmailAdapter) UpdateCategorization(ctx context.Context, userID, emailID uuid.UUID, result *domain.CategorizationResult, promptVersion string) error {
	if result == nil {
		return ErrInvalidInput
	}

	query := `
		UPDATE emails
		SET category = $1, category_confidence = $2, category_reasoning = $3,
		    prompt_version = $4, categorized_at = $5, updated_at = $5
		WHERE user_id = $6 AND id = $7`

	_, err := a.db.ExecContext(ctx, query,
		string(result.Category),
		result.Confidence,
		result.Reasoning,
		promptVersion,
		time.Now().UTC(),
		userID,
		emailID,
	)
	return err
}

func rowsToDomain(rows []*emailRow) []*domain.Email {
	emails := make([]*domain.Email, len(rows))
	for i, r := range rows {
		emails[i] = r.toDomain()
	}
	return emails
}
