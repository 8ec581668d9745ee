package out

import (
	"context"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// EmailRepository defines the outbound port for stored emails.
// (user_id, provider_message_id) is the upsert key everywhere.
type EmailRepository interface {
	// Upsert inserts or updates the email keyed on
	// (user_id, provider_message_id) and returns the stored record with
	// its assigned id.
	Upsert(ctx context.Context, email *domain.Email) (*domain.Email, error)

	// GetByID returns the email, or (nil, nil) when absent.
	GetByID(ctx context.Context, userID, emailID uuid.UUID) (*domain.Email, error)

	// Exists reports whether a message with this provider id is already
	// stored for the user.
	Exists(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, providerMessageID string) (bool, error)

	// ListByUser returns the user's emails ordered by sent_at descending,
	// nulls last.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Email, error)

	// ListAllByUser returns every email for the user ordered by sent_at
	// descending, nulls last. Feeds the thread projection.
	ListAllByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Email, error)

	// ListByThread returns the thread's emails ordered by sent_at
	// ascending, nulls first.
	ListByThread(ctx context.Context, userID uuid.UUID, threadID string) ([]*domain.Email, error)

	// LatestSentAt returns the newest stored sent_at for (user, provider),
	// or nil when no email has a timestamp. The incremental sync watermark.
	LatestSentAt(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider) (*time.Time, error)

	// MarkRead sets the read flag. Returns false when the email is absent.
	MarkRead(ctx context.Context, userID, emailID uuid.UUID, read bool) (bool, error)

	// MarkThreadRead sets the read flag on every member of a thread and
	// returns the count updated.
	MarkThreadRead(ctx context.Context, userID uuid.UUID, threadID string, read bool) (int, error)

	// ListUncategorized returns emails without a categorization result.
	ListUncategorized(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Email, error)

	// UpdateCategorization writes a categorization result onto an email.
	UpdateCategorization(ctx context.Context, userID, emailID uuid.UUID, result *domain.CategorizationResult, promptVersion string) error
}
