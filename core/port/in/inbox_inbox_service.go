package in

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// FetchOptions controls a sync run.
type FetchOptions struct {
	MaxResults int
	OnlyNew    bool
}

// ReplyRequest carries a reply to an existing email. To, Cc and Bcc
// override the derived recipients when set.
type ReplyRequest struct {
	ReplyBody    string   `json:"reply_body"`
	ReplySubject string   `json:"reply_subject,omitempty"`
	To           []string `json:"to,omitempty"`
	Cc           []string `json:"cc,omitempty"`
	Bcc          []string `json:"bcc,omitempty"`
}

// IngestService pulls messages from providers into storage and sends
// replies.
type IngestService interface {
	// Fetch syncs messages for (user, provider). Provider failures yield
	// an empty slice rather than an error.
	Fetch(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, opts FetchOptions) ([]*domain.Email, error)

	// FetchAll syncs every connected provider for the user.
	FetchAll(ctx context.Context, userID uuid.UUID, opts FetchOptions) ([]*domain.Email, error)

	// SendReply sends a reply to a stored email and stores the sent copy.
	SendReply(ctx context.Context, userID, originalID uuid.UUID, req *ReplyRequest) (*domain.Email, error)
}

// ThreadService exposes read-only inbox projections.
type ThreadService interface {
	// ListThreads returns the user's threads, newest first. Bodies are
	// omitted.
	ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error)

	// GetThread returns one thread with full bodies, or (nil, nil) when
	// the thread has no members.
	GetThread(ctx context.Context, userID uuid.UUID, threadID string) (*domain.Thread, error)

	// ListEmails returns a flat, non-threaded email page.
	ListEmails(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Email, error)

	// GetEmail returns one email with its body attached via the returned
	// EmailBody, or (nil, nil, nil) when absent.
	GetEmail(ctx context.Context, userID, emailID uuid.UUID) (*domain.Email, *domain.EmailBody, error)

	// MarkEmailRead toggles the read flag. Returns false when absent.
	MarkEmailRead(ctx context.Context, userID, emailID uuid.UUID, read bool) (bool, error)

	// MarkThreadRead toggles the read flag across a thread and returns
	// the count updated.
	MarkThreadRead(ctx context.Context, userID uuid.UUID, threadID string, read bool) (int, error)
}

// CategorizeService runs the categorization model over stored emails.
type CategorizeService interface {
	// CategorizeEmail categorizes one stored email best-effort.
	CategorizeEmail(ctx context.Context, email *domain.Email, textBody string) *domain.CategorizationResult

	// CategorizeExisting categorizes up to limit uncategorized stored
	// emails and returns the count categorized.
	CategorizeExisting(ctx context.Context, userID uuid.UUID, limit int) (int, error)
}
