package out

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

// EmailBodyRepository defines the outbound port for full message bodies,
// stored separately from email headers.
type EmailBodyRepository interface {
	// Upsert stores the body keyed on email id.
	Upsert(ctx context.Context, body *domain.EmailBody) error

	// Get returns the body, or (nil, nil) when absent.
	Get(ctx context.Context, emailID uuid.UUID) (*domain.EmailBody, error)

	// GetByEmailIDs returns bodies for the given email ids. Missing ids
	// are simply absent from the result map.
	GetByEmailIDs(ctx context.Context, emailIDs []uuid.UUID) (map[uuid.UUID]*domain.EmailBody, error)

	// Delete removes the body. Missing bodies are not an error.
	Delete(ctx context.Context, emailID uuid.UUID) error
}
