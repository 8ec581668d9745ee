package out

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OAuthStateStore round-trips the CSRF state value through the OAuth
// authorization flow. States are single-use and expire.
type OAuthStateStore interface {
	// StoreState records a pending state for the user.
	StoreState(ctx context.Context, state string, userID uuid.UUID, ttl time.Duration) error

	// ValidateState consumes the state and returns the user it belongs
	// to. A state can only be validated once.
	ValidateState(ctx context.Context, state string) (uuid.UUID, error)
}
