package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

const (
	// RefreshMargin is the safety window before expiry inside which a
	// proactive refresh is attempted.
	RefreshMargin = 5 * time.Minute

	// DefaultTokenLifetime applies when a provider omits the expiry.
	DefaultTokenLifetime = time.Hour

	// SlackTokenLifetime applies to Slack tokens, which carry no expiry
	// on non-rotating apps.
	SlackTokenLifetime = 12 * time.Hour

	// StateTTL bounds how long a pending OAuth state stays valid.
	StateTTL = 10 * time.Minute
)

// ErrTokenExpired indicates the credential can no longer be refreshed
// and the user must redo the authorization flow.
var ErrTokenExpired = errors.New("oauth token expired, re-authentication required")

// isPermanentOAuthError checks if the error indicates a permanently
// invalid token rather than a transient failure.
func isPermanentOAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}

// normalizeExpiry UTC-normalizes an expiry, substituting now+lifetime
// when the provider returned none.
func normalizeExpiry(expiry time.Time, now time.Time, lifetime time.Duration) time.Time {
	if expiry.IsZero() {
		return now.Add(lifetime)
	}
	return domain.NormalizeUTC(expiry)
}

// generateState builds the opaque state round-tripped through the
// provider: "<userID>:<random hex>". The user id prefix lets the
// callback recover the user even without a state store.
func generateState(userID uuid.UUID) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return userID.String() + ":" + hex.EncodeToString(buf), nil
}

// ParseState recovers the user id from a state value.
func ParseState(state string) (uuid.UUID, error) {
	idx := strings.Index(state, ":")
	if idx <= 0 {
		return uuid.Nil, errors.New("malformed state")
	}
	return uuid.Parse(state[:idx])
}
