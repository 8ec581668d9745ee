package out

import (
	"context"
	"time"
)

// ProviderMessage is the normalized shape of one message fetched from a
// provider, before it becomes a stored Email.
type ProviderMessage struct {
	ID             string
	ThreadID       string
	Subject        string
	From           string
	To             []string
	Cc             []string
	Bcc            []string
	SentAt         *time.Time
	Snippet        string
	TextBody       string
	HTMLBody       string
	Labels         []string
	HasAttachments bool
	SizeEstimate   int64
}

// OutgoingMessage describes a message to send through a provider.
type OutgoingMessage struct {
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	Body      string
	ThreadID  string
	InReplyTo string
}

// SentMessage is the provider's acknowledgment of a send.
type SentMessage struct {
	ID       string
	ThreadID string
}

// MessageProvider defines the outbound port for a provider's message API.
// Callers supply a valid access token obtained from a credential broker.
type MessageProvider interface {
	// ListMessageIDs returns up to maxResults message ids, newest first.
	// When newerThan is set, the provider query is bounded to messages
	// after that instant.
	ListMessageIDs(ctx context.Context, accessToken string, maxResults int, newerThan *time.Time) ([]string, error)

	// GetMessage fetches and normalizes one full message.
	GetMessage(ctx context.Context, accessToken, messageID string) (*ProviderMessage, error)

	// SendMessage sends a message. Not idempotent.
	SendMessage(ctx context.Context, accessToken string, msg *OutgoingMessage) (*SentMessage, error)
}
