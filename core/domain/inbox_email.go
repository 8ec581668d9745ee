package domain

import (
	"time"

	"github.com/google/uuid"
)

const LabelSent = "sent"

type Email struct {
	ID       uuid.UUID     `json:"id"`
	UserID   uuid.UUID     `json:"user_id"`
	Provider OAuthProvider `json:"provider"`

	// (UserID, ProviderMessageID) is the deduplication key.
	ProviderMessageID string `json:"provider_message_id"`

	// ThreadID falls back to ProviderMessageID when the provider
	// gives no conversation id.
	ThreadID string `json:"thread_id"`

	Subject      string     `json:"subject"`
	FromAddress  string     `json:"from_address"`
	ToAddresses  []string   `json:"to_addresses"`
	CcAddresses  []string   `json:"cc_addresses,omitempty"`
	BccAddresses []string   `json:"bcc_addresses,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	Snippet      string     `json:"snippet"`

	Labels         []string `json:"labels,omitempty"`
	HasAttachments bool     `json:"has_attachments"`
	SizeEstimate   int64    `json:"size_estimate"`
	IsRead         bool     `json:"is_read"`

	// Categorization result, absent until the gateway succeeds.
	Category           *EmailCategory `json:"category,omitempty"`
	CategoryConfidence *float64       `json:"category_confidence,omitempty"`
	CategoryReasoning  *string        `json:"category_reasoning,omitempty"`
	PromptVersion      *string        `json:"prompt_version,omitempty"`
	CategorizedAt      *time.Time     `json:"categorized_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Body is attached on detail views only; list views omit it.
	Body *EmailBody `json:"body,omitempty"`
}

// EffectiveThreadID returns the conversation grouping key.
func (e *Email) EffectiveThreadID() string {
	if e.ThreadID != "" {
		return e.ThreadID
	}
	return e.ProviderMessageID
}

// EmailBody holds full message content, stored separately from headers.
type EmailBody struct {
	EmailID  uuid.UUID `json:"email_id"`
	TextBody string    `json:"text_body"`
	HTMLBody string    `json:"html_body"`
}

// Thread is a read-time projection over emails sharing a thread id.
// Never persisted; metadata is recomputed from members on every read.
type Thread struct {
	ThreadID       string     `json:"thread_id"`
	Subject        string     `json:"subject"`
	LatestSender   string     `json:"latest_sender"`
	LatestSentAt   *time.Time `json:"latest_sent_at,omitempty"`
	EmailCount     int        `json:"email_count"`
	UnreadCount    int        `json:"unread_count"`
	HasAttachments bool       `json:"has_attachments"`
	Emails         []*Email   `json:"emails,omitempty"`
}
