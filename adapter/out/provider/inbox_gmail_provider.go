// Package provider implements message provider adapters.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// GmailProvider implements out.MessageProvider for the Gmail API.
// All calls go through a circuit breaker so a degraded Gmail API fails
// fast instead of piling up sync workers.
type GmailProvider struct {
	cb *gobreaker.CircuitBreaker
}

var _ out.MessageProvider = (*GmailProvider)(nil)

// NewGmailProvider creates a new Gmail message provider.
func NewGmailProvider() *GmailProvider {
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailProvider{
		cb: gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// ListMessageIDs returns up to maxResults message ids, newest first.
func (p *GmailProvider) ListMessageIDs(ctx context.Context, accessToken string, maxResults int, newerThan *time.Time) ([]string, error) {
	svc, err := p.getService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 50
	}

	req := svc.Users.Messages.List("me").MaxResults(int64(maxResults))
	if newerThan != nil {
		// Gmail accepts epoch seconds in after: queries
		req = req.Q(fmt.Sprintf("after:%d", newerThan.Unix()))
	}

	var ids []string
	pageToken := ""

	for {
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		cbErr := p.executeWithCircuitBreaker("ListMessageIDs", func() error {
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if cbErr != nil {
			return nil, p.wrapError(cbErr, "failed to list messages")
		}

		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
			if len(ids) >= maxResults {
				return ids, nil
			}
		}

		if resp.NextPageToken == "" {
			return ids, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetMessage fetches one full message and normalizes it.
func (p *GmailProvider) GetMessage(ctx context.Context, accessToken, messageID string) (*out.ProviderMessage, error) {
	svc, err := p.getService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	cbErr := p.executeWithCircuitBreaker("GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, p.wrapError(cbErr, "failed to get message")
	}

	return convertGmailMessage(msg), nil
}

// SendMessage sends a message through Gmail. ThreadID keeps the reply
// in the original conversation.
func (p *GmailProvider) SendMessage(ctx context.Context, accessToken string, msg *out.OutgoingMessage) (*out.SentMessage, error) {
	svc, err := p.getService(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	raw := buildRawMessage(msg)
	gmailMsg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(raw)),
		ThreadId: msg.ThreadID,
	}

	var sent *gmail.Message
	cbErr := p.executeWithCircuitBreaker("SendMessage", func() error {
		var apiErr error
		sent, apiErr = svc.Users.Messages.Send("me", gmailMsg).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, p.wrapError(cbErr, "failed to send message")
	}

	return &out.SentMessage{
		ID:       sent.Id,
		ThreadID: sent.ThreadId,
	}, nil
}

func (p *GmailProvider) getService(ctx context.Context, accessToken string) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return gmail.NewService(ctx, option.WithTokenSource(src))
}

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection. Client errors (4xx) must not trip the circuit.
func (p *GmailProvider) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		logger.Warn("Gmail API %s failed: state=%s, err=%v", operation, p.cb.State().String(), err)
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (p *GmailProvider) wrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		return fmt.Errorf("gmail: %s (status %d): %w", msg, apiErr.Code, err)
	}
	return fmt.Errorf("gmail: %s: %w", msg, err)
}

func convertGmailMessage(msg *gmail.Message) *out.ProviderMessage {
	result := &out.ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		Labels:       msg.LabelIds,
		SizeEstimate: msg.SizeEstimate,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				result.From = h.Value
			case "To":
				result.To = parseAddressList(h.Value)
			case "Cc":
				result.Cc = parseAddressList(h.Value)
			case "Bcc":
				result.Bcc = parseAddressList(h.Value)
			case "Date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					utc := t.UTC()
					result.SentAt = &utc
				}
			}
		}

		extractGmailBody(msg.Payload, result)
		result.HasAttachments = hasGmailAttachments(msg.Payload)
	}

	// Date header can be missing or unparsable, fall back to the
	// provider's internal timestamp
	if result.SentAt == nil && msg.InternalDate > 0 {
		t := time.Unix(0, msg.InternalDate*int64(time.Millisecond)).UTC()
		result.SentAt = &t
	}

	return result
}

// extractGmailBody walks the MIME tree and keeps the first text/plain
// and first text/html parts it finds.
func extractGmailBody(part *gmail.MessagePart, result *out.ProviderMessage) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if result.TextBody == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					result.TextBody = string(data)
				}
			}
		case "text/html":
			if result.HTMLBody == "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					result.HTMLBody = string(data)
				}
			}
		}
	}

	for _, p := range part.Parts {
		extractGmailBody(p, result)
	}
}

func hasGmailAttachments(part *gmail.MessagePart) bool {
	if part == nil {
		return false
	}
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		return true
	}
	for _, p := range part.Parts {
		if hasGmailAttachments(p) {
			return true
		}
	}
	return false
}

func parseAddressList(s string) []string {
	if s == "" {
		return nil
	}

	list, err := mail.ParseAddressList(s)
	if err != nil {
		return []string{s}
	}

	result := make([]string, len(list))
	for i, addr := range list {
		if addr.Name != "" {
			result[i] = fmt.Sprintf("%s <%s>", addr.Name, addr.Address)
		} else {
			result[i] = addr.Address
		}
	}
	return result
}

func buildRawMessage(msg *out.OutgoingMessage) string {
	var buf strings.Builder

	if len(msg.To) > 0 {
		buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	}
	if len(msg.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(msg.Cc, ", ")))
	}
	if len(msg.Bcc) > 0 {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(msg.Bcc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))

	if msg.InReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", msg.InReplyTo))
		buf.WriteString(fmt.Sprintf("References: %s\r\n", msg.InReplyTo))
	}

	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)

	return buf.String()
}
