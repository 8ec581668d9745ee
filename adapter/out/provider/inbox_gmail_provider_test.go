package provider

import (
	"encoding/base64"
	"strings"
	"testing"

	gmail "google.golang.org/api/gmail/v1"

	"inbox_server/core/port/out"
)

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestConvertGmailMessage(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m1",
		ThreadId:     "t1",
		Snippet:      "preview text",
		LabelIds:     []string{"INBOX", "UNREAD"},
		SizeEstimate: 2048,
		InternalDate: 1717236000000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Quarterly numbers"},
				{Name: "From", Value: "Alice Kim <alice@example.com>"},
				{Name: "To", Value: "bob@example.com, Carol <carol@example.com>"},
				{Name: "Date", Value: "Sat, 01 Jun 2024 10:00:00 +0900"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/plain",
					Body:     &gmail.MessagePartBody{Data: b64url("plain body")},
				},
				{
					MimeType: "text/html",
					Body:     &gmail.MessagePartBody{Data: b64url("<p>html body</p>")},
				},
			},
		},
	}

	got := convertGmailMessage(msg)
	if got.ID != "m1" || got.ThreadID != "t1" {
		t.Errorf("ids wrong: %+v", got)
	}
	if got.Subject != "Quarterly numbers" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.From != "Alice Kim <alice@example.com>" {
		t.Errorf("from = %q", got.From)
	}
	if len(got.To) != 2 || got.To[0] != "bob@example.com" || got.To[1] != "Carol <carol@example.com>" {
		t.Errorf("to = %v", got.To)
	}
	if got.TextBody != "plain body" || got.HTMLBody != "<p>html body</p>" {
		t.Errorf("bodies: text=%q html=%q", got.TextBody, got.HTMLBody)
	}
	if got.SentAt == nil {
		t.Fatal("sent_at should be parsed")
	}
	if got.SentAt.Location().String() != "UTC" {
		t.Errorf("sent_at should be UTC, got %v", got.SentAt.Location())
	}
	if got.HasAttachments {
		t.Error("no attachments present")
	}
}

func TestConvertGmailMessageFallsBackToInternalDate(t *testing.T) {
	msg := &gmail.Message{
		Id:           "m2",
		InternalDate: 1717236000000, // 2024-06-01T10:00:00Z in millis
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "Date", Value: "not a date"},
			},
		},
	}

	got := convertGmailMessage(msg)
	if got.SentAt == nil {
		t.Fatal("internal date should back-fill sent_at")
	}
	if got.SentAt.Unix() != 1717236000 {
		t.Errorf("sent_at = %v", got.SentAt)
	}
}

func TestExtractGmailBodyFirstFoundWins(t *testing.T) {
	result := &out.ProviderMessage{}
	part := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "text/plain",
				Body:     &gmail.MessagePartBody{Data: b64url("first plain")},
			},
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{
						MimeType: "text/plain",
						Body:     &gmail.MessagePartBody{Data: b64url("second plain")},
					},
					{
						MimeType: "text/html",
						Body:     &gmail.MessagePartBody{Data: b64url("nested html")},
					},
				},
			},
		},
	}

	extractGmailBody(part, result)
	if result.TextBody != "first plain" {
		t.Errorf("first text part should win, got %q", result.TextBody)
	}
	if result.HTMLBody != "nested html" {
		t.Errorf("nested html should be found, got %q", result.HTMLBody)
	}
}

func TestHasGmailAttachments(t *testing.T) {
	inline := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("hi")}},
		},
	}
	if hasGmailAttachments(inline) {
		t.Error("inline-only message should report no attachments")
	}

	withFile := &gmail.MessagePart{
		Parts: []*gmail.MessagePart{
			{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("hi")}},
			{
				Filename: "report.pdf",
				Body:     &gmail.MessagePartBody{AttachmentId: "att-1"},
			},
		},
	}
	if !hasGmailAttachments(withFile) {
		t.Error("named part with attachment id should count")
	}

	namedInline := &gmail.MessagePart{
		Filename: "logo.png",
		Body:     &gmail.MessagePartBody{Data: b64url("bytes")},
	}
	if hasGmailAttachments(namedInline) {
		t.Error("named part without attachment id should not count")
	}
}

func TestParseAddressList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single bare", "a@example.com", []string{"a@example.com"}},
		{
			"mixed named and bare",
			`"Kim, Alice" <alice@example.com>, bob@example.com`,
			[]string{"Kim, Alice <alice@example.com>", "bob@example.com"},
		},
		{"unparsable falls through", "not an address <<", []string{"not an address <<"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseAddressList(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("parseAddressList(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildRawMessage(t *testing.T) {
	raw := buildRawMessage(&out.OutgoingMessage{
		To:        []string{"alice@example.com", "bob@example.com"},
		Cc:        []string{"carol@example.com"},
		Subject:   "Re: Budget",
		Body:      "Looks good.",
		InReplyTo: "orig-123",
	})

	wantLines := []string{
		"To: alice@example.com, bob@example.com\r\n",
		"Cc: carol@example.com\r\n",
		"Subject: Re: Budget\r\n",
		"In-Reply-To: orig-123\r\n",
		"References: orig-123\r\n",
		"Content-Type: text/plain; charset=UTF-8\r\n",
	}
	for _, line := range wantLines {
		if !strings.Contains(raw, line) {
			t.Errorf("raw message missing %q", line)
		}
	}
	if !strings.HasSuffix(raw, "\r\n\r\nLooks good.") {
		t.Errorf("headers and body must be separated by a blank line: %q", raw)
	}
	if strings.Contains(raw, "Bcc:") {
		t.Error("no Bcc header expected when none given")
	}

	minimal := buildRawMessage(&out.OutgoingMessage{
		To:      []string{"a@example.com"},
		Subject: "Hello",
		Body:    "hi",
	})
	if strings.Contains(minimal, "In-Reply-To") || strings.Contains(minimal, "References") {
		t.Error("threading headers should be absent without InReplyTo")
	}
}
