package domain

import (
	"testing"
	"time"
)

func TestNormalizeUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	local := time.Date(2025, 3, 1, 18, 30, 0, 0, loc)

	got := NormalizeUTC(local)
	if got.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", got.Location())
	}
	if !got.Equal(local) {
		t.Errorf("normalization changed the instant: %v != %v", got, local)
	}

	var zero time.Time
	if !NormalizeUTC(zero).IsZero() {
		t.Error("zero time should pass through unchanged")
	}

	if NormalizeUTCPtr(nil) != nil {
		t.Error("nil pointer should pass through")
	}
}

func TestBareAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"display name with brackets", "Alice Kim <alice@example.com>", "alice@example.com"},
		{"bare address", "bob@example.com", "bob@example.com"},
		{"quoted display name", `"Kim, Alice" <alice@example.com>`, "alice@example.com"},
		{"surrounding whitespace", "  carol@example.com  ", "carol@example.com"},
		{"unclosed bracket falls through", "broken <alice@example.com", "broken <alice@example.com"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BareAddress(tt.in); got != tt.want {
				t.Errorf("BareAddress(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnsureReplySubject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain subject gets prefix", "Quarterly report", "Re: Quarterly report"},
		{"existing Re: kept", "Re: Quarterly report", "Re: Quarterly report"},
		{"lowercase re: kept", "re: hello", "re: hello"},
		{"uppercase RE: kept", "RE: hello", "RE: hello"},
		{"empty subject", "", "Re: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EnsureReplySubject(tt.in); got != tt.want {
				t.Errorf("EnsureReplySubject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEffectiveThreadID(t *testing.T) {
	withThread := &Email{ProviderMessageID: "m1", ThreadID: "t1"}
	if got := withThread.EffectiveThreadID(); got != "t1" {
		t.Errorf("expected thread id t1, got %q", got)
	}

	withoutThread := &Email{ProviderMessageID: "m1"}
	if got := withoutThread.EffectiveThreadID(); got != "m1" {
		t.Errorf("expected fallback to message id m1, got %q", got)
	}
}
