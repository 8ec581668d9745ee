package provider

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestSplitSlackMessageID(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantChannel string
		wantTs      string
		wantErr     bool
	}{
		{"valid", "C012ABC:1717236000.000100", "C012ABC", "1717236000.000100", false},
		{"ts containing colon keeps remainder", "C012ABC:17:22", "C012ABC", "17:22", false},
		{"missing separator", "C012ABC", "", "", true},
		{"empty channel", ":1717236000.000100", "", "", true},
		{"empty ts", "C012ABC:", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channel, ts, err := splitSlackMessageID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("splitSlackMessageID(%q) should fail", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if channel != tt.wantChannel || ts != tt.wantTs {
				t.Errorf("got (%q, %q), want (%q, %q)", channel, ts, tt.wantChannel, tt.wantTs)
			}
		})
	}
}

func TestSlackTsToTime(t *testing.T) {
	got := slackTsToTime("1717236000.500000")
	if got == nil {
		t.Fatal("valid ts should parse")
	}
	if got.Unix() != 1717236000 {
		t.Errorf("seconds = %d", got.Unix())
	}
	if got.Location() != time.UTC {
		t.Errorf("location = %v, want UTC", got.Location())
	}
	// Fractional part lands in the nanosecond field, within float tolerance.
	if ns := got.Nanosecond(); ns < 499_000_000 || ns > 501_000_000 {
		t.Errorf("nanoseconds = %d, want ~500ms", ns)
	}

	if slackTsToTime("not-a-ts") != nil {
		t.Error("garbage ts should return nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("short string should pass through, got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("", 5); got != "" {
		t.Errorf("empty = %q", got)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// Each hangul syllable is three bytes; a cut at 7 lands mid-rune.
	if got := truncate("안녕하세요", 7); got != "안녕" {
		t.Errorf("truncate = %q, want %q", got, "안녕")
	}
	if got := truncate("héllo", 2); got != "h" {
		t.Errorf("truncate = %q, want %q", got, "h")
	}

	long := strings.Repeat("메시지", 100)
	got := truncate(long, 200)
	if !utf8.ValidString(got) {
		t.Errorf("truncate produced invalid UTF-8: %q", got)
	}
	if len(got) > 200 {
		t.Errorf("truncate length = %d, want <= 200", len(got))
	}
}
