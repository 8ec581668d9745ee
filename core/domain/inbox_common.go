package domain

import (
	"strings"
	"time"
)

// NormalizeUTC converts t to UTC. Zero times pass through unchanged so
// optional timestamps stay recognizably unset. Idempotent.
func NormalizeUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// NormalizeUTCPtr converts *t to UTC in place, tolerating nil.
func NormalizeUTCPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := NormalizeUTC(*t)
	return &u
}

// BareAddress extracts the address part from a "Name <addr>" header
// value. Bare addresses pass through unchanged.
func BareAddress(from string) string {
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.Index(from[i:], ">"); j > 0 {
			return strings.TrimSpace(from[i+1 : i+j])
		}
	}
	return from
}

// EnsureReplySubject prefixes subject with "Re: " unless already prefixed.
func EnsureReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
