package categorize

import (
	"testing"

	"inbox_server/core/domain"
)

func TestParseResult(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantCategory   domain.EmailCategory
		wantConfidence float64
		wantErr        bool
	}{
		{
			name:           "clean JSON object",
			raw:            `{"category": "CLIENT_COMMUNICATION", "confidence": 0.92, "reasoning": "direct client question"}`,
			wantCategory:   domain.CategoryClientCommunication,
			wantConfidence: 0.92,
		},
		{
			name:           "JSON wrapped in prose",
			raw:            "Sure, here is the classification:\n{\"category\": \"TRANSACTION_ALERTS\", \"confidence\": 0.8, \"reasoning\": \"payment notice\"}\nLet me know if you need more.",
			wantCategory:   domain.CategoryTransactionAlerts,
			wantConfidence: 0.8,
		},
		{
			name:           "lowercase category is normalized",
			raw:            `{"category": "marketing_sales", "confidence": 0.7, "reasoning": "promo"}`,
			wantCategory:   domain.CategoryMarketingSales,
			wantConfidence: 0.7,
		},
		{
			name:           "unknown category falls back to OTHER",
			raw:            `{"category": "SPAM", "confidence": 0.9, "reasoning": "junk"}`,
			wantCategory:   domain.CategoryOther,
			wantConfidence: 0.9,
		},
		{
			name:           "confidence above one is clamped",
			raw:            `{"category": "OTHER", "confidence": 1.7, "reasoning": ""}`,
			wantCategory:   domain.CategoryOther,
			wantConfidence: 1,
		},
		{
			name:           "negative confidence is clamped",
			raw:            `{"category": "OTHER", "confidence": -0.3, "reasoning": ""}`,
			wantCategory:   domain.CategoryOther,
			wantConfidence: 0,
		},
		{
			name:    "no JSON object at all",
			raw:     "I cannot classify this email.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			raw:     `{"category": "OTHER", "confidence":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResult(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.wantCategory {
				t.Errorf("category = %s, want %s", got.Category, tt.wantCategory)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
