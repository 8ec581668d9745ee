package out

import (
	"context"

	"inbox_server/core/domain"
)

// Categorizer defines the outbound port to the categorization model.
// Calls are best-effort and side-effect free; callers own the timeout.
type Categorizer interface {
	Categorize(ctx context.Context, subject, sender, content string) (*domain.CategorizationResult, error)

	// PromptVersion identifies the prompt used, recorded alongside results.
	PromptVersion() string
}
