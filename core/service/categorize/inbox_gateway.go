package categorize

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// Gateway runs the categorization model over stored emails. Every call
// is best-effort: a model failure leaves the email uncategorized and is
// only logged.
type Gateway struct {
	categorizer out.Categorizer
	emails      out.EmailRepository
	bodies      out.EmailBodyRepository
}

var _ in.CategorizeService = (*Gateway)(nil)

func NewGateway(categorizer out.Categorizer, emails out.EmailRepository, bodies out.EmailBodyRepository) *Gateway {
	return &Gateway{
		categorizer: categorizer,
		emails:      emails,
		bodies:      bodies,
	}
}

// CategorizeEmail categorizes one email and writes the result back.
// Returns nil on any failure, including a missing categorizer.
func (g *Gateway) CategorizeEmail(ctx context.Context, email *domain.Email, textBody string) *domain.CategorizationResult {
	if g.categorizer == nil {
		logger.Debug("categorizer not configured, skipping email %s", email.ID)
		return nil
	}

	content := textBody
	if content == "" {
		content = email.Snippet
	}

	result, err := g.categorizer.Categorize(ctx, email.Subject, email.FromAddress, content)
	if err != nil {
		logger.WithField("user_id", email.UserID.String()).
			WithError(err).
			Warn("categorization failed for email %s", email.ID)
		return nil
	}

	if err := g.emails.UpdateCategorization(ctx, email.UserID, email.ID, result, g.categorizer.PromptVersion()); err != nil {
		logger.WithError(err).Error("failed to store categorization for email %s", email.ID)
		return nil
	}

	return result
}

// CategorizeExisting categorizes up to limit stored uncategorized
// emails for the user and returns the count categorized.
func (g *Gateway) CategorizeExisting(ctx context.Context, userID uuid.UUID, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}

	emails, err := g.emails.ListUncategorized(ctx, userID, limit)
	if err != nil {
		return 0, apperr.DatabaseError("list uncategorized", err)
	}
	if len(emails) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(emails))
	for i, e := range emails {
		ids[i] = e.ID
	}
	bodyMap, err := g.bodies.GetByEmailIDs(ctx, ids)
	if err != nil {
		logger.WithError(err).Warn("failed to load bodies for batch categorization")
		bodyMap = map[uuid.UUID]*domain.EmailBody{}
	}

	categorized := 0
	for _, email := range emails {
		textBody := ""
		if body := bodyMap[email.ID]; body != nil {
			textBody = body.TextBody
		}
		if g.CategorizeEmail(ctx, email, textBody) != nil {
			categorized++
		}
	}

	logger.WithField("user_id", userID.String()).
		Info("batch categorization finished: %d/%d categorized", categorized, len(emails))
	return categorized, nil
}
