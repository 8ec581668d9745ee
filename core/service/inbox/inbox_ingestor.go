package inbox

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// Ingestor pulls messages from providers and materializes them as
// stored emails without duplication. Provider failures during fetch
// degrade to empty results; only SendReply surfaces structured errors.
type Ingestor struct {
	registry  in.BrokerRegistry
	conns     out.ConnectionRepository
	emails    out.EmailRepository
	bodies    out.EmailBodyRepository
	providers map[domain.OAuthProvider]out.MessageProvider

	categorize         in.CategorizeService
	categorizeOnIngest bool
}

var _ in.IngestService = (*Ingestor)(nil)

func NewIngestor(
	registry in.BrokerRegistry,
	conns out.ConnectionRepository,
	emails out.EmailRepository,
	bodies out.EmailBodyRepository,
	providers map[domain.OAuthProvider]out.MessageProvider,
	categorize in.CategorizeService,
	categorizeOnIngest bool,
) *Ingestor {
	return &Ingestor{
		registry:           registry,
		conns:              conns,
		emails:             emails,
		bodies:             bodies,
		providers:          providers,
		categorize:         categorize,
		categorizeOnIngest: categorizeOnIngest,
	}
}

// Fetch syncs messages for (user, provider). A missing or unrefreshable
// credential yields an empty result; the connection status tells the
// caller whether re-auth is needed.
func (s *Ingestor) Fetch(ctx context.Context, userID uuid.UUID, provider domain.OAuthProvider, opts in.FetchOptions) ([]*domain.Email, error) {
	log := logger.WithField("user_id", userID.String()).WithField("provider", string(provider))

	broker, ok := s.registry.Broker(provider)
	if !ok {
		return nil, apperr.BadRequest("unsupported provider: " + string(provider))
	}
	msgProvider, ok := s.providers[provider]
	if !ok {
		return nil, apperr.ConfigError("no message provider for " + string(provider))
	}

	token, err := broker.ValidToken(ctx, userID)
	if err != nil {
		log.WithError(err).Error("failed to resolve token for sync")
		return []*domain.Email{}, nil
	}
	if token == "" {
		log.Debug("no valid token, skipping sync")
		return []*domain.Email{}, nil
	}

	if opts.MaxResults <= 0 {
		opts.MaxResults = 50
	}

	// Watermark: newest stored sent_at bounds incremental fetches. A
	// storage-state read, not a cursor; overlap at the boundary is
	// absorbed by the upsert key.
	var newerThan *time.Time
	if opts.OnlyNew {
		watermark, err := s.emails.LatestSentAt(ctx, userID, provider)
		if err != nil {
			log.WithError(err).Warn("failed to read sync watermark, doing full fetch")
		} else {
			newerThan = watermark
		}
	}

	ids, err := msgProvider.ListMessageIDs(ctx, token, opts.MaxResults, newerThan)
	if err != nil {
		log.WithError(err).Warn("provider message list failed")
		return []*domain.Email{}, nil
	}

	start := time.Now()
	results := make([]*domain.Email, 0, len(ids))
	for _, id := range ids {
		if opts.OnlyNew {
			// Skip known messages without a detail fetch.
			exists, err := s.emails.Exists(ctx, userID, provider, id)
			if err != nil {
				log.WithError(err).Warn("dedup check failed for message %s", id)
			} else if exists {
				continue
			}
		}

		msg, err := msgProvider.GetMessage(ctx, token, id)
		if err != nil {
			log.WithError(err).Warn("failed to fetch message %s", id)
			continue
		}

		email := normalizeMessage(userID, provider, msg)
		stored, err := s.emails.Upsert(ctx, email)
		if err != nil {
			log.WithError(err).Error("failed to store message %s", id)
			continue
		}

		if msg.TextBody != "" || msg.HTMLBody != "" {
			body := &domain.EmailBody{
				EmailID:  stored.ID,
				TextBody: msg.TextBody,
				HTMLBody: msg.HTMLBody,
			}
			if err := s.bodies.Upsert(ctx, body); err != nil {
				log.WithError(err).Warn("failed to store body for message %s", id)
			}
		}

		// Best-effort: a categorization failure never fails ingestion.
		if s.categorizeOnIngest && s.categorize != nil && stored.Category == nil {
			s.categorize.CategorizeEmail(ctx, stored, msg.TextBody)
		}

		results = append(results, stored)
	}

	if _, err := s.conns.TouchSync(ctx, userID, provider); err != nil {
		log.WithError(err).Warn("failed to stamp last_sync_at")
	}

	log.WithDuration(time.Since(start)).Info("sync finished: %d of %d messages ingested", len(results), len(ids))
	return results, nil
}

// FetchAll syncs every provider the user has connected.
func (s *Ingestor) FetchAll(ctx context.Context, userID uuid.UUID, opts in.FetchOptions) ([]*domain.Email, error) {
	conns, err := s.conns.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.DatabaseError("list connections", err)
	}

	var all []*domain.Email
	for _, conn := range conns {
		if !conn.IsConnected() {
			continue
		}
		emails, err := s.Fetch(ctx, userID, conn.Provider, opts)
		if err != nil {
			logger.WithField("provider", string(conn.Provider)).WithError(err).Warn("sync failed")
			continue
		}
		all = append(all, emails...)
	}
	if all == nil {
		all = []*domain.Email{}
	}
	return all, nil
}

// SendReply sends a reply to a stored email. The original is loaded
// from storage only, never re-fetched from the provider. On provider
// failure nothing is written.
func (s *Ingestor) SendReply(ctx context.Context, userID, originalID uuid.UUID, req *in.ReplyRequest) (*domain.Email, error) {
	if req == nil || req.ReplyBody == "" {
		return nil, apperr.MissingField("reply_body")
	}

	original, err := s.emails.GetByID(ctx, userID, originalID)
	if err != nil {
		return nil, apperr.DatabaseError("get email", err)
	}
	if original == nil {
		return nil, apperr.NotFound("email")
	}

	broker, ok := s.registry.Broker(original.Provider)
	if !ok {
		return nil, apperr.BadRequest("unsupported provider: " + string(original.Provider))
	}
	msgProvider, ok := s.providers[original.Provider]
	if !ok {
		return nil, apperr.ConfigError("no message provider for " + string(original.Provider))
	}

	token, err := broker.ValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.ReauthRequired(string(original.Provider))
	}

	to := req.To
	if len(to) == 0 {
		to = []string{domain.BareAddress(original.FromAddress)}
	}
	subject := req.ReplySubject
	if subject == "" {
		subject = domain.EnsureReplySubject(original.Subject)
	}

	sent, err := msgProvider.SendMessage(ctx, token, &out.OutgoingMessage{
		To:        to,
		Cc:        req.Cc,
		Bcc:       req.Bcc,
		Subject:   subject,
		Body:      req.ReplyBody,
		ThreadID:  original.EffectiveThreadID(),
		InReplyTo: original.ProviderMessageID,
	})
	if err != nil {
		return nil, apperr.SendFailed(string(original.Provider), err)
	}

	// Synthesize the stored copy from known fields, no re-fetch.
	now := time.Now().UTC()
	threadID := sent.ThreadID
	if threadID == "" {
		threadID = original.EffectiveThreadID()
	}

	fromAddress := ""
	if conn, err := s.conns.GetByUserAndProvider(ctx, userID, original.Provider); err == nil && conn != nil {
		fromAddress = conn.Email
	}

	reply := &domain.Email{
		UserID:            userID,
		Provider:          original.Provider,
		ProviderMessageID: sent.ID,
		ThreadID:          threadID,
		Subject:           subject,
		FromAddress:       fromAddress,
		ToAddresses:       to,
		CcAddresses:       req.Cc,
		BccAddresses:      req.Bcc,
		SentAt:            &now,
		Snippet:           snippet(req.ReplyBody),
		Labels:            []string{domain.LabelSent},
		IsRead:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stored, err := s.emails.Upsert(ctx, reply)
	if err != nil {
		return nil, apperr.DatabaseError("store sent email", err)
	}

	if err := s.bodies.Upsert(ctx, &domain.EmailBody{EmailID: stored.ID, TextBody: req.ReplyBody}); err != nil {
		logger.WithError(err).Warn("failed to store sent body for email %s", stored.ID)
	}

	logger.WithField("user_id", userID.String()).
		WithField("provider", string(original.Provider)).
		Info("reply sent for email %s", originalID)
	return stored, nil
}

// normalizeMessage maps a provider message onto the canonical email
// shape. Timestamps are UTC-normalized on the way in.
func normalizeMessage(userID uuid.UUID, provider domain.OAuthProvider, msg *out.ProviderMessage) *domain.Email {
	now := time.Now().UTC()
	return &domain.Email{
		UserID:            userID,
		Provider:          provider,
		ProviderMessageID: msg.ID,
		ThreadID:          msg.ThreadID,
		Subject:           msg.Subject,
		FromAddress:       msg.From,
		ToAddresses:       msg.To,
		CcAddresses:       msg.Cc,
		BccAddresses:      msg.Bcc,
		SentAt:            domain.NormalizeUTCPtr(msg.SentAt),
		Snippet:           msg.Snippet,
		Labels:            msg.Labels,
		HasAttachments:    msg.HasAttachments,
		SizeEstimate:      msg.SizeEstimate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func snippet(body string) string {
	const max = 200
	if len(body) <= max {
		return body
	}
	// Back up from the byte cut so a multi-byte rune is never split.
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
