package inbox

import (
	"context"

	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/pkg/apperr"
	"inbox_server/pkg/logger"
)

// Threads is the read-only projection of stored emails into
// conversation threads. Nothing here is cached; thread metadata is
// recomputed from current members on every read.
type Threads struct {
	emails out.EmailRepository
	bodies out.EmailBodyRepository
}

var _ in.ThreadService = (*Threads)(nil)

func NewThreads(emails out.EmailRepository, bodies out.EmailBodyRepository) *Threads {
	return &Threads{emails: emails, bodies: bodies}
}

// ListThreads groups the user's emails by thread id. Input arrives
// ordered by sent_at descending, so first-seen group order is already
// newest-thread-first; members are then reversed into conversational
// (oldest first) order. Pagination applies to the thread list.
func (s *Threads) ListThreads(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Thread, int, error) {
	emails, err := s.emails.ListAllByUser(ctx, userID)
	if err != nil {
		return nil, 0, apperr.DatabaseError("list emails", err)
	}

	groups := make(map[string][]*domain.Email)
	var order []string
	for _, e := range emails {
		key := e.EffectiveThreadID()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	threads := make([]*domain.Thread, 0, len(order))
	for _, key := range order {
		threads = append(threads, buildThread(key, groups[key]))
	}
	total := len(threads)

	if offset >= total {
		return []*domain.Thread{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return threads[offset:end], total, nil
}

// GetThread returns one thread with full bodies attached per member.
func (s *Threads) GetThread(ctx context.Context, userID uuid.UUID, threadID string) (*domain.Thread, error) {
	members, err := s.emails.ListByThread(ctx, userID, threadID)
	if err != nil {
		return nil, apperr.DatabaseError("list thread emails", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(members))
	for i, e := range members {
		ids[i] = e.ID
	}
	bodyMap, err := s.bodies.GetByEmailIDs(ctx, ids)
	if err != nil {
		logger.WithError(err).Warn("failed to load bodies for thread %s", threadID)
		bodyMap = map[uuid.UUID]*domain.EmailBody{}
	}
	for _, e := range members {
		e.Body = bodyMap[e.ID]
	}

	// Members already arrive ascending from the repository.
	thread := buildThreadFromAscending(threadID, members)
	return thread, nil
}

// ListEmails returns a flat page of the user's emails, newest first.
func (s *Threads) ListEmails(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Email, error) {
	emails, err := s.emails.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, apperr.DatabaseError("list emails", err)
	}
	return emails, nil
}

// GetEmail returns one email with its body.
func (s *Threads) GetEmail(ctx context.Context, userID, emailID uuid.UUID) (*domain.Email, *domain.EmailBody, error) {
	email, err := s.emails.GetByID(ctx, userID, emailID)
	if err != nil {
		return nil, nil, apperr.DatabaseError("get email", err)
	}
	if email == nil {
		return nil, nil, nil
	}

	body, err := s.bodies.Get(ctx, email.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to load body for email %s", emailID)
		body = nil
	}
	email.Body = body
	return email, body, nil
}

// MarkEmailRead toggles the read flag on one email.
func (s *Threads) MarkEmailRead(ctx context.Context, userID, emailID uuid.UUID, read bool) (bool, error) {
	ok, err := s.emails.MarkRead(ctx, userID, emailID, read)
	if err != nil {
		return false, apperr.DatabaseError("mark read", err)
	}
	return ok, nil
}

// MarkThreadRead toggles the read flag across a thread.
func (s *Threads) MarkThreadRead(ctx context.Context, userID uuid.UUID, threadID string, read bool) (int, error) {
	n, err := s.emails.MarkThreadRead(ctx, userID, threadID, read)
	if err != nil {
		return 0, apperr.DatabaseError("mark thread read", err)
	}
	return n, nil
}

// buildThread computes thread aggregates from members ordered newest
// first. Members are reversed into ascending order for the projection.
func buildThread(threadID string, membersDesc []*domain.Email) *domain.Thread {
	asc := make([]*domain.Email, len(membersDesc))
	for i, e := range membersDesc {
		asc[len(membersDesc)-1-i] = e
	}
	return buildThreadFromAscending(threadID, asc)
}

// buildThreadFromAscending computes aggregates from members already in
// ascending sent_at order, nil timestamps first (they sort oldest).
func buildThreadFromAscending(threadID string, asc []*domain.Email) *domain.Thread {
	thread := &domain.Thread{
		ThreadID:   threadID,
		EmailCount: len(asc),
		Emails:     asc,
	}

	for _, e := range asc {
		if !e.IsRead {
			thread.UnreadCount++
		}
		if e.HasAttachments {
			thread.HasAttachments = true
		}
	}

	// Subject, sender and date come from the most recent member.
	latest := asc[len(asc)-1]
	thread.Subject = latest.Subject
	thread.LatestSender = latest.FromAddress
	thread.LatestSentAt = latest.SentAt

	return thread
}
