package inbox

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"inbox_server/core/domain"
)

func seedThreadFixture(emails *fakeEmailRepo) {
	// Two threads plus one standalone message without a thread id.
	emails.add(&domain.Email{
		ProviderMessageID: "a1", ThreadID: "thread-a",
		Subject: "Kickoff", FromAddress: "alice@example.com",
		SentAt: ts("2025-06-01T09:00:00Z"),
	})
	emails.add(&domain.Email{
		ProviderMessageID: "a2", ThreadID: "thread-a",
		Subject: "Re: Kickoff", FromAddress: "bob@example.com",
		SentAt: ts("2025-06-01T12:00:00Z"), HasAttachments: true,
	})
	emails.add(&domain.Email{
		ProviderMessageID: "b1", ThreadID: "thread-b",
		Subject: "Invoice", FromAddress: "billing@example.com",
		SentAt: ts("2025-06-01T10:00:00Z"), IsRead: true,
	})
	emails.add(&domain.Email{
		ProviderMessageID: "solo", Subject: "No thread",
		FromAddress: "carol@example.com",
		SentAt:      ts("2025-06-01T08:00:00Z"),
	})
}

func TestListThreadsGroupsAndOrders(t *testing.T) {
	emails := newFakeEmailRepo()
	seedThreadFixture(emails)
	svc := NewThreads(emails, newFakeBodyRepo())

	threads, total, err := svc.ListThreads(context.Background(), uuid.New(), 10, 0)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 threads, got %d", total)
	}

	// Newest thread first, keyed by its latest member.
	if threads[0].ThreadID != "thread-a" {
		t.Errorf("first thread = %s, want thread-a", threads[0].ThreadID)
	}
	if threads[1].ThreadID != "thread-b" {
		t.Errorf("second thread = %s, want thread-b", threads[1].ThreadID)
	}
	// The standalone message groups under its own message id.
	if threads[2].ThreadID != "solo" {
		t.Errorf("third thread = %s, want solo", threads[2].ThreadID)
	}

	a := threads[0]
	if a.EmailCount != 2 || a.UnreadCount != 2 {
		t.Errorf("thread-a counts: emails=%d unread=%d", a.EmailCount, a.UnreadCount)
	}
	if !a.HasAttachments {
		t.Error("thread-a should report attachments")
	}
	if a.Subject != "Re: Kickoff" || a.LatestSender != "bob@example.com" {
		t.Errorf("thread-a metadata should come from the latest member: %+v", a)
	}
	// Members in conversational order, oldest first.
	if a.Emails[0].ProviderMessageID != "a1" || a.Emails[1].ProviderMessageID != "a2" {
		t.Errorf("thread-a member order wrong: %s, %s",
			a.Emails[0].ProviderMessageID, a.Emails[1].ProviderMessageID)
	}

	b := threads[1]
	if b.UnreadCount != 0 {
		t.Errorf("thread-b unread = %d, want 0", b.UnreadCount)
	}
}

func TestListThreadsPagination(t *testing.T) {
	emails := newFakeEmailRepo()
	seedThreadFixture(emails)
	svc := NewThreads(emails, newFakeBodyRepo())
	userID := uuid.New()

	page, total, err := svc.ListThreads(context.Background(), userID, 2, 0)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Errorf("page 1: total=%d len=%d", total, len(page))
	}

	page, total, err = svc.ListThreads(context.Background(), userID, 2, 2)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("page 2: total=%d len=%d", total, len(page))
	}

	page, total, err = svc.ListThreads(context.Background(), userID, 2, 10)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if total != 3 || len(page) != 0 {
		t.Errorf("offset beyond end: total=%d len=%d", total, len(page))
	}
}

func TestListThreadsNilSentAtSortsOldest(t *testing.T) {
	emails := newFakeEmailRepo()
	emails.add(&domain.Email{
		ProviderMessageID: "dated", ThreadID: "t",
		Subject: "Dated", FromAddress: "a@example.com",
		SentAt: ts("2025-06-01T10:00:00Z"),
	})
	emails.add(&domain.Email{
		ProviderMessageID: "undated", ThreadID: "t",
		Subject: "Undated", FromAddress: "b@example.com",
	})
	svc := NewThreads(emails, newFakeBodyRepo())

	threads, _, err := svc.ListThreads(context.Background(), uuid.New(), 10, 0)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}

	thread := threads[0]
	if thread.Emails[0].ProviderMessageID != "undated" {
		t.Errorf("nil sent_at should sort oldest, first member = %s", thread.Emails[0].ProviderMessageID)
	}
	if thread.Subject != "Dated" || thread.LatestSentAt == nil {
		t.Errorf("metadata should come from the dated member: %+v", thread)
	}
}

func TestGetThreadAttachesBodies(t *testing.T) {
	emails := newFakeEmailRepo()
	bodies := newFakeBodyRepo()
	seedThreadFixture(emails)

	a1 := emails.emails["a1"]
	bodies.bodies[a1.ID] = &domain.EmailBody{EmailID: a1.ID, TextBody: "full text"}

	svc := NewThreads(emails, bodies)
	thread, err := svc.GetThread(context.Background(), uuid.New(), "thread-a")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if thread == nil || thread.EmailCount != 2 {
		t.Fatalf("unexpected thread: %+v", thread)
	}
	if thread.Emails[0].Body == nil || thread.Emails[0].Body.TextBody != "full text" {
		t.Error("body should be attached to the member that has one")
	}
	if thread.Emails[1].Body != nil {
		t.Error("member without a stored body should stay bodyless")
	}

	missing, err := svc.GetThread(context.Background(), uuid.New(), "no-such-thread")
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if missing != nil {
		t.Error("empty thread should return nil")
	}
}

func TestGetEmailAttachesBody(t *testing.T) {
	emails := newFakeEmailRepo()
	bodies := newFakeBodyRepo()
	e := emails.add(&domain.Email{ProviderMessageID: "m1", Subject: "Hello"})
	bodies.bodies[e.ID] = &domain.EmailBody{EmailID: e.ID, TextBody: "content"}

	svc := NewThreads(emails, bodies)
	got, body, err := svc.GetEmail(context.Background(), uuid.New(), e.ID)
	if err != nil {
		t.Fatalf("GetEmail: %v", err)
	}
	if got == nil || body == nil || body.TextBody != "content" {
		t.Errorf("expected email with body, got %+v / %+v", got, body)
	}

	got, body, err = svc.GetEmail(context.Background(), uuid.New(), uuid.New())
	if err != nil || got != nil || body != nil {
		t.Errorf("missing email should be (nil, nil, nil), got %+v / %+v / %v", got, body, err)
	}
}

func TestMarkThreadRead(t *testing.T) {
	emails := newFakeEmailRepo()
	seedThreadFixture(emails)
	svc := NewThreads(emails, newFakeBodyRepo())
	userID := uuid.New()

	n, err := svc.MarkThreadRead(context.Background(), userID, "thread-a", true)
	if err != nil {
		t.Fatalf("MarkThreadRead: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 members updated, got %d", n)
	}

	threads, _, err := svc.ListThreads(context.Background(), userID, 10, 0)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if threads[0].UnreadCount != 0 {
		t.Errorf("thread-a unread = %d after mark read", threads[0].UnreadCount)
	}
}
