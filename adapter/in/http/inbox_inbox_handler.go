package http

import (
	"github.com/gofiber/fiber/v2"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/pkg/response"
)

// InboxHandler exposes the threaded inbox read model plus sync, reply
// and categorization operations.
type InboxHandler struct {
	ingest     in.IngestService
	threads    in.ThreadService
	categorize in.CategorizeService
}

func NewInboxHandler(ingest in.IngestService, threads in.ThreadService, categorize in.CategorizeService) *InboxHandler {
	return &InboxHandler{
		ingest:     ingest,
		threads:    threads,
		categorize: categorize,
	}
}

func (h *InboxHandler) Register(app fiber.Router) {
	inbox := app.Group("/inbox")
	inbox.Post("/emails/sync", h.Sync)
	inbox.Post("/emails/categorize", h.Categorize)
	inbox.Get("/emails", h.ListEmails)
	inbox.Get("/email/:id", h.GetEmail)
	inbox.Post("/email/:id/reply", h.Reply)
	inbox.Put("/email/:id/read", h.MarkEmailRead)
	inbox.Get("/thread/:id", h.GetThread)
	inbox.Put("/thread/:id/read", h.MarkThreadRead)
	inbox.Get("/", h.ListThreads)
}

// Sync pulls new messages from the user's connected providers. With
// ?provider= only that provider syncs.
func (h *InboxHandler) Sync(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	opts := in.FetchOptions{
		MaxResults: c.QueryInt("max_results", 0),
		OnlyNew:    true,
	}

	var emails []*domain.Email
	if providerParam := c.Query("provider"); providerParam != "" {
		provider := domain.OAuthProvider(providerParam)
		if !provider.Valid() {
			return response.BadRequest(c, "unknown provider")
		}
		emails, err = h.ingest.Fetch(c.Context(), userID, provider, opts)
	} else {
		emails, err = h.ingest.FetchAll(c.Context(), userID, opts)
	}
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return response.OK(c, fiber.Map{
		"synced": len(emails),
		"emails": emails,
	})
}

// ListThreads returns the user's conversations, newest first.
func (h *InboxHandler) ListThreads(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	p := response.GetPagination(c, 20, 100)
	threads, total, err := h.threads.ListThreads(c.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return response.OKWithMeta(c, threads, &response.Meta{
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+len(threads) < total,
	})
}

// GetThread returns one conversation with full bodies.
func (h *InboxHandler) GetThread(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	threadID := c.Params("id")
	if threadID == "" {
		return response.BadRequest(c, "thread id required")
	}

	thread, err := h.threads.GetThread(c.Context(), userID, threadID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if thread == nil {
		return response.NotFound(c, "thread not found")
	}
	return response.OK(c, thread)
}

// ListEmails returns a flat, non-threaded email page.
func (h *InboxHandler) ListEmails(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	p := response.GetPagination(c, 50, 100)
	emails, err := h.threads.ListEmails(c.Context(), userID, p.Limit, p.Offset)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return response.OKWithMeta(c, emails, &response.Meta{
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

// GetEmail returns one email with its body.
func (h *InboxHandler) GetEmail(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	emailID, err := ParseIDParam(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	email, _, err := h.threads.GetEmail(c.Context(), userID, emailID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if email == nil {
		return response.NotFound(c, "email not found")
	}
	return response.OK(c, email)
}

// Reply sends a reply to a stored email and returns the sent copy.
func (h *InboxHandler) Reply(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	emailID, err := ParseIDParam(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	var req in.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	sent, err := h.ingest.SendReply(c.Context(), userID, emailID, &req)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.Created(c, sent)
}

// MarkEmailRead marks one email read.
func (h *InboxHandler) MarkEmailRead(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	emailID, err := ParseIDParam(c, "id")
	if err != nil {
		return AppErrorResponse(c, err)
	}

	updated, err := h.threads.MarkEmailRead(c.Context(), userID, emailID, true)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if !updated {
		return response.NotFound(c, "email not found")
	}
	return response.OK(c, fiber.Map{"read": true})
}

// MarkThreadRead marks every email in a thread read.
func (h *InboxHandler) MarkThreadRead(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	threadID := c.Params("id")
	if threadID == "" {
		return response.BadRequest(c, "thread id required")
	}

	count, err := h.threads.MarkThreadRead(c.Context(), userID, threadID, true)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, fiber.Map{"updated": count})
}

// Categorize runs the categorization model over stored emails that have
// no category yet.
func (h *InboxHandler) Categorize(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	limit := c.QueryInt("limit", 50)
	count, err := h.categorize.CategorizeExisting(c.Context(), userID, limit)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	return response.OK(c, fiber.Map{"categorized": count})
}
