package http

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
)

type stubRegistry struct {
	conns []*domain.Connection
	err   error
}

func (r *stubRegistry) Broker(domain.OAuthProvider) (in.CredentialBroker, bool) {
	return nil, false
}

func (r *stubRegistry) Providers() []domain.OAuthProvider {
	return nil
}

func (r *stubRegistry) ListConnections(context.Context, uuid.UUID) ([]*domain.Connection, error) {
	return r.conns, r.err
}

func authAs(userID uuid.UUID) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

type connectionsEnvelope struct {
	Success bool                 `json:"success"`
	Data    []*domain.Connection `json:"data"`
}

func getConnections(t *testing.T, app *fiber.App) (int, connectionsEnvelope) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/connections", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var envelope connectionsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("decode body %q: %v", raw, err)
	}
	return resp.StatusCode, envelope
}

func TestConnectionsListsAllProviders(t *testing.T) {
	userID := uuid.New()
	credID := uuid.New()
	registry := &stubRegistry{conns: []*domain.Connection{
		{ID: uuid.New(), UserID: userID, Provider: domain.ProviderGmail, Status: domain.StatusConnected, CredentialID: &credID},
		{ID: uuid.New(), UserID: userID, Provider: domain.ProviderSlack, Status: domain.StatusDisconnected},
	}}

	app := fiber.New()
	NewOAuthHandler(registry, "http://localhost:3000").Register(app, authAs(userID))

	status, envelope := getConnections(t, app)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", status, fiber.StatusOK)
	}
	if !envelope.Success {
		t.Fatal("expected success envelope")
	}
	if len(envelope.Data) != 2 {
		t.Fatalf("got %d connections, want 2", len(envelope.Data))
	}
	if envelope.Data[0].Provider != domain.ProviderGmail || envelope.Data[1].Provider != domain.ProviderSlack {
		t.Fatalf("unexpected provider order: %s, %s", envelope.Data[0].Provider, envelope.Data[1].Provider)
	}
}

func TestConnectionsEmptyListIsNotNull(t *testing.T) {
	userID := uuid.New()
	app := fiber.New()
	NewOAuthHandler(&stubRegistry{}, "http://localhost:3000").Register(app, authAs(userID))

	status, envelope := getConnections(t, app)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", status, fiber.StatusOK)
	}
	if envelope.Data == nil {
		t.Fatal("expected empty list, got null data")
	}
	if len(envelope.Data) != 0 {
		t.Fatalf("got %d connections, want 0", len(envelope.Data))
	}
}

func TestConnectionsRequiresAuth(t *testing.T) {
	app := fiber.New()
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	NewOAuthHandler(&stubRegistry{}, "http://localhost:3000").Register(app, passthrough)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/connections", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusUnauthorized)
	}
}
