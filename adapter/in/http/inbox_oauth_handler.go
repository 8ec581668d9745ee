package http

import (
	"context"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/pkg/logger"
	"inbox_server/pkg/response"
)

// StateResolver consumes an OAuth state and returns the user it was
// issued for. Brokers with a state store implement this.
type StateResolver interface {
	ResolveState(ctx context.Context, state string) (uuid.UUID, error)
}

// ConnectionLister returns the user's connection records across every
// provider. The registry implements this on top of the broker lookup.
type ConnectionLister interface {
	ListConnections(ctx context.Context, userID uuid.UUID) ([]*domain.Connection, error)
}

// OAuthHandler exposes the per-provider OAuth flow. Each provider gets
// its own route group: /gmail-auth, /slack-auth.
type OAuthHandler struct {
	registry    in.BrokerRegistry
	frontendURL string
}

func NewOAuthHandler(registry in.BrokerRegistry, frontendURL string) *OAuthHandler {
	return &OAuthHandler{
		registry:    registry,
		frontendURL: frontendURL,
	}
}

// Register mounts the OAuth routes. The callback stays public because
// the provider redirects there without our JWT; identity comes from the
// state round-trip instead.
func (h *OAuthHandler) Register(app fiber.Router, authRequired fiber.Handler) {
	for _, provider := range h.registry.Providers() {
		group := app.Group("/" + string(provider) + "-auth")
		group.Get("/callback", h.callback(provider))
		group.Get("/status", authRequired, h.status(provider))
		group.Post("/logout", authRequired, h.logout(provider))
		group.Get("/", authRequired, h.login(provider))
	}
	app.Get("/connections", authRequired, h.connections)
}

// connections lists every provider connection the user has, connected
// or not, for the settings screen.
func (h *OAuthHandler) connections(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return response.Unauthorized(c, "unauthorized")
	}

	lister, ok := h.registry.(ConnectionLister)
	if !ok {
		return response.OK(c, []*domain.Connection{})
	}

	conns, err := lister.ListConnections(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}
	if conns == nil {
		conns = []*domain.Connection{}
	}
	return response.OK(c, conns)
}

func (h *OAuthHandler) login(provider domain.OAuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return response.Unauthorized(c, "unauthorized")
		}

		broker, ok := h.registry.Broker(provider)
		if !ok {
			return response.NotFound(c, "unknown provider")
		}

		authURL, err := broker.AuthorizationURL(c.Context(), userID)
		if err != nil {
			return AppErrorResponse(c, err)
		}

		return response.OK(c, fiber.Map{
			"auth_url": authURL,
			"provider": string(provider),
		})
	}
}

func (h *OAuthHandler) callback(provider domain.OAuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code := c.Query("code")
		state := c.Query("state")
		errorParam := c.Query("error")

		if errorParam != "" {
			logger.WithField("provider", string(provider)).
				Warn("OAuth callback returned error: %s", errorParam)
			return h.redirectError(c, errorParam)
		}
		if code == "" {
			return h.redirectError(c, "missing_code")
		}
		if state == "" {
			return h.redirectError(c, "missing_state")
		}

		broker, ok := h.registry.Broker(provider)
		if !ok {
			return h.redirectError(c, "unknown_provider")
		}

		userID, err := h.resolveUser(c, broker, state)
		if err != nil || userID == uuid.Nil {
			logger.WithField("provider", string(provider)).
				Warn("OAuth state validation failed")
			return h.redirectError(c, "invalid_state")
		}

		if _, err := broker.ExchangeCode(c.Context(), userID, code); err != nil {
			logger.WithError(err).
				WithField("provider", string(provider)).
				WithField("user_id", userID.String()).
				Error("OAuth code exchange failed")
			return h.redirectError(c, "oauth_failed")
		}

		return c.Redirect(h.frontendURL + "/settings?success=" + string(provider))
	}
}

// resolveUser prefers the one-shot state store; a broker without one
// falls back to the user id embedded in the state itself, and finally
// to an authenticated session.
func (h *OAuthHandler) resolveUser(c *fiber.Ctx, broker in.CredentialBroker, state string) (uuid.UUID, error) {
	if resolver, ok := broker.(StateResolver); ok {
		if userID, err := resolver.ResolveState(c.Context(), state); err == nil && userID != uuid.Nil {
			return userID, nil
		}
	}
	return GetUserID(c)
}

func (h *OAuthHandler) redirectError(c *fiber.Ctx, reason string) error {
	return c.Redirect(h.frontendURL + "/settings?error=" + url.QueryEscape(reason))
}

func (h *OAuthHandler) status(provider domain.OAuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return response.Unauthorized(c, "unauthorized")
		}

		broker, ok := h.registry.Broker(provider)
		if !ok {
			return response.NotFound(c, "unknown provider")
		}

		info, err := broker.Status(c.Context(), userID)
		if err != nil {
			return AppErrorResponse(c, err)
		}
		return response.OK(c, info)
	}
}

func (h *OAuthHandler) logout(provider domain.OAuthProvider) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := GetUserID(c)
		if err != nil {
			return response.Unauthorized(c, "unauthorized")
		}

		broker, ok := h.registry.Broker(provider)
		if !ok {
			return response.NotFound(c, "unknown provider")
		}

		if err := broker.Disconnect(c.Context(), userID); err != nil {
			return AppErrorResponse(c, err)
		}

		logger.WithField("user_id", userID.String()).
			WithField("provider", string(provider)).
			Info("provider disconnected")
		return response.OK(c, fiber.Map{"status": "disconnected"})
	}
}
