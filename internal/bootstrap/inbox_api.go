package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	httphandler "inbox_server/adapter/in/http"
	"inbox_server/config"
	"inbox_server/infra/middleware"
	"inbox_server/pkg/logger"
)

// NewAPI builds the HTTP server with all routes and middleware mounted.
func NewAPI(cfg *config.Config, deps *Dependencies) *fiber.App {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "inbox-api",
	})

	app := fiber.New(fiber.Config{
		AppName:         "inbox-server",
		ErrorHandler:    middleware.ErrorHandler(),
		JSONEncoder:     json.Marshal,
		JSONDecoder:     json.Unmarshal,
		ReadBufferSize:  16384,
		WriteBufferSize: 16384,
		BodyLimit:       10 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(corsConfig(cfg)))

	httphandler.NewHealthHandler(deps.DB, deps.Redis, deps.MongoDB).Register(app)

	authRequired := middleware.JWTAuth(cfg.JWTSecret)

	oauthHandler := httphandler.NewOAuthHandler(deps.Registry, cfg.FrontendURL)
	oauthHandler.Register(app, authRequired)

	app.Use("/inbox", authRequired)
	inboxHandler := httphandler.NewInboxHandler(deps.IngestService, deps.ThreadService, deps.CategorizeService)
	inboxHandler.Register(app)

	return app
}

func corsConfig(cfg *config.Config) cors.Config {
	origins := cfg.AllowedOrigins
	if cfg.IsProduction() {
		// Wildcards and credentials never mix in production
		filtered := origins[:0]
		for _, o := range origins {
			if o != "*" {
				filtered = append(filtered, o)
			}
		}
		origins = filtered
	}

	return cors.Config{
		AllowOrigins:     strings.Join(origins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		AllowCredentials: true,
		MaxAge:           300,
	}
}
