// Package bootstrap wires configuration, stores, services and adapters
// into a running application.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"inbox_server/adapter/out/mongodb"
	"inbox_server/adapter/out/persistence"
	"inbox_server/adapter/out/provider"
	"inbox_server/config"
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/core/port/out"
	"inbox_server/core/service/auth"
	"inbox_server/core/service/categorize"
	"inbox_server/core/service/inbox"
	"inbox_server/infra/database"
	"inbox_server/pkg/logger"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	CredentialRepo out.CredentialRepository
	ConnectionRepo out.ConnectionRepository
	EmailRepo      out.EmailRepository
	EmailBodyRepo  out.EmailBodyRepository
	StateStore     out.OAuthStateStore

	// Services
	Registry          *auth.Registry
	IngestService     in.IngestService
	ThreadService     in.ThreadService
	CategorizeService in.CategorizeService
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// PostgreSQL (pgxpool + sqlx on the same pool)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	sqlDB := database.NewSQLX(db)
	deps.SQLDB = sqlDB
	logger.Info("PostgreSQL connected")

	// Redis (optional, disables one-shot OAuth state validation when absent)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		deps.Redis = redisClient
		cleanups = append(cleanups, func() { redisClient.Close() })
		deps.StateStore = persistence.NewRedisOAuthStateStore(redisClient)
		logger.Info("Redis connected")
	} else {
		logger.Warn("REDIS_URL not set, OAuth state replay protection disabled")
	}

	// MongoDB (message bodies)
	if cfg.MongoDBURL == "" {
		cleanup()
		return nil, nil, fmt.Errorf("MONGODB_URL is required")
	}
	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("mongodb connection failed: %w", err)
	}
	deps.MongoDB = mongoClient
	cleanups = append(cleanups, func() {
		mongoClient.Disconnect(context.Background())
	})
	logger.Info("MongoDB connected")

	bodyAdapter := mongodb.NewEmailBodyAdapter(mongoClient.Database(cfg.MongoDBName))
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := bodyAdapter.EnsureIndexes(indexCtx); err != nil {
		logger.WithError(err).Warn("Failed to ensure MongoDB indexes")
	}
	indexCancel()

	// Repositories
	deps.CredentialRepo = persistence.NewCredentialAdapter(sqlDB)
	deps.ConnectionRepo = persistence.NewConnectionAdapter(sqlDB)
	deps.EmailRepo = persistence.NewEmailAdapter(sqlDB)
	deps.EmailBodyRepo = bodyAdapter

	// Credential brokers
	gmailBroker := auth.NewGmailBroker(auth.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	}, deps.CredentialRepo, deps.ConnectionRepo, deps.StateStore)

	slackBroker := auth.NewSlackBroker(auth.SlackConfig{
		ClientID:     cfg.SlackClientID,
		ClientSecret: cfg.SlackClientSecret,
		RedirectURL:  cfg.SlackRedirectURL,
	}, deps.CredentialRepo, deps.ConnectionRepo, deps.StateStore)

	deps.Registry = auth.NewRegistry(deps.ConnectionRepo, gmailBroker, slackBroker)

	// Categorization (optional, skipped without an API key)
	var categorizer out.Categorizer
	if cfg.OpenAIAPIKey != "" {
		client, err := categorize.NewClient(categorize.ClientConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			TimeoutSec:  cfg.LLMTimeoutSec,
		})
		if err != nil {
			logger.WithError(err).Warn("Categorization client init failed, categorization disabled")
		} else {
			categorizer = client
			logger.Info("Categorization enabled with model %s", cfg.LLMModel)
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, categorization disabled")
	}
	deps.CategorizeService = categorize.NewGateway(categorizer, deps.EmailRepo, deps.EmailBodyRepo)

	// Message providers
	providers := map[domain.OAuthProvider]out.MessageProvider{
		domain.ProviderGmail: provider.NewGmailProvider(),
		domain.ProviderSlack: provider.NewSlackProvider(),
	}

	deps.IngestService = inbox.NewIngestor(
		deps.Registry,
		deps.ConnectionRepo,
		deps.EmailRepo,
		deps.EmailBodyRepo,
		providers,
		deps.CategorizeService,
		cfg.CategorizeOnIngest,
	)
	deps.ThreadService = inbox.NewThreads(deps.EmailRepo, deps.EmailBodyRepo)

	return deps, cleanup, nil
}
