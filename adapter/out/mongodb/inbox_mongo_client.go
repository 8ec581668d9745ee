// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClientConfig holds MongoDB connection pool settings.
type ClientConfig struct {
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultClientConfig returns pool defaults sized for the body store's
// read-heavy workload.
func DefaultClientConfig() *ClientConfig {
	maxPool := uint64(100)
	if envMax := os.Getenv("MONGO_MAX_POOL_SIZE"); envMax != "" {
		if v, err := strconv.ParseUint(envMax, 10, 64); err == nil {
			maxPool = v
		}
	}

	return &ClientConfig{
		MaxPoolSize:     maxPool,
		MinPoolSize:     10,
		MaxConnIdleTime: 30 * time.Second,
		ConnectTimeout:  10 * time.Second,
	}
}

func (cfg *ClientConfig) clientOptions(url string) *options.ClientOptions {
	return options.Client().
		ApplyURI(url).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime)
}

func NewClient(url string) (*mongo.Client, error) {
	return NewClientWithConfig(url, DefaultClientConfig())
}

func NewClientWithConfig(url string, cfg *ClientConfig) (*mongo.Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, cfg.clientOptions(url))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	return client, nil
}
